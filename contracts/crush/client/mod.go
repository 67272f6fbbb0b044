// Package client implements the client of the relay API. It builds the
// transactions of the submissions, signs them with the key of the submitter
// and lets the relayer pay for them.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.dedis.ch/crush/contracts/crush"
	"go.dedis.ch/crush/contracts/crush/controller"
	"go.dedis.ch/crush/core/execution/native"
	"go.dedis.ch/crush/core/txn/signed"
	"go.dedis.ch/crush/crypto"
	"go.dedis.ch/crush/crypto/ed25519"
	serdejson "go.dedis.ch/crush/serde/json"
	"golang.org/x/xerrors"
)

const defaultTimeout = 30 * time.Second

// StatusError is returned when the API answers with an unexpected status.
type StatusError struct {
	Code    int
	Message string
}

// Error implements error.
func (e StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

// Client is a client of the relay API.
type Client struct {
	url  string
	http *http.Client
}

// Option is the type of options to create a client.
type Option func(*Client)

// WithHTTPClient is an option to set the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// NewClient returns a client of the API at the URL, for instance
// http://127.0.0.1:8080/api.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:  strings.TrimSuffix(url, "/"),
		http: &http.Client{Timeout: defaultTimeout},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Relayer returns the identity of the relayer that pays for the submissions.
func (c *Client) Relayer() (crypto.PublicKey, error) {
	var res controller.RelayerResponse

	err := c.do(http.MethodGet, "/relayer", nil, &res)
	if err != nil {
		return nil, err
	}

	pk, err := ed25519.ParsePublicKey(res.Identity)
	if err != nil {
		return nil, xerrors.Errorf("invalid relayer: %v", err)
	}

	return pk, nil
}

// Nonce returns the next nonce expected for the identity.
func (c *Client) Nonce(pk crypto.PublicKey) (uint64, error) {
	text, err := pk.MarshalText()
	if err != nil {
		return 0, xerrors.Errorf("failed to marshal identity: %v", err)
	}

	var res controller.NonceResponse

	err = c.do(http.MethodGet, "/nonce/"+string(text), nil, &res)
	if err != nil {
		return 0, err
	}

	return res.Nonce, nil
}

// Record returns the view of the record of the tag.
func (c *Client) Record(tag crush.Tag) (crush.View, error) {
	var raw json.RawMessage

	err := c.do(http.MethodGet, "/crush/"+tag.String(), nil, &raw)
	if err != nil {
		return crush.View{}, err
	}

	view, err := crush.NewViewFactory().ViewOf(serdejson.NewContext(), raw)
	if err != nil {
		return crush.View{}, xerrors.Errorf("invalid view: %v", err)
	}

	return view, nil
}

// Submit signs the submission of the ciphertext with the signer and sends it
// to the relayer. It returns the new fill count of the record.
func (c *Client) Submit(signer crypto.Signer, tag crush.Tag, cipher crush.Cipher) (crush.FillCount, error) {
	relayer, err := c.Relayer()
	if err != nil {
		return 0, xerrors.Errorf("failed to get relayer: %v", err)
	}

	nonce, err := c.Nonce(signer.GetPublicKey())
	if err != nil {
		return 0, xerrors.Errorf("failed to get nonce: %v", err)
	}

	data, err := MakeTransaction(signer, relayer, nonce, tag, cipher)
	if err != nil {
		return 0, err
	}

	var res controller.RelayResponse

	err = c.do(http.MethodPost, "/relay", data, &res)
	if err != nil {
		return 0, err
	}

	return crush.FillCount(res.Filled), nil
}

// MakeTransaction returns the JSON data of the submission signed by the signer
// and paid by the relayer.
func MakeTransaction(signer crypto.Signer, relayer crypto.PublicKey, nonce uint64,
	tag crush.Tag, cipher crush.Cipher) ([]byte, error) {

	tx, err := signed.NewTransaction(nonce, signer.GetPublicKey(),
		signed.WithArg(native.ContractArg, []byte(crush.ContractName)),
		signed.WithArg(crush.TagArg, tag[:]),
		signed.WithArg(crush.CipherArg, cipher[:]),
		signed.WithPayer(relayer),
	)
	if err != nil {
		return nil, xerrors.Errorf("failed to create tx: %v", err)
	}

	err = tx.Sign(signer)
	if err != nil {
		return nil, xerrors.Errorf("failed to sign tx: %v", err)
	}

	data, err := tx.Serialize(serdejson.NewContext())
	if err != nil {
		return nil, xerrors.Errorf("failed to serialize tx: %v", err)
	}

	return data, nil
}

func (c *Client) do(method, path string, body []byte, v interface{}) error {
	req, err := http.NewRequest(method, c.url+path, bytes.NewReader(body))
	if err != nil {
		return xerrors.Errorf("failed to create request: %v", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return xerrors.Errorf("request failed: %v", err)
	}

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return xerrors.Errorf("failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		var res controller.ErrorResponse
		json.Unmarshal(data, &res)

		return StatusError{Code: resp.StatusCode, Message: res.Error}
	}

	err = json.Unmarshal(data, v)
	if err != nil {
		return xerrors.Errorf("failed to decode response: %v", err)
	}

	return nil
}
