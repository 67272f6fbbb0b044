package controller

import (
	"bytes"
	"encoding/hex"
	stdjson "encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	app "go.dedis.ch/crush"
	"go.dedis.ch/crush/contracts/crush"
	_ "go.dedis.ch/crush/contracts/crush/json"
	"go.dedis.ch/crush/core/access"
	"go.dedis.ch/crush/core/execution/native"
	"go.dedis.ch/crush/core/ledger"
	"go.dedis.ch/crush/core/store"
	"go.dedis.ch/crush/core/txn"
	"go.dedis.ch/crush/core/txn/signed"
	_ "go.dedis.ch/crush/core/txn/signed/json"
	"go.dedis.ch/crush/crypto"
	"go.dedis.ch/crush/crypto/ed25519"
	_ "go.dedis.ch/crush/crypto/ed25519/json"
	proxyhttp "go.dedis.ch/crush/proxy/http"
	"go.dedis.ch/crush/serde"
	"go.dedis.ch/crush/serde/json"
	"golang.org/x/xerrors"
)

// maxBodySize is the maximum size of a relayed transaction.
const maxBodySize = 64 * 1024

// Ledger is the part of the ledger the API relies on.
type Ledger interface {
	Execute(tx txn.Transaction) (ledger.Receipt, error)

	GetNonce(ident access.Identity) (uint64, error)

	View(fn func(store.Readable) error) error
}

// RelayResponse is the body returned for an accepted submission.
type RelayResponse struct {
	Accepted bool   `json:"accepted"`
	Filled   uint8  `json:"filled"`
	State    string `json:"state"`
	TxID     string `json:"txid"`
}

// AddressResponse is the body returned for the address of a tag.
type AddressResponse struct {
	Tag     string `json:"tag"`
	Address string `json:"address"`
	Bump    uint8  `json:"bump"`
}

// NonceResponse is the body returned for the nonce of an identity.
type NonceResponse struct {
	Identity string `json:"identity"`
	Nonce    uint64 `json:"nonce"`
}

// RelayerResponse is the body returned for the identity of the relayer.
type RelayerResponse struct {
	Identity string `json:"identity"`
}

// ErrorResponse is the body returned when a request fails.
type ErrorResponse struct {
	Error string `json:"error"`
}

// API is the HTTP API that relays the submissions of the clients. Clients sign
// their transaction and set the relayer as the payer. The relayer co-signs and
// executes it, and pays for the storage.
type API struct {
	ledger  Ledger
	relayer crypto.Signer
	ctx     serde.Context
	txFac   signed.TransactionFactory
	logger  zerolog.Logger
}

// NewAPI creates the relay API of the ledger.
func NewAPI(l Ledger, relayer crypto.Signer) *API {
	return &API{
		ledger:  l,
		relayer: relayer,
		ctx:     json.NewContext(),
		txFac:   signed.NewTransactionFactory(),
		logger:  app.Logger.With().Str("component", "relay").Logger(),
	}
}

// Router returns the routes of the API.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", a.health)
	r.Get("/relayer", a.getRelayer)
	r.Get("/nonce/{identity}", a.getNonce)
	r.Get("/crush/{tag}", a.getRecord)
	r.Get("/crush/{tag}/address", a.getAddress)
	r.Post("/relay", a.relay)

	return r
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) getRelayer(w http.ResponseWriter, r *http.Request) {
	text, err := a.relayer.GetPublicKey().MarshalText()
	if err != nil {
		a.fail(w, r, http.StatusInternalServerError, xerrors.Errorf("failed to marshal key: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, RelayerResponse{Identity: string(text)})
}

func (a *API) getNonce(w http.ResponseWriter, r *http.Request) {
	ident, err := ed25519.ParsePublicKey(chi.URLParam(r, "identity"))
	if err != nil {
		a.fail(w, r, http.StatusBadRequest, xerrors.Errorf("invalid identity: %v", err))
		return
	}

	nonce, err := a.ledger.GetNonce(ident)
	if err != nil {
		a.fail(w, r, http.StatusInternalServerError, err)
		return
	}

	text, err := ident.MarshalText()
	if err != nil {
		a.fail(w, r, http.StatusInternalServerError, xerrors.Errorf("failed to marshal key: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, NonceResponse{Identity: string(text), Nonce: nonce})
}

func (a *API) getRecord(w http.ResponseWriter, r *http.Request) {
	tag, err := crush.ParseTag(chi.URLParam(r, "tag"))
	if err != nil {
		a.fail(w, r, http.StatusBadRequest, err)
		return
	}

	view, err := readView(a.ledger, tag)
	if xerrors.Is(err, errNotFound) {
		a.fail(w, r, http.StatusNotFound, err)
		return
	}
	if err != nil {
		a.fail(w, r, http.StatusInternalServerError, err)
		return
	}

	data, err := view.Serialize(a.ctx)
	if err != nil {
		a.fail(w, r, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (a *API) getAddress(w http.ResponseWriter, r *http.Request) {
	tag, err := crush.ParseTag(chi.URLParam(r, "tag"))
	if err != nil {
		a.fail(w, r, http.StatusBadRequest, err)
		return
	}

	addr, bump, err := tag.Address()
	if err != nil {
		a.fail(w, r, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, AddressResponse{
		Tag:     tag.String(),
		Address: addr.String(),
		Bump:    bump,
	})
}

func (a *API) relay(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		a.fail(w, r, http.StatusBadRequest, xerrors.Errorf("failed to read body: %v", err))
		return
	}

	tx, err := a.decode(data)
	if err != nil {
		a.fail(w, r, http.StatusBadRequest, err)
		return
	}

	receipt, err := a.ledger.Execute(tx)
	if xerrors.Is(err, ledger.ErrInvalidNonce) || xerrors.Is(err, ledger.ErrInvalidTransaction) {
		a.fail(w, r, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		a.fail(w, r, http.StatusInternalServerError, err)
		return
	}

	if !receipt.Accepted {
		status := http.StatusUnprocessableEntity
		if xerrors.Is(receipt.Err, crush.ErrAlreadyMutual) {
			status = http.StatusConflict
		}

		a.fail(w, r, status, xerrors.New(receipt.Message))
		return
	}

	filled := crush.FillCount(receipt.Data[0])

	a.logger.Info().
		Str("request", proxyhttp.RequestID(r)).
		Hex("txid", receipt.TxID).
		Stringer("state", filled).
		Msg("submission relayed")

	writeJSON(w, http.StatusOK, RelayResponse{
		Accepted: true,
		Filled:   uint8(filled),
		State:    filled.String(),
		TxID:     hex.EncodeToString(receipt.TxID),
	})
}

// decode returns the transaction of the data co-signed by the relayer. Only
// the submissions to the crush contract are relayed.
func (a *API) decode(data []byte) (*signed.Transaction, error) {
	msg, err := a.txFac.TransactionOf(a.ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("malformed transaction: %v", err)
	}

	tx, ok := msg.(*signed.Transaction)
	if !ok {
		return nil, xerrors.Errorf("unsupported transaction of type '%T'", msg)
	}

	if !bytes.Equal(tx.GetArg(native.ContractArg), []byte(crush.ContractName)) {
		return nil, xerrors.Errorf("only '%s' is relayed", crush.ContractName)
	}

	err = tx.CoSign(a.relayer)
	if err != nil {
		return nil, xerrors.Errorf("failed to co-sign: %v", err)
	}

	return tx, nil
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	a.logger.Debug().
		Str("request", proxyhttp.RequestID(r)).
		Int("status", status).
		Err(err).
		Msg("request failed")

	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	stdjson.NewEncoder(w).Encode(v)
}
