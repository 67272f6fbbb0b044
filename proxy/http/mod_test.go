package http

import (
	"bytes"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestHTTP_Listen(t *testing.T) {
	proxy := startProxy(t)
	defer proxy.Stop()

	proxy.RegisterHandler("/fake", fakeHandler)

	res, err := http.Get("http://" + proxy.GetAddr().String() + "/fake")
	require.NoError(t, err)

	output, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	require.Equal(t, "hello", string(output))
	require.NotEmpty(t, res.Header.Get(RequestIDHeader))
}

func TestHTTP_Listen_RequestID(t *testing.T) {
	proxy := startProxy(t)
	defer proxy.Stop()

	proxy.RegisterHandler("/id", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(RequestID(r)))
	})

	req, err := http.NewRequest(http.MethodGet, "http://"+proxy.GetAddr().String()+"/id", nil)
	require.NoError(t, err)

	req.Header.Set(RequestIDHeader, "abc")

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	output, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Equal(t, "abc", string(output))
	require.Equal(t, "abc", res.Header.Get(RequestIDHeader))
}

func TestHTTP_Mount(t *testing.T) {
	proxy := startProxy(t)
	defer proxy.Stop()

	router := chi.NewRouter()
	router.Get("/ping", fakeHandler)

	proxy.Mount("/api", router)

	res, err := http.Get("http://" + proxy.GetAddr().String() + "/api/ping")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get("http://" + proxy.GetAddr().String() + "/api/unknown")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestHTTP_Listen_EmptyAddr(t *testing.T) {
	// in this case it will use a random free port
	proxy := NewHTTP("")

	require.Nil(t, proxy.GetAddr())

	go proxy.Listen()
	waitAddr(t, proxy)

	require.NotNil(t, proxy.GetAddr())

	proxy.Stop()
}

func TestHTTP_Listen_BadAddr(t *testing.T) {
	proxy := NewHTTP("bad://xx")

	out := new(bytes.Buffer)
	proxy.logger = zerolog.New(out)

	var res interface{}

	func() {
		defer func() {
			res = recover()
		}()

		proxy.Listen()
	}()

	require.Regexp(t, "^failed to create conn 'bad://xx':", res)
	require.Regexp(t, "failed to create conn 'bad://xx':", out.String())
}

// -----------------------------------------------------------------------------
// Utility functions

func startProxy(t *testing.T) *HTTP {
	proxy := NewHTTP("127.0.0.1:0")
	go proxy.Listen()

	waitAddr(t, proxy)

	return proxy
}

func waitAddr(t *testing.T, proxy *HTTP) {
	for i := 0; i < 50 && proxy.GetAddr() == nil; i++ {
		time.Sleep(20 * time.Millisecond)
	}

	require.NotNil(t, proxy.GetAddr())
}

func fakeHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("hello"))
}
