package controller

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.dedis.ch/crush"
	"go.dedis.ch/crush/cli/node"
	ledgerctl "go.dedis.ch/crush/core/ledger/controller"
	"go.dedis.ch/crush/proxy"
	"go.dedis.ch/crush/proxy/http"
	"golang.org/x/xerrors"
)

var defaultRetry = 10

var proxyFac = func(addr string) proxy.Proxy {
	return http.NewHTTP(addr)
}

type startAction struct{}

// Execute implements node.ActionTemplate. It starts and injects the proxy http
// server.
func (a startAction) Execute(ctx node.Context) error {
	var p proxy.Proxy
	if ctx.Injector.Resolve(&p) == nil {
		return xerrors.Errorf("proxy already started on %v", p.GetAddr())
	}

	addr := ctx.Flags.String("clientaddr")
	if addr == "" {
		addr = configAddr(ctx.Injector)
	}

	proxyhttp := proxyFac(addr)

	go proxyhttp.Listen()

	for i := 0; i < defaultRetry && proxyhttp.GetAddr() == nil; i++ {
		time.Sleep(100 * time.Millisecond)
	}

	if proxyhttp.GetAddr() == nil {
		return xerrors.Errorf("failed to start proxy server")
	}

	ctx.Injector.Inject(proxyhttp)

	fmt.Fprintf(ctx.Out, "started proxy server on %s", proxyhttp.GetAddr().String())

	return nil
}

func configAddr(inj node.Injector) string {
	var cfg *ledgerctl.Config
	err := inj.Resolve(&cfg)
	if err != nil || cfg.Proxy.Addr == "" {
		return defaultAddr
	}

	return cfg.Proxy.Addr
}

type promAction struct{}

// Execute implements node.ActionTemplate. It registers the Prometheus handler.
func (a promAction) Execute(ctx node.Context) error {
	var proxyhttp proxy.Proxy

	err := ctx.Injector.Resolve(&proxyhttp)
	if err != nil {
		return xerrors.Errorf("failed to resolve the proxy: %v", err)
	}

	path := ctx.Flags.String("path")
	if path == "" {
		path = defaultProm
	}

	for _, c := range crush.PromCollectors {
		err = prometheus.DefaultRegisterer.Register(c)
		if err != nil {
			fmt.Fprintf(ctx.Out, "ERROR: failed to register: %v\n", err)
		}
	}

	proxyhttp.RegisterHandler(path, promhttp.Handler().ServeHTTP)
	fmt.Fprintf(ctx.Out, "registered prometheus service on %q", path)

	return nil
}
