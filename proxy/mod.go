// Package proxy defines the HTTP front of a node, used by the clients that do
// not have access to the daemon socket.
package proxy

import (
	"net"
	"net/http"
)

// Proxy defines the primitives to implement an http client that handles
// client side requests
type Proxy interface {
	// Listen starts the proxy server. This call is assumed to be blocking
	Listen()

	// Stop stops the proxy server
	Stop()

	// RegisterHandler registers a new handler
	RegisterHandler(path string, handler func(http.ResponseWriter, *http.Request))

	// Mount attaches a sub-router under the pattern.
	Mount(pattern string, handler http.Handler)

	// GetAddr returns the address the server is listening on, or nil if it is
	// not listening yet.
	GetAddr() net.Addr
}
