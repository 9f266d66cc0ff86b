// Package netx holds small network address helpers.
package netx

import "net"

// DialTarget turns a listen address into one a local client can dial:
// an empty or wildcard host becomes "localhost". Anything that does not
// parse as host:port is returned unchanged.
func DialTarget(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return listenAddr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
