// Package middleware provides HTTP middlewares for access control, rate
// limiting and logging of the passphrase bridge.
package middleware

import (
	"net"
	"net/http"
)

// LoopbackOnly is a middleware that rejects requests not originating from a
// loopback address.
//
// The passphrase bridge accepts secrets over plain HTTP, so it must only be
// reachable from the local machine even when bound to a wider address.
func LoopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isLoopback(r.RemoteAddr) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
