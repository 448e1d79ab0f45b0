package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
)

type originKey struct{}

// connOrigin names the peer of c for failure throttling. Unix socket peers
// are identified by the uid the kernel reports, TCP peers by remote host.
// Nothing a client sends in a request can change it.
func connOrigin(c net.Conn) string {
	if uc, ok := c.(*net.UnixConn); ok {
		if uid, ok := peerUID(uc); ok {
			return "uid:" + strconv.Itoa(uid)
		}
		return "unix"
	}
	addr := c.RemoteAddr().String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return "host:" + host
}

func withOrigin(ctx context.Context, c net.Conn) context.Context {
	return context.WithValue(ctx, originKey{}, connOrigin(c))
}

// origin returns the connection origin, or "" when the handler is used
// outside Server, in which case policy falls back to its local bucket.
func origin(r *http.Request) string {
	o, _ := r.Context().Value(originKey{}).(string)
	return o
}
