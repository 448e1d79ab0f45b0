//go:build linux

package api

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestConnOriginUnixPeerUID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peer.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()
	client, err := net.Dial("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	server, ok := <-accepted
	if !ok {
		t.Fatal("accept failed")
	}
	defer server.Close()

	want := "uid:" + strconv.Itoa(os.Getuid())
	if got := connOrigin(server); got != want {
		t.Errorf("connOrigin = %q, want %q", got, want)
	}
}
