//go:build linux

package echoserver

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"
)

func startServer(t *testing.T, shards int) *Server {
	t.Helper()
	srv, err := New(Config{Address: "127.0.0.1:0", Shards: shards})
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := srv.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return srv
}

func TestEchoRoundTrip(t *testing.T) {
	srv := startServer(t, 2)

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	msg := []byte("hello\n")
	for i := 0; i < 3; i++ {
		if _, err := conn.Write(msg); err != nil {
			t.Fatal(err)
		}
		got := make([]byte, len(msg))
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if _, err := io.ReadFull(conn, got); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, msg) {
			t.Fatalf("round trip %d: got %q, want %q", i, got, msg)
		}
	}
}

func TestManyConnections(t *testing.T) {
	srv := startServer(t, 0)

	msg := []byte("x\n")
	for i := 0; i < 16; i++ {
		conn, err := net.Dial("tcp", srv.Addr())
		if err != nil {
			t.Fatal(err)
		}
		if _, err := conn.Write(msg); err != nil {
			t.Fatal(err)
		}
		got := make([]byte, len(msg))
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if _, err := io.ReadFull(conn, got); err != nil {
			t.Fatal(err)
		}
		conn.Close()
	}
}

func TestCloseIdempotent(t *testing.T) {
	srv, err := New(Config{Address: "127.0.0.1:0", Shards: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	if err := srv.Close(); err != nil {
		t.Fatal(err)
	}
	if err := srv.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewRejectsBadAddress(t *testing.T) {
	for _, addr := range []string{"", "no-port", "[::1]:0", "127.0.0.1:notaport"} {
		if _, err := New(Config{Address: addr}); err == nil {
			t.Errorf("New accepted %q", addr)
		}
	}
}
