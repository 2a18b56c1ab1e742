package listener

import (
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

func newPipeChannel(t *testing.T, maxLine int) (*lineChannel, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	lc, err := newLineChannel(client, TransportNative, maxLine)
	if err != nil {
		t.Fatalf("newLineChannel: %v", err)
	}
	return lc, server
}

func TestLineChannelKeepsPartialAcrossTimeouts(t *testing.T) {
	lc, server := newPipeChannel(t, 0)
	go server.Write([]byte("logi"))

	_, err := lc.ReadLine(time.Now().Add(50 * time.Millisecond))
	if !isTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if lc.Pending() != "logi" {
		t.Fatalf("expected pending partial, got %q", lc.Pending())
	}

	go server.Write([]byte("n: N0CALL\r\nnext"))
	line, err := lc.ReadLine(time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line != "login: N0CALL" {
		t.Fatalf("unexpected line %q", line)
	}
	if lc.Pending() != "next" {
		t.Fatalf("expected remainder to stay buffered, got %q", lc.Pending())
	}
}

func TestLineChannelReturnsBufferedLinesWithoutReading(t *testing.T) {
	lc, server := newPipeChannel(t, 0)
	go server.Write([]byte("one\ntwo\n"))
	for _, want := range []string{"one", "two"} {
		got, err := lc.ReadLine(time.Now().Add(time.Second))
		if err != nil || got != want {
			t.Fatalf("expected %q, got %q (%v)", want, got, err)
		}
	}
}

func TestLineChannelDropsOverlongLines(t *testing.T) {
	lc, server := newPipeChannel(t, 16)
	go func() {
		server.Write([]byte(strings.Repeat("x", 40)))
		server.Write([]byte(strings.Repeat("y", 10) + "\nshort\n"))
	}()

	_, err := lc.ReadLine(time.Now().Add(time.Second))
	var tooLong errLineTooLong
	if !errors.As(err, &tooLong) {
		t.Fatalf("expected errLineTooLong, got %v", err)
	}
	line, err := lc.ReadLine(time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line != "short" {
		t.Fatalf("expected to resync on the next line, got %q", line)
	}
}

func TestLineChannelPeerCloseOverPipe(t *testing.T) {
	lc, server := newPipeChannel(t, 0)
	server.Close()
	_, err := lc.ReadLine(time.Now().Add(time.Second))
	if err == nil || isTimeout(err) {
		t.Fatalf("expected a peer-closed error, got %v", err)
	}
	if kind := classifyRead("x", err).Kind; kind != KindConnectionLost {
		t.Fatalf("expected ConnectionLost for %v, got %s", err, kind)
	}
}

func TestLineChannelPeerCloseOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		if c, err := ln.Accept(); err == nil {
			c.Close()
		}
	}()
	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	lc, err := newLineChannel(conn, TransportNative, 0)
	if err != nil {
		t.Fatalf("newLineChannel: %v", err)
	}
	_, err = lc.ReadLine(time.Now().Add(2 * time.Second))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
	if kind := classifyRead("x", err).Kind; kind != KindConnectionLost {
		t.Fatalf("expected ConnectionLost, got %s", kind)
	}
}

func TestLineChannelWriteLineAppendsCRLF(t *testing.T) {
	lc, server := newPipeChannel(t, 0)
	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 32)
		n, _ := server.Read(buf)
		got <- string(buf[:n])
	}()
	n, err := lc.WriteLine("N0CALL", time.Second)
	if err != nil || n != len("N0CALL\r\n") {
		t.Fatalf("WriteLine: n=%d err=%v", n, err)
	}
	if s := <-got; s != "N0CALL\r\n" {
		t.Fatalf("unexpected bytes %q", s)
	}
}

func TestUnknownTransportRejected(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	if _, err := newLineChannel(client, Transport("ssh"), 0); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}

func TestMatchPrompt(t *testing.T) {
	cases := []struct {
		buffered string
		want     bool
	}{
		{"login:", true},
		{"login: ", true},
		{"Welcome to the node\r\nlogin: ", true},
		{"Please enter your call: ", true},
		{"Please enter your call:\r\n", true},
		{"login: failed, try later", false},
		{"Hello", false},
		{"", false},
		{"   ", false},
	}
	for _, tc := range cases {
		if got := matchPrompt(tc.buffered, DefaultPrompts); got != tc.want {
			t.Fatalf("matchPrompt(%q) = %v, want %v", tc.buffered, got, tc.want)
		}
	}
}

func TestCleanLine(t *testing.T) {
	cases := map[string]string{
		"DX de X: 1 Y\a\a":   "DX de X: 1 Y",
		"DX de X: 1 Y \a \r": "DX de X: 1 Y",
		"  leading kept":     "  leading kept",
		"\a\a\r\n":           "",
		"inner\abell":        "inner\abell",
	}
	for in, want := range cases {
		if got := cleanLine(in); got != want {
			t.Fatalf("cleanLine(%q) = %q, want %q", in, got, want)
		}
	}
}
