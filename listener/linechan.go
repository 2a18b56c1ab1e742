package listener

import (
	"bytes"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ziutek/telnet"
)

// Transport selects how bytes are read from the socket.
type Transport string

const (
	// TransportNative reads the raw TCP stream.
	TransportNative Transport = "native"
	// TransportTelnet strips IAC sequences and refuses option negotiation
	// before lines are framed.
	TransportTelnet Transport = "telnet"
)

// errLineTooLong carries a preview and length when a line exceeds maxLine.
type errLineTooLong struct {
	preview string
	length  int
}

func (e errLineTooLong) Error() string {
	return fmt.Sprintf("line too long (%d bytes)", e.length)
}

// lineChannel frames a byte stream into '\n'-terminated lines with
// deadline-bounded reads. Bytes received after the last terminator stay
// buffered across timeouts so a prompt without a newline can be inspected.
type lineChannel struct {
	conn     net.Conn
	readFn   func([]byte) (int, error)
	writeFn  func([]byte) (int, error)
	buf      []byte
	readBuf  []byte
	maxLine  int
	dropping bool
}

func newLineChannel(conn net.Conn, transport Transport, maxLine int) (*lineChannel, error) {
	if maxLine <= 0 {
		maxLine = defaultMaxLineLength
	}
	c := &lineChannel{
		conn:    conn,
		readFn:  conn.Read,
		writeFn: conn.Write,
		buf:     make([]byte, 0, 256),
		readBuf: make([]byte, 4096),
		maxLine: maxLine,
	}
	switch transport {
	case TransportNative, "":
	case TransportTelnet:
		tconn, err := telnet.NewConn(conn)
		if err != nil {
			return nil, fmt.Errorf("telnet wrap: %w", err)
		}
		c.readFn = tconn.Read
		c.writeFn = tconn.Write
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
	return c, nil
}

// ReadLine returns the next complete line without its terminator or trailing
// CR. It returns errLineTooLong when an oversize line was dropped, a timeout
// error when deadline passes first (partial data stays in Pending), or the
// transport error otherwise.
func (c *lineChannel) ReadLine(deadline time.Time) (string, error) {
	if line, ready, err := c.tryReadLine(); ready {
		return line, err
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}
	for {
		n, err := c.readFn(c.readBuf)
		if n > 0 {
			c.absorb(c.readBuf[:n])
			if line, ready, lerr := c.tryReadLine(); ready {
				return line, lerr
			}
		}
		if err != nil {
			return "", err
		}
	}
}

func (c *lineChannel) absorb(data []byte) {
	if c.dropping {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			return
		}
		c.dropping = false
		data = data[idx+1:]
	}
	c.buf = append(c.buf, data...)
}

func (c *lineChannel) tryReadLine() (string, bool, error) {
	if idx := bytes.IndexByte(c.buf, '\n'); idx >= 0 {
		line := strings.TrimRight(string(c.buf[:idx]), "\r")
		c.buf = append(c.buf[:0], c.buf[idx+1:]...)
		if len(line) > c.maxLine {
			return "", true, errLineTooLong{preview: preview(line), length: len(line)}
		}
		return line, true, nil
	}
	if len(c.buf) > c.maxLine {
		// Drop until the next terminator to keep memory bounded.
		length := len(c.buf)
		p := preview(string(c.buf))
		c.buf = c.buf[:0]
		c.dropping = true
		return "", true, errLineTooLong{preview: p, length: length}
	}
	return "", false, nil
}

// Pending returns bytes received since the last terminator.
func (c *lineChannel) Pending() string {
	return string(c.buf)
}

// Discard drops any partial line.
func (c *lineChannel) Discard() {
	c.buf = c.buf[:0]
}

// WriteLine sends data followed by CRLF. It returns the number of bytes the
// transport accepted so callers can tell a dead peer from a partial write.
func (c *lineChannel) WriteLine(data string, timeout time.Duration) (int, error) {
	if timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return 0, err
		}
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.writeFn([]byte(data + "\r\n"))
}

func preview(s string) string {
	const max = 64
	if len(s) > max {
		return s[:max]
	}
	return s
}
