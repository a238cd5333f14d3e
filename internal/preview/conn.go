package preview

import (
	"bytes"
	"net"
)

var (
	headerEnd  = []byte("\r\n\r\n")
	corsHeader = []byte("Access-Control-Allow-Origin: *\r\n")
)

// corsListener makes sure the CORS header is present even on responses
// net/http writes itself before any handler runs, such as the 400 for an
// unparseable request line.
type corsListener struct {
	net.Listener
}

func (l corsListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &corsConn{Conn: c}, nil
}

// corsConn patches the header block of the first response on the
// connection. Keep-alives are off, so there is only ever one.
type corsConn struct {
	net.Conn
	written bool
}

func (c *corsConn) Write(p []byte) (int, error) {
	if c.written {
		return c.Conn.Write(p)
	}
	c.written = true

	patched, ok := withCORS(p)
	if !ok {
		return c.Conn.Write(p)
	}
	if _, err := c.Conn.Write(patched); err != nil {
		return 0, err
	}
	return len(p), nil
}

// withCORS inserts the CORS header after the status line of a raw response
// that lacks it.
func withCORS(p []byte) ([]byte, bool) {
	if !bytes.HasPrefix(p, []byte("HTTP/1.")) {
		return nil, false
	}
	end := bytes.Index(p, headerEnd)
	if end < 0 {
		return nil, false
	}
	if bytes.Contains(bytes.ToLower(p[:end]), []byte("access-control-allow-origin:")) {
		return nil, false
	}
	line := bytes.Index(p, []byte("\r\n")) + 2

	out := make([]byte, 0, len(p)+len(corsHeader))
	out = append(out, p[:line]...)
	out = append(out, corsHeader...)
	out = append(out, p[line:]...)
	return out, true
}
