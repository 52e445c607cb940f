package irr

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultAddr is the default IRRd server (spec.md §4.1).
const DefaultAddr = "whois.radb.net:43"

// Client is a single TCP connection to an IRRd whois server in
// persistent-connection mode. It is not safe for concurrent use by more than
// one goroutine at a time beyond the writer/reader split a Pipeline manages
// internally — the IRR connection is never shared across evaluators
// (spec.md §5).
type Client struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

// Dial connects to addr and enables persistent-connection mode ("!!").
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, &Error{Kind: ErrConnect, Message: fmt.Sprintf("dialing %s", addr), Cause: err}
	}
	c := &Client{conn: conn, r: bufio.NewReader(conn), w: bufio.NewWriter(conn)}
	if _, err := c.w.WriteString("!!\n"); err != nil {
		conn.Close()
		return nil, &Error{Kind: ErrTransport, Message: "enabling persistent mode", Cause: err}
	}
	if err := c.w.Flush(); err != nil {
		conn.Close()
		return nil, &Error{Kind: ErrTransport, Message: "enabling persistent mode", Cause: err}
	}
	return c, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// sendQuery writes one query line to the wire.
func (c *Client) sendQuery(q Query) error {
	if _, err := c.w.WriteString(q.line()); err != nil {
		return &Error{Kind: ErrTransport, Query: &q, Message: "writing query", Cause: err}
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return &Error{Kind: ErrTransport, Query: &q, Message: "writing query", Cause: err}
	}
	if err := c.w.Flush(); err != nil {
		return &Error{Kind: ErrTransport, Query: &q, Message: "flushing query", Cause: err}
	}
	return nil
}

// Query writes q and synchronously reads back its response. Callers that
// need to amortise latency across many queries should use a Pipeline
// instead; Query is for the evaluator's sequential single-connection
// resolution (spec.md §4.2 "recursive resolution is sequential (pipelined),
// not parallel").
func (c *Client) Query(q Query) Response {
	if err := c.sendQuery(q); err != nil {
		return Response{Query: q, Err: err}
	}
	return c.readResponse(q)
}

// readResponse reads and parses one framed response from the wire for q.
//
// Framing (spec.md §4.1): "A<len>\n<payload>\nC\n" on success, "C\n" on
// success-empty, "D\n" on key-not-found, "F<message>\n" on server error.
func (c *Client) readResponse(q Query) Response {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return Response{Query: q, Err: &Error{Kind: ErrTransport, Query: &q, Message: "reading response header", Cause: err}}
	}
	line = strings.TrimRight(line, "\r\n")

	switch {
	case line == "C":
		return Response{Query: q, Lines: []string{}}
	case line == "D":
		return Response{Query: q, Err: &Error{Kind: ErrKeyNotFound, Query: &q, Message: "key not found"}}
	case strings.HasPrefix(line, "F"):
		return Response{Query: q, Err: &Error{Kind: ErrServer, Query: &q, Message: strings.TrimPrefix(line, "F")}}
	case strings.HasPrefix(line, "A"):
		n, err := strconv.Atoi(strings.TrimPrefix(line, "A"))
		if err != nil {
			return Response{Query: q, Err: &Error{Kind: ErrProtocol, Query: &q, Message: fmt.Sprintf("malformed length header %q", line), Cause: err}}
		}
		payload := make([]byte, n)
		if _, err := io.ReadFull(c.r, payload); err != nil {
			return Response{Query: q, Err: &Error{Kind: ErrProtocol, Query: &q, Message: "short read on payload", Cause: err}}
		}
		// consume the newline after the payload and the trailing "C\n"
		if _, err := c.r.ReadString('\n'); err != nil {
			return Response{Query: q, Err: &Error{Kind: ErrProtocol, Query: &q, Message: "missing newline after payload", Cause: err}}
		}
		term, err := c.r.ReadString('\n')
		if err != nil || strings.TrimRight(term, "\r\n") != "C" {
			return Response{Query: q, Err: &Error{Kind: ErrProtocol, Query: &q, Message: fmt.Sprintf("expected C terminator, got %q", term), Cause: err}}
		}
		return Response{Query: q, Lines: splitPayload(q, payload)}
	default:
		return Response{Query: q, Err: &Error{Kind: ErrProtocol, Query: &q, Message: fmt.Sprintf("unrecognised frame header %q", line)}}
	}
}

// splitPayload tokenises a successful payload according to the query kind:
// the object-text queries keep line structure, the membership/route queries
// are space-separated on one or more lines.
func splitPayload(q Query, payload []byte) []string {
	text := string(payload)
	if q.Kind == RpslObject {
		return strings.Split(text, "\n")
	}
	return strings.Fields(text)
}
