package netconf

import (
	"bufio"
	"context"
	"encoding/xml"
	"fmt"
	"net"
	"sync"
)

// Session is one open NETCONF-over-TLS connection to a Junos device. It owns
// a single background goroutine that reads framed messages off the wire and
// dispatches them to the RPC that is waiting for that message-id — the
// "actor" variant of the concurrent-correlation design spec.md §9 allows, in
// place of the three-lock (send/recv/outstanding) scheme: the actor goroutine
// alone performs reads, so the recv path is trivially serialised, while
// next_message_id allocation and writes are serialised by sendMu (spec.md §5).
type Session struct {
	conn   net.Conn
	framer framer
	r      *bufio.Reader

	sendMu sync.Mutex
	nextID uint64

	outMu       sync.Mutex
	outstanding map[uint64]chan rpcOutcome

	closeOnce sync.Once
	closed    chan struct{}

	// Version is the negotiated base capability (CapBase10 or CapBase11).
	Version string
	// SessionID is the server-assigned NETCONF session id.
	SessionID int
	// ServerCaps is the server's advertised capability set.
	ServerCaps Capabilities

	dbMu       sync.Mutex
	dbOpenName string
}

type rpcOutcome struct {
	raw []byte
	err error
}

// Open dials cfg, performs the TLS handshake, exchanges <hello>, negotiates
// the base protocol version, and starts the session's background reader.
func Open(cfg TLSConfig) (*Session, error) {
	conn, err := dialTLS(cfg)
	if err != nil {
		return nil, err
	}
	r := bufio.NewReader(conn)
	sessionID, serverCaps, err := exchangeHello(conn, r)
	if err != nil {
		conn.Close()
		return nil, err
	}
	version, err := negotiateVersion(NewCapabilities(ClientCapabilities), serverCaps)
	if err != nil {
		conn.Close()
		return nil, err
	}

	s := &Session{
		conn:        conn,
		framer:      framerFor(version),
		r:           r,
		outstanding: make(map[uint64]chan rpcOutcome),
		closed:      make(chan struct{}),
		Version:     version,
		SessionID:   sessionID,
		ServerCaps:  serverCaps,
	}
	go s.recvLoop()
	return s, nil
}

// Close force-closes the transport. Any RPC awaiting a reply fails with a
// transport error; the session may not be reused afterward (spec.md §3).
func (s *Session) Close() error {
	err := s.conn.Close()
	s.closeOnce.Do(func() { close(s.closed) })
	return err
}

func (s *Session) recvLoop() {
	for {
		raw, err := s.framer.ReadMessage(s.r)
		if err != nil {
			s.failAll(&TransportError{Op: "read", Cause: err})
			return
		}
		id, ok := peekMessageID(raw)
		if !ok {
			// Not an <rpc-reply> with a message-id we can correlate (e.g. a
			// malformed frame, or an unsolicited <notification>); drop it.
			continue
		}
		s.outMu.Lock()
		ch, exists := s.outstanding[id]
		if exists {
			delete(s.outstanding, id)
		}
		s.outMu.Unlock()
		if !exists {
			continue
		}
		ch <- rpcOutcome{raw: raw}
	}
}

func (s *Session) failAll(err error) {
	s.outMu.Lock()
	pending := s.outstanding
	s.outstanding = make(map[uint64]chan rpcOutcome)
	s.outMu.Unlock()
	for _, ch := range pending {
		ch <- rpcOutcome{err: err}
	}
	s.closeOnce.Do(func() { close(s.closed) })
}

// rpc allocates the next message-id, sends body wrapped in an <rpc> envelope,
// and blocks until the matching <rpc-reply> arrives, ctx is done, or the
// session closes.
func (s *Session) rpc(ctx context.Context, body []byte) (Reply, error) {
	s.sendMu.Lock()
	id := s.nextID
	s.nextID++

	s.outMu.Lock()
	if _, exists := s.outstanding[id]; exists {
		s.outMu.Unlock()
		s.sendMu.Unlock()
		return Reply{}, &MessageIdCollisionError{ID: id}
	}
	ch := make(chan rpcOutcome, 1)
	s.outstanding[id] = ch
	s.outMu.Unlock()

	req := rpcRequest{MessageID: id, Body: body}
	payload, err := xml.Marshal(req)
	if err != nil {
		s.sendMu.Unlock()
		s.outMu.Lock()
		delete(s.outstanding, id)
		s.outMu.Unlock()
		return Reply{}, fmt.Errorf("netconf: encoding rpc: %w", err)
	}
	writeErr := s.framer.WriteMessage(s.conn, payload)
	s.sendMu.Unlock()
	if writeErr != nil {
		s.outMu.Lock()
		delete(s.outstanding, id)
		s.outMu.Unlock()
		return Reply{}, &TransportError{Op: "write rpc", Cause: writeErr}
	}

	select {
	case out := <-ch:
		if out.err != nil {
			return Reply{}, out.err
		}
		return decodeReply(out.raw)
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	case <-s.closed:
		return Reply{}, &TransportError{Op: "rpc", Cause: fmt.Errorf("session closed while awaiting reply")}
	}
}

// messageIDProbe extracts just the message-id attribute of an <rpc-reply>,
// without decoding the rest of the message.
type messageIDProbe struct {
	XMLName   xml.Name
	MessageID string `xml:"message-id,attr"`
}

func peekMessageID(raw []byte) (uint64, bool) {
	var probe messageIDProbe
	if err := xml.Unmarshal(raw, &probe); err != nil {
		return 0, false
	}
	if probe.MessageID == "" {
		return 0, false
	}
	var id uint64
	if _, err := fmt.Sscanf(probe.MessageID, "%d", &id); err != nil {
		return 0, false
	}
	return id, true
}
