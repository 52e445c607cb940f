package netconf

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestSession wires a Session directly to one end of a net.Pipe, skipping
// TLS dial and hello exchange so tests can drive the wire protocol directly.
func newTestSession(t *testing.T, version string, caps Capabilities) (*Session, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	s := &Session{
		conn:        client,
		framer:      framerFor(version),
		r:           bufio.NewReader(client),
		outstanding: make(map[uint64]chan rpcOutcome),
		closed:      make(chan struct{}),
		Version:     version,
		SessionID:   101,
		ServerCaps:  caps,
	}
	go s.recvLoop()
	t.Cleanup(func() { s.Close() })
	return s, server
}

// fakeDevice reads framed rpc requests off conn and replies according to
// reply(body) => raw rpc-reply bytes (without framing).
func fakeDevice(t *testing.T, conn net.Conn, framer framer, reply func(body []byte) []byte) {
	t.Helper()
	r := bufio.NewReader(conn)
	go func() {
		for {
			raw, err := framer.ReadMessage(r)
			if err != nil {
				return
			}
			out := reply(raw)
			if out == nil {
				continue
			}
			if err := framer.WriteMessage(conn, out); err != nil {
				return
			}
		}
	}()
}

func okReplyFor(id uint64) []byte {
	return []byte(fmt.Sprintf(`<rpc-reply message-id="%d" xmlns="urn:ietf:params:xml:ns:netconf:base:1.0"><ok/></rpc-reply>`, id))
}

func extractMessageID(raw []byte) uint64 {
	var id uint64
	s := string(raw)
	idx := strings.Index(s, `message-id="`)
	fmt.Sscanf(s[idx+len(`message-id="`):], "%d", &id)
	return id
}

func TestRPCRoundTrip(t *testing.T) {
	s, conn := newTestSession(t, CapBase10, NewCapabilities([]string{CapBase10}))
	fakeDevice(t, conn, eomFramer{}, func(body []byte) []byte {
		return okReplyFor(extractMessageID(body))
	})

	reply, err := s.rpc(context.Background(), []byte(`<get/>`))
	require.NoError(t, err)
	require.True(t, reply.Ok)
}

func TestRPCOutOfOrderReplies(t *testing.T) {
	s, conn := newTestSession(t, CapBase10, NewCapabilities([]string{CapBase10}))

	var mu sync.Mutex
	pending := make(map[uint64][]byte)
	release := make(chan uint64, 8)

	r := bufio.NewReader(conn)
	go func() {
		for {
			raw, err := eomFramer{}.ReadMessage(r)
			if err != nil {
				return
			}
			id := extractMessageID(raw)
			mu.Lock()
			pending[id] = okReplyFor(id)
			mu.Unlock()
		}
	}()
	go func() {
		for id := range release {
			mu.Lock()
			reply := pending[id]
			mu.Unlock()
			eomFramer{}.WriteMessage(conn, reply)
		}
	}()

	// Fire two RPCs concurrently, then answer the second one first.
	var wg sync.WaitGroup
	results := make(map[int]error)
	var resMu sync.Mutex
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := s.rpc(context.Background(), []byte(`<get/>`))
		resMu.Lock()
		results[0] = err
		resMu.Unlock()
	}()
	go func() {
		defer wg.Done()
		_, err := s.rpc(context.Background(), []byte(`<get/>`))
		resMu.Lock()
		results[1] = err
		resMu.Unlock()
	}()

	time.Sleep(50 * time.Millisecond)
	release <- 1
	release <- 0
	close(release)
	wg.Wait()

	require.NoError(t, results[0])
	require.NoError(t, results[1])
}

func TestRPCContextCancellation(t *testing.T) {
	s, conn := newTestSession(t, CapBase10, NewCapabilities([]string{CapBase10}))
	// The device reads the request but never answers it.
	fakeDevice(t, conn, eomFramer{}, func([]byte) []byte { return nil })
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.rpc(ctx, []byte(`<get/>`))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCommitConfirmedRequiresCapability(t *testing.T) {
	s, _ := newTestSession(t, CapBase10, NewCapabilities([]string{CapBase10}))
	_, err := s.Commit(context.Background(), CommitOptions{Confirmed: true})
	require.Error(t, err)
	var capErr *UnsupportedOperationError
	require.ErrorAs(t, err, &capErr)
}

func TestDeleteConfigRejectsRunning(t *testing.T) {
	s, _ := newTestSession(t, CapBase10, NewCapabilities([]string{CapBase10}))
	_, err := s.DeleteConfig(context.Background(), Running)
	require.Error(t, err)
	var paramErr *UnsupportedParameterValueError
	require.ErrorAs(t, err, &paramErr)
}

func TestOpenDBRejectsSecondConcurrentOpen(t *testing.T) {
	s, conn := newTestSession(t, CapBase10, NewCapabilities([]string{CapBase10}))
	fakeDevice(t, conn, eomFramer{}, func(body []byte) []byte {
		return okReplyFor(extractMessageID(body))
	})

	ctx := context.Background()
	db, err := s.OpenDB(ctx, "first")
	require.NoError(t, err)

	_, err = s.OpenDB(ctx, "second")
	require.Error(t, err)
	var badState *BadStateError
	require.ErrorAs(t, err, &badState)

	require.NoError(t, db.Close(ctx))

	// Once closed, a fresh open is allowed again.
	db2, err := s.OpenDB(ctx, "third")
	require.NoError(t, err)
	require.NoError(t, db2.Close(ctx))
}

func TestEphemeralDBRejectsUseAfterClose(t *testing.T) {
	s, conn := newTestSession(t, CapBase10, NewCapabilities([]string{CapBase10}))
	fakeDevice(t, conn, eomFramer{}, func(body []byte) []byte {
		return okReplyFor(extractMessageID(body))
	})

	ctx := context.Background()
	db, err := s.OpenDB(ctx, "closing")
	require.NoError(t, err)
	require.NoError(t, db.Close(ctx))

	_, err = db.GetConfig(ctx, "")
	require.Error(t, err)
	var badState *BadStateError
	require.ErrorAs(t, err, &badState)
}

func TestCommitRejectsConfirmedWithForceSynchronize(t *testing.T) {
	s, conn := newTestSession(t, CapBase10, NewCapabilities([]string{CapBase10, CapConfirmedCommit10}))
	fakeDevice(t, conn, eomFramer{}, func(body []byte) []byte {
		return okReplyFor(extractMessageID(body))
	})

	ctx := context.Background()
	db, err := s.OpenDB(ctx, "sync-test")
	require.NoError(t, err)

	_, err = db.Commit(ctx, CommitOptions{Confirmed: true}, JunosSyncForceSynchronize)
	require.Error(t, err)
	var paramErr *UnsupportedParameterValueError
	require.ErrorAs(t, err, &paramErr)
}
