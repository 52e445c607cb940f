package irr

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer is a minimal in-process IRRd stand-in used to test the wire
// protocol without a real whois server.
type fakeServer struct {
	ln      net.Listener
	answers map[string]string // query line -> canned frame (without leading "!!\n" handling)
}

func newFakeServer(t *testing.T, answers map[string]string) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	fs := &fakeServer{ln: ln, answers: answers}
	go fs.serve(t)
	t.Cleanup(func() { ln.Close() })
	return fs
}

func (fs *fakeServer) serve(t *testing.T) {
	conn, err := fs.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	r := bufio.NewReader(conn)

	// mode-setting line
	if _, err := r.ReadString('\n'); err != nil {
		return
	}
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		frame, ok := fs.answers[line]
		if !ok {
			frame = "D\n"
		}
		if _, err := conn.Write([]byte(frame)); err != nil {
			return
		}
	}
}

func TestClientSuccessFrame(t *testing.T) {
	fs := newFakeServer(t, map[string]string{
		"!gAS65000": frameSuccess("192.0.2.0/24 198.51.100.0/23"),
	})
	c, err := Dial(fs.ln.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	err = c.sendQuery(Query{Kind: Ipv4Routes, Key: "AS65000"})
	require.NoError(t, err)
	resp := c.readResponse(Query{Kind: Ipv4Routes, Key: "AS65000"})
	require.NoError(t, resp.Err)
	assert.Equal(t, []string{"192.0.2.0/24", "198.51.100.0/23"}, resp.Lines)
}

func TestClientKeyNotFound(t *testing.T) {
	fs := newFakeServer(t, map[string]string{
		"!6AS65000": "D\n",
	})
	c, err := Dial(fs.ln.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.sendQuery(Query{Kind: Ipv6Routes, Key: "AS65000"}))
	resp := c.readResponse(Query{Kind: Ipv6Routes, Key: "AS65000"})
	assert.True(t, IsSoft(resp.Err))
}

func TestPipelineOrdering(t *testing.T) {
	fs := newFakeServer(t, map[string]string{
		"!gAS1": frameSuccess("10.0.0.0/8"),
		"!gAS2": frameSuccess("10.1.0.0/16"),
		"!gAS3": frameSuccess("10.2.0.0/16"),
	})
	c, err := Dial(fs.ln.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	p := NewPipeline(c, 2)
	go func() {
		for _, asn := range []string{"AS1", "AS2", "AS3"} {
			require.NoError(t, p.Submit(Query{Kind: Ipv4Routes, Key: asn}))
		}
		p.Close()
	}()

	var got []string
	for resp := range p.Responses() {
		require.NoError(t, resp.Err)
		got = append(got, resp.Query.Key)
	}
	assert.Equal(t, []string{"AS1", "AS2", "AS3"}, got)
}

func TestFanOut(t *testing.T) {
	fs := newFakeServer(t, map[string]string{
		"!iAS-FOO,1": frameSuccess("AS65000 AS65001"),
		"!gAS65000":  frameSuccess("192.0.2.0/24"),
		"!gAS65001":  frameSuccess("198.51.100.0/24"),
	})
	c, err := Dial(fs.ln.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	seed := []Query{{Kind: AsSetMembersRecursive, Key: "AS-FOO"}}
	responses, err := FanOut(c, 4, seed, func(r Response) []Query {
		if r.Query.Kind != AsSetMembersRecursive {
			return nil
		}
		var out []Query
		for _, asn := range r.Lines {
			out = append(out, Query{Kind: Ipv4Routes, Key: asn})
		}
		return out
	})
	require.NoError(t, err)
	require.Len(t, responses, 3)
}

func frameSuccess(payload string) string {
	return fmt.Sprintf("A%d\n%s\nC\n", len(payload), payload)
}
