package policy

import (
	"bufio"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bgpfu/junos-agent/internal/irr"
	"github.com/bgpfu/junos-agent/internal/prefixset"
	"github.com/bgpfu/junos-agent/internal/rpsl"
)

// fakeIRR is a minimal in-process IRRd stand-in, mirroring the one in
// internal/irr's own tests, for driving an Evaluator end to end.
type fakeIRR struct {
	ln      net.Listener
	answers map[string]string
}

func newFakeIRR(t *testing.T, answers map[string]string) *fakeIRR {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	fs := &fakeIRR{ln: ln, answers: answers}
	go fs.serve()
	t.Cleanup(func() { ln.Close() })
	return fs
}

func (fs *fakeIRR) serve() {
	conn, err := fs.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	r := bufio.NewReader(conn)
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

func frameSuccess(payload string) string {
	return fmt.Sprintf("A%d\n%s\nC\n", len(payload), payload)
}

func dialFake(t *testing.T, fs *fakeIRR) *irr.Client {
	t.Helper()
	c, err := irr.Dial(fs.ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// Scenario 2: create from scratch via an as-set.
func TestScenarioCreateFromScratch(t *testing.T) {
	fs := newFakeIRR(t, map[string]string{
		"!iAS-FOO,1": frameSuccess("AS65000"),
		"!gAS65000":  frameSuccess("192.0.2.0/24 198.51.100.0/23"),
		"!6AS65000":  frameSuccess("2001:db8::/32"),
	})
	c := dialFake(t, fs)
	ev := NewEvaluator(c, "")

	expr, err := rpsl.Parse("AS-FOO")
	require.NoError(t, err)
	v4, v6, err := ev.Eval(expr)
	require.NoError(t, err)

	require.Len(t, v4.Ranges(), 2)
	require.Len(t, v6.Ranges(), 1)
}

// Scenario 5: range operator applied to a literal prefix.
func TestScenarioRangeOperator(t *testing.T) {
	fs := newFakeIRR(t, nil)
	c := dialFake(t, fs)
	ev := NewEvaluator(c, "")

	expr, err := rpsl.Parse("{0.0.0.0/0^8-24}")
	require.NoError(t, err)
	v4, v6, err := ev.Eval(expr)
	require.NoError(t, err)

	require.Len(t, v4.Ranges(), 1)
	require.Equal(t, uint8(8), v4.Ranges()[0].Lower)
	require.Equal(t, uint8(24), v4.Ranges()[0].Upper)
	require.True(t, v6.IsEmpty())
}

// Scenario 7: IRR KeyNotFound on one family yields an empty set for that
// family without surfacing an error.
func TestScenarioKeyNotFoundIsSoft(t *testing.T) {
	fs := newFakeIRR(t, map[string]string{
		"!gAS65000": frameSuccess("192.0.2.0/24"),
		"!6AS65000": "D\n",
	})
	c := dialFake(t, fs)
	ev := NewEvaluator(c, "")

	expr, err := rpsl.Parse("AS65000")
	require.NoError(t, err)
	v4, v6, err := ev.Eval(expr)
	require.NoError(t, err)

	require.Len(t, v4.Ranges(), 1)
	require.True(t, v6.IsEmpty())
}

// Scenario 6: a malformed candidate filter expression is marked failed, not
// absent, so the previously-installed entry survives Differences unchanged.
func TestScenarioMalformedFilterPreservesInstalled(t *testing.T) {
	_, err := rpsl.Parse("error!")
	require.Error(t, err)

	base, err := netip.ParsePrefix("10.0.0.0/8")
	require.NoError(t, err)
	r, err := prefixset.NewRange(base, 8, 8)
	require.NoError(t, err)
	v4, err := prefixset.FromRanges(prefixset.V4, r)
	require.NoError(t, err)

	installed := map[string]Statement{
		"fltr-bad": {Name: "fltr-bad", IPv4: v4},
	}
	evaluated := map[string]EvalOutcome{}
	MarkFailed(evaluated, []string{"fltr-bad"})

	updates := Differences(installed, evaluated, time.Now())
	require.Empty(t, updates)
}

// A NOT/AND/OR composite expression must evaluate set-theoretically: this
// would have caught prefixset.Complement silently no-opping on anything but
// the universal base (spec.md §4.2, §8 "A & !A = empty").
func TestScenarioCompositeNotAndOr(t *testing.T) {
	fs := newFakeIRR(t, nil)
	c := dialFake(t, fs)
	ev := NewEvaluator(c, "")

	expr, err := rpsl.Parse("{192.0.2.0/24,198.51.100.0/24} AND (NOT {192.0.2.0/24})")
	require.NoError(t, err)
	v4, v6, err := ev.Eval(expr)
	require.NoError(t, err)

	require.Len(t, v4.Ranges(), 1)
	require.Equal(t, "198.51.100.0/24", v4.Ranges()[0].Base.String())
	require.True(t, v6.IsEmpty())

	orExpr, err := rpsl.Parse("{192.0.2.0/24} OR {198.51.100.0/24}")
	require.NoError(t, err)
	orV4, _, err := ev.Eval(orExpr)
	require.NoError(t, err)
	require.Len(t, orV4.Ranges(), 2)
}

// Scenario 3: a name with no candidate at all (distinct from one whose
// candidate failed to parse/evaluate) is deleted.
func TestScenarioDeleteStale(t *testing.T) {
	base, err := netip.ParsePrefix("10.0.0.0/8")
	require.NoError(t, err)
	r, err := prefixset.NewRange(base, 8, 8)
	require.NoError(t, err)
	v4, err := prefixset.FromRanges(prefixset.V4, r)
	require.NoError(t, err)

	installed := map[string]Statement{
		"fltr-old": {Name: "fltr-old", IPv4: v4},
	}
	updates := Differences(installed, map[string]EvalOutcome{}, time.Now())
	require.Len(t, updates, 1)
	del, ok := updates[0].(Delete)
	require.True(t, ok)
	require.Equal(t, "fltr-old", del.Name)
}
