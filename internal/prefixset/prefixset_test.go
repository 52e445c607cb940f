package prefixset

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRange(t *testing.T, base string, lo, up uint8) Range {
	t.Helper()
	p := netip.MustParsePrefix(base)
	r, err := NewRange(p, lo, up)
	require.NoError(t, err)
	return r
}

func TestAlgebraLaws(t *testing.T) {
	a, err := FromRanges(V4, mustRange(t, "192.0.2.0/24", 24, 32))
	require.NoError(t, err)
	b, err := FromRanges(V4, mustRange(t, "198.51.100.0/24", 24, 24))
	require.NoError(t, err)

	assert.True(t, a.Union(a).Equal(a), "A | A = A")
	assert.True(t, a.Intersect(a).Equal(a), "A & A = A")
	assert.True(t, a.Intersect(a.Complement()).IsEmpty(), "A & !A = empty")
	assert.True(t, a.Union(a.Complement()).Equal(Universe(V4)), "A | !A = universe")
	assert.True(t, a.Union(b).Equal(b.Union(a)), "union commutes")
	assert.True(t, a.Intersect(b).Equal(b.Intersect(a)), "intersect commutes")

	c, err := FromRanges(V4, mustRange(t, "203.0.113.0/24", 24, 24))
	require.NoError(t, err)
	left := a.Union(b).Union(c)
	right := a.Union(b.Union(c))
	assert.True(t, left.Equal(right), "union associates")
}

// Two ranges sharing a base but with disjoint, non-adjacent length windows
// must not be merged into their spanning min/max window: that would wrongly
// include lengths neither range denoted.
func TestCanonicaliseDoesNotOverMergeDisjointWindows(t *testing.T) {
	s, err := FromRanges(V4,
		mustRange(t, "10.0.0.0/8", 16, 20),
		mustRange(t, "10.0.0.0/8", 24, 28),
	)
	require.NoError(t, err)
	require.Len(t, s.Ranges(), 2)
	for _, r := range s.Ranges() {
		assert.True(t, (r.Lower == 16 && r.Upper == 20) || (r.Lower == 24 && r.Upper == 28), "unexpected merged range %s", r)
	}
}

// Adjacent (no-gap) windows on the same base must still merge into one.
func TestCanonicaliseMergesAdjacentWindows(t *testing.T) {
	s, err := FromRanges(V4,
		mustRange(t, "10.0.0.0/8", 16, 20),
		mustRange(t, "10.0.0.0/8", 21, 24),
	)
	require.NoError(t, err)
	require.Len(t, s.Ranges(), 1)
	assert.Equal(t, uint8(16), s.Ranges()[0].Lower)
	assert.Equal(t, uint8(24), s.Ranges()[0].Upper)
}

// Complement must punch a hole out of the universe at an arbitrary base, not
// just the universal base itself (this is the case Union(Complement) = A|!A
// in TestAlgebraLaws exercises, isolated here against the universe directly).
func TestComplementOfNonUniversalBase(t *testing.T) {
	a, err := FromRanges(V4, mustRange(t, "192.0.2.0/24", 24, 24))
	require.NoError(t, err)
	comp := a.Complement()
	require.False(t, comp.IsEmpty())

	other, err := FromRanges(V4, mustRange(t, "198.51.100.0/24", 24, 24))
	require.NoError(t, err)
	assert.True(t, comp.Intersect(other).Equal(other), "198.51.100.0/24 should survive complementing 192.0.2.0/24")
	assert.True(t, comp.Intersect(a).IsEmpty(), "192.0.2.0/24 must not survive its own complement")
}

// Subtracting a more-specific range (sub.Base a strict descendant of r.Base)
// must punch a hole via sibling subtrees, not no-op.
func TestDifferenceAcrossDescendantBase(t *testing.T) {
	whole, err := FromRanges(V4, mustRange(t, "10.0.0.0/8", 8, 32))
	require.NoError(t, err)
	hole, err := FromRanges(V4, mustRange(t, "10.1.0.0/16", 16, 16))
	require.NoError(t, err)

	diff := whole.Difference(hole)
	assert.True(t, diff.Intersect(hole).IsEmpty(), "the excised /16 must not survive")

	elsewhere, err := FromRanges(V4, mustRange(t, "10.2.0.0/16", 16, 16))
	require.NoError(t, err)
	assert.True(t, diff.Intersect(elsewhere).Equal(elsewhere), "an unrelated /16 under the same /8 must survive")
}

// Subtracting a less-specific range (sub.Base a strict ancestor of r.Base)
// removes r wholesale once sub's window reaches r.Base's length.
func TestDifferenceAcrossAncestorBase(t *testing.T) {
	specific, err := FromRanges(V4, mustRange(t, "10.1.0.0/16", 16, 16))
	require.NoError(t, err)
	broad, err := FromRanges(V4, mustRange(t, "10.0.0.0/8", 8, 24))
	require.NoError(t, err)

	assert.True(t, specific.Difference(broad).IsEmpty())
}

func TestCanonicaliseIdempotent(t *testing.T) {
	s, err := FromRanges(V4, mustRange(t, "10.0.0.0/8", 8, 24), mustRange(t, "10.0.0.0/8", 16, 32))
	require.NoError(t, err)
	once := s
	twice, err := FromRanges(s.Family(), once.Ranges()...)
	require.NoError(t, err)
	assert.True(t, once.Equal(twice))
}

func TestIterOrdering(t *testing.T) {
	s, err := FromRanges(V4,
		mustRange(t, "203.0.113.0/24", 24, 24),
		mustRange(t, "192.0.2.0/24", 24, 24),
		mustRange(t, "198.51.100.0/23", 23, 23),
	)
	require.NoError(t, err)
	ranges := s.Ranges()
	for i := 1; i < len(ranges); i++ {
		assert.False(t, ranges[i].Base.Addr().Less(ranges[i-1].Base.Addr()) && ranges[i].Base.Bits() <= ranges[i-1].Base.Bits())
	}
}

func TestDifferenceIncremental(t *testing.T) {
	old, err := FromRanges(V4,
		mustRange(t, "192.0.2.0/24", 24, 24),
		mustRange(t, "198.51.100.0/23", 23, 23),
	)
	require.NoError(t, err)
	updated, err := FromRanges(V4,
		mustRange(t, "192.0.2.0/24", 24, 24),
		mustRange(t, "203.0.113.0/24", 24, 24),
	)
	require.NoError(t, err)

	removed := old.Difference(updated)
	added := updated.Difference(old)

	require.Len(t, removed.Ranges(), 1)
	assert.Equal(t, "198.51.100.0/23", removed.Ranges()[0].Base.String())

	require.Len(t, added.Ranges(), 1)
	assert.Equal(t, "203.0.113.0/24", added.Ranges()[0].Base.String())
}

func TestRangeOperatorBounds(t *testing.T) {
	_, err := NewRange(netip.MustParsePrefix("0.0.0.0/0"), 8, 24)
	require.NoError(t, err)

	_, err = NewRange(netip.MustParsePrefix("10.0.0.0/16"), 8, 24)
	assert.Error(t, err, "lower below base length must be rejected")

	_, err = NewRange(netip.MustParsePrefix("0.0.0.0/0"), 24, 8)
	assert.Error(t, err, "lower > upper must be rejected")
}
