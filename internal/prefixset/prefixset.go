// Package prefixset implements the ordered prefix-range container used by the
// filter evaluator and policy differ. It is treated by the rest of this module
// as a black box: a PrefixSet supports union, intersection, complement, and
// set-difference over ranges of a single address family, plus iteration over
// its canonical form. Callers never reach into a PrefixSet's internals.
package prefixset

import (
	"fmt"
	"net/netip"
	"sort"
)

// Family distinguishes the two address families a PrefixSet can hold.
type Family int

const (
	// V4 is the IPv4 family; the maximum prefix length is 32.
	V4 Family = iota
	// V6 is the IPv6 family; the maximum prefix length is 128.
	V6
)

// Max returns the maximum prefix length for the family.
func (f Family) Max() uint8 {
	if f == V4 {
		return 32
	}
	return 128
}

func (f Family) String() string {
	if f == V4 {
		return "ipv4"
	}
	return "ipv6"
}

// FamilyOf returns the address family of p, after unmapping any 4-in-6 form.
func FamilyOf(p netip.Prefix) Family {
	if p.Addr().Is4() || p.Addr().Is4In6() {
		return V4
	}
	return V6
}

// Range is a base prefix together with an inclusive bound on the length of
// more-specifics it denotes. It represents every prefix Q that is a more- or
// equally-specific subprefix of Base with Lower <= Q.Bits() <= Upper.
type Range struct {
	Base  netip.Prefix
	Lower uint8
	Upper uint8
}

// NewRange constructs a canonical Range, masking Base to its own length.
func NewRange(base netip.Prefix, lower, upper uint8) (Range, error) {
	base = base.Masked()
	fam := FamilyOf(base)
	baseLen := uint8(base.Bits())
	if lower > upper {
		return Range{}, fmt.Errorf("prefixset: invalid range bounds %d-%d for %s", lower, upper, base)
	}
	if baseLen > lower || upper > fam.Max() {
		return Range{}, fmt.Errorf("prefixset: range bounds %d-%d out of bounds for base %s (family max %d)", lower, upper, base, fam.Max())
	}
	return Range{Base: base, Lower: lower, Upper: upper}, nil
}

// Family reports the address family of r.
func (r Range) Family() Family { return FamilyOf(r.Base) }

func (r Range) String() string {
	return fmt.Sprintf("%s,%d,%d", r.Base, r.Lower, r.Upper)
}

// Set is a set of Ranges of a single address family, kept in the form
// canonicalise produces. The zero Set is the empty set; use Universe for the
// universal set.
type Set struct {
	family Family
	ranges []Range
}

// Empty returns the empty set for fam.
func Empty(fam Family) Set {
	return Set{family: fam}
}

// Universe returns the universal set for fam: the single range spanning every
// prefix length from 0 to fam.Max().
func Universe(fam Family) Set {
	base := netip.PrefixFrom(zeroAddr(fam), 0)
	return Set{family: fam, ranges: []Range{{Base: base, Lower: 0, Upper: fam.Max()}}}
}

func zeroAddr(fam Family) netip.Addr {
	if fam == V4 {
		return netip.IPv4Unspecified()
	}
	return netip.IPv6Unspecified()
}

// FromRanges builds a canonical Set from an arbitrary (possibly overlapping)
// list of ranges, all of which must share the same family.
func FromRanges(fam Family, rs ...Range) (Set, error) {
	for _, r := range rs {
		if r.Family() != fam {
			return Set{}, fmt.Errorf("prefixset: range %s is not in family %s", r, fam)
		}
	}
	s := Set{family: fam, ranges: append([]Range(nil), rs...)}
	return s.canonicalise(), nil
}

// Family reports the address family of s.
func (s Set) Family() Family { return s.family }

// IsEmpty reports whether s denotes no prefixes.
func (s Set) IsEmpty() bool { return len(s.ranges) == 0 }

// Ranges returns the canonical ranges of s in ascending order. No two of them
// share a base with overlapping length windows and none is wholly covered by
// another, but ranges on different bases may still denote some of the same
// prefixes. The returned slice must not be mutated.
func (s Set) Ranges() []Range { return s.ranges }

// Equal reports whether s and other denote the same set of prefixes. Two
// ranges can denote identical prefixes from different bases (e.g. a pair of
// sibling subtrees recombining into their parent's span), so equality is
// decided by symmetric difference rather than structural range comparison.
func (s Set) Equal(other Set) bool {
	if s.IsEmpty() && other.IsEmpty() {
		return true
	}
	if s.family != other.family {
		return false
	}
	return s.Difference(other).IsEmpty() && other.Difference(s).IsEmpty()
}

// Union returns the set of prefixes in s or other (or both).
func (s Set) Union(other Set) Set {
	s.mustSameFamily(other)
	merged := append(append([]Range(nil), s.ranges...), other.ranges...)
	return Set{family: s.family, ranges: merged}.canonicalise()
}

// Intersect returns the set of prefixes in both s and other.
func (s Set) Intersect(other Set) Set {
	s.mustSameFamily(other)
	var out []Range
	for _, a := range s.ranges {
		for _, b := range other.ranges {
			if r, ok := intersectRange(a, b); ok {
				out = append(out, r)
			}
		}
	}
	return Set{family: s.family, ranges: out}.canonicalise()
}

// Complement returns the set of prefixes of s.Family() that are not in s.
func (s Set) Complement() Set {
	universe := Universe(s.family)
	return universe.Difference(s)
}

// Difference returns the set of prefixes in s but not in other.
func (s Set) Difference(other Set) Set {
	s.mustSameFamily(other)
	if other.IsEmpty() {
		return s.canonicalise()
	}
	result := s.canonicalise()
	for _, sub := range other.ranges {
		var next []Range
		for _, r := range result.ranges {
			next = append(next, subtractRange(r, sub)...)
		}
		result = Set{family: s.family, ranges: next}.canonicalise()
	}
	return result
}

func (s Set) mustSameFamily(other Set) {
	if !s.IsEmpty() && !other.IsEmpty() && s.family != other.family {
		panic(fmt.Sprintf("prefixset: mismatched families %s and %s", s.family, other.family))
	}
}

// canonicalise sorts the ranges, merges overlapping or adjacent windows that
// share a base, and removes any range wholly covered by another. Ranges on
// different bases that only partly overlap are kept as they are, so two Sets
// denoting the same prefixes can hold different range lists (see Equal).
func (s Set) canonicalise() Set {
	if len(s.ranges) == 0 {
		return s
	}
	fam := s.family
	for _, r := range s.ranges {
		fam = r.Family()
	}
	// Group the ranges by base and merge each base's length windows, then drop
	// any merged range that a range on another base wholly covers.
	byBase := map[netip.Prefix][]Range{}
	order := []netip.Prefix{}
	for _, r := range s.ranges {
		if _, ok := byBase[r.Base]; !ok {
			order = append(order, r.Base)
		}
		byBase[r.Base] = append(byBase[r.Base], r)
	}
	var merged []Range
	for _, b := range order {
		merged = append(merged, mergeWindows(byBase[b])...)
	}
	merged = absorbCoveredRanges(merged)
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Base.Addr() != merged[j].Base.Addr() {
			return merged[i].Base.Addr().Less(merged[j].Base.Addr())
		}
		if merged[i].Base.Bits() != merged[j].Base.Bits() {
			return merged[i].Base.Bits() < merged[j].Base.Bits()
		}
		return merged[i].Lower < merged[j].Lower
	})
	return Set{family: fam, ranges: merged}
}

// mergeWindows merges the length-windows of ranges that share a single base
// into the minimal list of disjoint windows whose union is the same. Windows
// are merged only when they overlap or are adjacent (no gap in length between
// them); a gap must be preserved, since it denotes lengths the set excludes.
func mergeWindows(rs []Range) []Range {
	if len(rs) == 0 {
		return nil
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].Lower < rs[j].Lower })
	out := []Range{rs[0]}
	for _, r := range rs[1:] {
		last := &out[len(out)-1]
		if r.Lower <= last.Upper || r.Lower == last.Upper+1 {
			if r.Upper > last.Upper {
				last.Upper = r.Upper
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// absorbCoveredRanges removes any range fully covered by another (same base,
// contained length-window, or a less-specific range whose window covers the
// more-specific range's base length and beyond).
func absorbCoveredRanges(rs []Range) []Range {
	keep := make([]bool, len(rs))
	for i := range rs {
		keep[i] = true
	}
	for i, a := range rs {
		if !keep[i] {
			continue
		}
		for j, b := range rs {
			if i == j || !keep[j] {
				continue
			}
			if covers(a, b) && !covers(b, a) {
				keep[j] = false
			} else if covers(a, b) && covers(b, a) && j < i {
				keep[j] = false
			}
		}
	}
	out := make([]Range, 0, len(rs))
	for i, r := range rs {
		if keep[i] {
			out = append(out, r)
		}
	}
	return out
}

// covers reports whether every prefix denoted by b is also denoted by a.
func covers(a, b Range) bool {
	if !isSubPrefix(b.Base, a.Base) {
		return false
	}
	baseBits := uint8(a.Base.Bits())
	bBaseBits := uint8(b.Base.Bits())
	if bBaseBits < baseBits {
		return false
	}
	// Every length l in [b.Lower, b.Upper] that is reachable from b.Base must
	// also be reachable from a.Base within [a.Lower, a.Upper]. Since b.Base is
	// a sub-prefix of a.Base, any length >= bBaseBits is reachable from both;
	// we only need the window containment.
	return b.Lower >= a.Lower && b.Upper <= a.Upper
}

func isSubPrefix(p, of netip.Prefix) bool {
	if of.Bits() > p.Bits() {
		return false
	}
	return of.Contains(p.Addr()) || of == p
}

func intersectRange(a, b Range) (Range, bool) {
	switch {
	case isSubPrefix(b.Base, a.Base):
		lower := maxU8(a.Lower, b.Lower)
		upper := minU8(a.Upper, b.Upper)
		if lower > upper || uint8(b.Base.Bits()) > lower {
			return Range{}, false
		}
		return Range{Base: b.Base, Lower: lower, Upper: upper}, true
	case isSubPrefix(a.Base, b.Base):
		lower := maxU8(a.Lower, b.Lower)
		upper := minU8(a.Upper, b.Upper)
		if lower > upper || uint8(a.Base.Bits()) > lower {
			return Range{}, false
		}
		return Range{Base: a.Base, Lower: lower, Upper: upper}, true
	default:
		return Range{}, false
	}
}

// subtractRange removes every prefix denoted by sub from r, handling all
// three base relationships: identical bases, sub's base strictly more
// specific than r's (punching a hole via sibling subtrees), and sub's base
// strictly less specific than r's (the overlap is removed wholesale, since
// at any affected length every prefix r denotes is also one sub denotes).
func subtractRange(r, sub Range) []Range {
	switch {
	case sub.Base == r.Base:
		return subtractSameBase(r, sub)
	case isSubPrefix(sub.Base, r.Base):
		return subtractDescendant(r, sub)
	case isSubPrefix(r.Base, sub.Base):
		return subtractAncestor(r, sub)
	default:
		return []Range{r}
	}
}

// subtractSameBase handles sub.Base == r.Base: the two windows live on the
// same length axis, so subtraction is a plain interval punch.
func subtractSameBase(r, sub Range) []Range {
	var out []Range
	if r.Lower < sub.Lower {
		out = append(out, Range{Base: r.Base, Lower: r.Lower, Upper: minU8(r.Upper, sub.Lower-1)})
	}
	if r.Upper > sub.Upper {
		lo := maxU8(r.Lower, sub.Upper+1)
		if lo <= r.Upper {
			out = append(out, Range{Base: r.Base, Lower: lo, Upper: r.Upper})
		}
	}
	return out
}

// subtractDescendant handles sub.Base strictly more specific than r.Base.
// At any length L in both windows, sub removes exactly the descendants of
// sub.Base — a strict subset of r's descendants at L — so the remainder at
// that length is not expressible as a single (r.Base, L, L) range. It is
// instead the union of the sibling subtrees branching off the path from
// r.Base down to sub.Base, each of which is wholly disjoint from sub.Base.
func subtractDescendant(r, sub Range) []Range {
	if sub.Upper < r.Lower || sub.Lower > r.Upper {
		return []Range{r}
	}
	lo := maxU8(r.Lower, sub.Lower)
	hi := minU8(r.Upper, sub.Upper)
	var out []Range
	if r.Lower < lo {
		out = append(out, Range{Base: r.Base, Lower: r.Lower, Upper: lo - 1})
	}
	if hi < r.Upper {
		out = append(out, Range{Base: r.Base, Lower: hi + 1, Upper: r.Upper})
	}
	for d := uint8(r.Base.Bits()); d < uint8(sub.Base.Bits()); d++ {
		out = append(out, Range{Base: siblingAt(sub.Base, d), Lower: lo, Upper: hi})
	}
	return out
}

// subtractAncestor handles sub.Base strictly less specific than r.Base: any
// prefix r denotes at a length within sub's window is also a descendant of
// sub.Base at that length, so it is removed outright; only the length bands
// outside sub's window survive.
func subtractAncestor(r, sub Range) []Range {
	if sub.Upper < r.Lower || sub.Lower > r.Upper {
		return []Range{r}
	}
	lo := maxU8(r.Lower, sub.Lower)
	hi := minU8(r.Upper, sub.Upper)
	var out []Range
	if r.Lower < lo {
		out = append(out, Range{Base: r.Base, Lower: r.Lower, Upper: lo - 1})
	}
	if hi < r.Upper {
		out = append(out, Range{Base: r.Base, Lower: hi + 1, Upper: r.Upper})
	}
	return out
}

// siblingAt returns the prefix of length depth+1 that branches away from
// target's path at depth: the ancestor of target truncated to depth+1 bits,
// with its final bit flipped. Its subtree is wholly disjoint from target's.
func siblingAt(target netip.Prefix, depth uint8) netip.Prefix {
	ancestor := netip.PrefixFrom(target.Addr(), int(depth)+1).Masked()
	flipped := flipBit(ancestor.Addr(), depth)
	return netip.PrefixFrom(flipped, int(depth)+1).Masked()
}

// flipBit toggles the bit at the given 0-indexed position (counted from the
// most significant bit) in addr's family-relative address bytes.
func flipBit(addr netip.Addr, bit uint8) netip.Addr {
	b := append([]byte(nil), addr.AsSlice()...)
	byteIdx := bit / 8
	bitInByte := 7 - bit%8
	b[byteIdx] ^= 1 << bitInByte
	flipped, _ := netip.AddrFromSlice(b)
	return flipped
}

func maxU8(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}

func minU8(a, b uint8) uint8 {
	if a < b {
		return a
	}
	return b
}
