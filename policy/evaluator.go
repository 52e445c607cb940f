package policy

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bgpfu/junos-agent/internal/irr"
	"github.com/bgpfu/junos-agent/internal/prefixset"
	"github.com/bgpfu/junos-agent/internal/rpsl"
)

// maxRecursionDepth bounds filter-set resolution to break reference cycles
// within a single evaluation, per spec.md §9.
const maxRecursionDepth = 16

// Evaluator translates an RPSL mp-filter expression into a pair of resolved
// prefix sets using one long-lived IRR connection. It owns that connection
// exclusively: recursive resolution is sequential, preserving IRRd's FIFO
// response ordering (spec.md §4.2 "Concurrency contract").
type Evaluator struct {
	client *irr.Client
	peerAS string // configured ASN text (e.g. "AS65000") substituted for PeerAS; "" if unset

	memo map[memoKey]familyPair

	// Warn receives a non-fatal diagnostic for any dropped term or invalid
	// range application, for a failed filter-set lookup, and for a non-soft
	// IRR error on a route lookup, which is then treated as empty (spec.md
	// §4.2 "Partial failures" sink_error hook). Soft errors (see irr.IsSoft)
	// on route, as-set and route-set lookups yield an empty set without a
	// diagnostic. May be nil.
	Warn func(msg string, fields logrus.Fields)
}

type memoKey struct {
	class string
	name  string
}

type familyPair struct {
	v4, v6 prefixset.Set
}

// NewEvaluator builds an Evaluator bound to client. peerAS is the configured
// substitution for the "PeerAS" RPSL placeholder; pass "" if the device has
// none configured.
func NewEvaluator(client *irr.Client, peerAS string) *Evaluator {
	return &Evaluator{
		client: client,
		peerAS: peerAS,
		memo:   make(map[memoKey]familyPair),
	}
}

func (e *Evaluator) warn(msg string, fields logrus.Fields) {
	if e.Warn != nil {
		e.Warn(msg, fields)
	}
}

// Eval resolves expr into a (v4, v6) PrefixSet pair.
func (e *Evaluator) Eval(expr rpsl.FilterExpression) (prefixset.Set, prefixset.Set, error) {
	return e.evalExpr(expr, 0)
}

func (e *Evaluator) evalExpr(expr rpsl.FilterExpression, depth int) (prefixset.Set, prefixset.Set, error) {
	switch x := expr.(type) {
	case rpsl.Unit:
		return e.evalTerm(x.Term, depth)
	case rpsl.Not:
		v4, v6, err := e.evalTerm(x.Term, depth)
		if err != nil {
			return prefixset.Set{}, prefixset.Set{}, err
		}
		return v4.Complement(), v6.Complement(), nil
	case rpsl.And:
		lv4, lv6, err := e.evalTerm(x.Left, depth)
		if err != nil {
			return prefixset.Set{}, prefixset.Set{}, err
		}
		rv4, rv6, err := e.evalTerm(x.Right, depth)
		if err != nil {
			return prefixset.Set{}, prefixset.Set{}, err
		}
		return lv4.Intersect(rv4), lv6.Intersect(rv6), nil
	case rpsl.Or:
		lv4, lv6, err := e.evalTerm(x.Left, depth)
		if err != nil {
			return prefixset.Set{}, prefixset.Set{}, err
		}
		rv4, rv6, err := e.evalTerm(x.Right, depth)
		if err != nil {
			return prefixset.Set{}, prefixset.Set{}, err
		}
		return lv4.Union(rv4), lv6.Union(rv6), nil
	default:
		return prefixset.Set{}, prefixset.Set{}, fmt.Errorf("policy: unrecognised filter expression %T", expr)
	}
}

func (e *Evaluator) evalTerm(term rpsl.Term, depth int) (prefixset.Set, prefixset.Set, error) {
	switch t := term.(type) {
	case rpsl.LiteralTerm:
		v4, v6, err := e.evalPrefixSetExpr(t.Set, depth)
		if err != nil {
			return prefixset.Set{}, prefixset.Set{}, err
		}
		return e.applyOpToSet(v4, t.Op), e.applyOpToSet(v6, t.Op), nil
	case rpsl.Named:
		return e.evalNamedFilterSet(t.FilterSetName, depth)
	case rpsl.Parenthesised:
		return e.evalExpr(t.Expr, depth)
	default:
		return prefixset.Set{}, prefixset.Set{}, fmt.Errorf("policy: unrecognised term %T", term)
	}
}

func (e *Evaluator) evalNamedFilterSet(name string, depth int) (prefixset.Set, prefixset.Set, error) {
	if depth >= maxRecursionDepth {
		e.warn("filter-set recursion depth exceeded, treating as empty", logrus.Fields{"filter_set": name})
		return prefixset.Empty(prefixset.V4), prefixset.Empty(prefixset.V6), nil
	}
	key := memoKey{class: "filter-set", name: strings.ToUpper(name)}
	if cached, ok := e.memo[key]; ok {
		return cached.v4, cached.v6, nil
	}
	resp := e.client.Query(irr.RpslObjectQuery("filter-set", name))
	if resp.Err != nil {
		if irr.IsSoft(resp.Err) {
			e.warn("filter-set lookup failed, treating as empty", logrus.Fields{"filter_set": name, "error": resp.Err})
			return prefixset.Empty(prefixset.V4), prefixset.Empty(prefixset.V6), nil
		}
		return prefixset.Set{}, prefixset.Set{}, resp.Err
	}
	attr := extractAttribute(resp.Lines, "mp-filter")
	if attr == "" {
		attr = extractAttribute(resp.Lines, "filter")
	}
	if attr == "" {
		e.warn("filter-set object missing mp-filter/filter attribute, treating as empty", logrus.Fields{"filter_set": name})
		return prefixset.Empty(prefixset.V4), prefixset.Empty(prefixset.V6), nil
	}
	expr, err := rpsl.Parse(attr)
	if err != nil {
		e.warn("filter-set attribute failed to parse, treating as empty", logrus.Fields{"filter_set": name, "error": err})
		return prefixset.Empty(prefixset.V4), prefixset.Empty(prefixset.V6), nil
	}
	v4, v6, err := e.evalExpr(expr, depth+1)
	if err != nil {
		return prefixset.Set{}, prefixset.Set{}, err
	}
	e.memo[key] = familyPair{v4: v4, v6: v6}
	return v4, v6, nil
}

func (e *Evaluator) evalPrefixSetExpr(expr rpsl.PrefixSetExpr, depth int) (prefixset.Set, prefixset.Set, error) {
	switch x := expr.(type) {
	case rpsl.PrefixLiteral:
		return e.evalPrefixLiteral(x)
	case rpsl.PrefixSetNamed:
		return e.evalPrefixSetNamed(x, depth)
	default:
		return prefixset.Set{}, prefixset.Set{}, fmt.Errorf("policy: unrecognised prefix-set expression %T", expr)
	}
}

func (e *Evaluator) evalPrefixLiteral(lit rpsl.PrefixLiteral) (prefixset.Set, prefixset.Set, error) {
	var v4ranges, v6ranges []prefixset.Range
	for _, entry := range lit.Entries {
		p, err := netip.ParsePrefix(entry.Prefix)
		if err != nil {
			e.warn("malformed prefix literal dropped", logrus.Fields{"prefix": entry.Prefix, "error": err})
			continue
		}
		p = p.Masked()
		base := uint8(p.Bits())
		// An explicit length ("^n" or "^lo-hi") on a literal entry selects
		// more-specifics of the prefix, so it narrows the prefix's whole
		// more-specific window rather than the bare prefix.
		upper := base
		if entry.Op.Kind == rpsl.OpExact || entry.Op.Kind == rpsl.OpRange {
			upper = prefixset.FamilyOf(p).Max()
		}
		r, ok := applyRangeOp(prefixset.Range{Base: p, Lower: base, Upper: upper}, entry.Op)
		if !ok {
			e.warn("range operator produced empty range, dropped", logrus.Fields{"prefix": entry.Prefix, "op": entry.Op.String()})
			continue
		}
		if prefixset.FamilyOf(p) == prefixset.V4 {
			v4ranges = append(v4ranges, r)
		} else {
			v6ranges = append(v6ranges, r)
		}
	}
	v4, err := prefixset.FromRanges(prefixset.V4, v4ranges...)
	if err != nil {
		return prefixset.Set{}, prefixset.Set{}, err
	}
	v6, err := prefixset.FromRanges(prefixset.V6, v6ranges...)
	if err != nil {
		return prefixset.Set{}, prefixset.Set{}, err
	}
	return v4, v6, nil
}

func (e *Evaluator) evalPrefixSetNamed(named rpsl.PrefixSetNamed, depth int) (prefixset.Set, prefixset.Set, error) {
	switch named.Kind {
	case rpsl.Any:
		return prefixset.Universe(prefixset.V4), prefixset.Universe(prefixset.V6), nil
	case rpsl.PeerAs:
		if e.peerAS == "" {
			return prefixset.Set{}, prefixset.Set{}, fmt.Errorf("policy: PeerAS referenced but no peer ASN is configured")
		}
		return e.evalAutNum(e.peerAS)
	case rpsl.AutNum:
		return e.evalAutNum(named.Name)
	case rpsl.AsSet:
		return e.evalAsSet(named.Name, depth)
	case rpsl.RouteSet:
		return e.evalRouteSet(named.Name)
	default:
		return prefixset.Set{}, prefixset.Set{}, fmt.Errorf("policy: unrecognised named prefix-set kind %d", named.Kind)
	}
}

func (e *Evaluator) evalAutNum(asn string) (prefixset.Set, prefixset.Set, error) {
	key := memoKey{class: "aut-num", name: strings.ToUpper(asn)}
	if cached, ok := e.memo[key]; ok {
		return cached.v4, cached.v6, nil
	}
	v4, err := e.routesForASN(asn, irr.Ipv4Routes, prefixset.V4)
	if err != nil {
		return prefixset.Set{}, prefixset.Set{}, err
	}
	v6, err := e.routesForASN(asn, irr.Ipv6Routes, prefixset.V6)
	if err != nil {
		return prefixset.Set{}, prefixset.Set{}, err
	}
	e.memo[key] = familyPair{v4: v4, v6: v6}
	return v4, v6, nil
}

func (e *Evaluator) routesForASN(asn string, kind irr.Kind, fam prefixset.Family) (prefixset.Set, error) {
	resp := e.client.Query(irr.Query{Kind: kind, Key: asn})
	if resp.Err != nil {
		if irr.IsSoft(resp.Err) {
			return prefixset.Empty(fam), nil
		}
		e.warn("route lookup failed, treating as empty", logrus.Fields{"asn": asn, "error": resp.Err})
		return prefixset.Empty(fam), nil
	}
	return rangesFromPrefixTokens(resp.Lines, fam, e.warn)
}

func (e *Evaluator) evalAsSet(name string, depth int) (prefixset.Set, prefixset.Set, error) {
	key := memoKey{class: "as-set", name: strings.ToUpper(name)}
	if cached, ok := e.memo[key]; ok {
		return cached.v4, cached.v6, nil
	}
	if depth >= maxRecursionDepth {
		e.warn("as-set recursion depth exceeded, treating as empty", logrus.Fields{"as_set": name})
		return prefixset.Empty(prefixset.V4), prefixset.Empty(prefixset.V6), nil
	}
	resp := e.client.Query(irr.Query{Kind: irr.AsSetMembersRecursive, Key: name})
	if resp.Err != nil {
		if irr.IsSoft(resp.Err) {
			return prefixset.Empty(prefixset.V4), prefixset.Empty(prefixset.V6), nil
		}
		return prefixset.Set{}, prefixset.Set{}, resp.Err
	}

	var v4ranges, v6ranges []prefixset.Range
	for _, asn := range resp.Lines {
		asn = normaliseASN(asn)
		if asn == "" {
			continue
		}
		v4, v6, err := e.evalAutNum(asn)
		if err != nil {
			e.warn("as-set member ASN lookup failed, skipped", logrus.Fields{"as_set": name, "asn": asn, "error": err})
			continue
		}
		v4ranges = append(v4ranges, v4.Ranges()...)
		v6ranges = append(v6ranges, v6.Ranges()...)
	}
	v4, err := prefixset.FromRanges(prefixset.V4, v4ranges...)
	if err != nil {
		return prefixset.Set{}, prefixset.Set{}, err
	}
	v6, err := prefixset.FromRanges(prefixset.V6, v6ranges...)
	if err != nil {
		return prefixset.Set{}, prefixset.Set{}, err
	}
	e.memo[key] = familyPair{v4: v4, v6: v6}
	return v4, v6, nil
}

func (e *Evaluator) evalRouteSet(name string) (prefixset.Set, prefixset.Set, error) {
	key := memoKey{class: "route-set", name: strings.ToUpper(name)}
	if cached, ok := e.memo[key]; ok {
		return cached.v4, cached.v6, nil
	}
	resp := e.client.Query(irr.Query{Kind: irr.RouteSetMembersRecursive, Key: name})
	if resp.Err != nil {
		if irr.IsSoft(resp.Err) {
			return prefixset.Empty(prefixset.V4), prefixset.Empty(prefixset.V6), nil
		}
		return prefixset.Set{}, prefixset.Set{}, resp.Err
	}
	v4, err := rangesFromPrefixTokens(resp.Lines, prefixset.V4, e.warn)
	if err != nil {
		return prefixset.Set{}, prefixset.Set{}, err
	}
	v6, err := rangesFromPrefixTokens(resp.Lines, prefixset.V6, e.warn)
	if err != nil {
		return prefixset.Set{}, prefixset.Set{}, err
	}
	e.memo[key] = familyPair{v4: v4, v6: v6}
	return v4, v6, nil
}

// applyOpToSet applies op to every range of s, dropping (with a warning) any
// range the operator invalidates.
func (e *Evaluator) applyOpToSet(s prefixset.Set, op rpsl.RangeOp) prefixset.Set {
	if op.Kind == rpsl.OpNone {
		return s
	}
	var out []prefixset.Range
	for _, r := range s.Ranges() {
		applied, ok := applyRangeOp(r, op)
		if !ok {
			e.warn("range operator produced empty range, dropped", logrus.Fields{"range": r.String(), "op": op.String()})
			continue
		}
		out = append(out, applied)
	}
	result, err := prefixset.FromRanges(s.Family(), out...)
	if err != nil {
		// Every range in out came from s or a validated narrowing of it, so
		// this cannot occur; fall back to the empty set defensively.
		return prefixset.Empty(s.Family())
	}
	return result
}

// applyRangeOp implements the range-operator table of spec.md §4.2.
func applyRangeOp(r prefixset.Range, op rpsl.RangeOp) (prefixset.Range, bool) {
	max := r.Family().Max()
	baseLen := uint8(r.Base.Bits())
	switch op.Kind {
	case rpsl.OpNone:
		return r, true
	case rpsl.OpLessExcl:
		if r.Lower >= max {
			return prefixset.Range{}, false
		}
		return prefixset.Range{Base: r.Base, Lower: r.Lower + 1, Upper: max}, true
	case rpsl.OpLessIncl:
		return prefixset.Range{Base: r.Base, Lower: r.Lower, Upper: max}, true
	case rpsl.OpExact:
		lower := maxU8(r.Lower, op.Exact)
		upper := minU8(r.Upper, op.Exact)
		if lower > upper || baseLen > op.Exact {
			return prefixset.Range{}, false
		}
		return prefixset.Range{Base: r.Base, Lower: lower, Upper: upper}, true
	case rpsl.OpRange:
		lower := maxU8(r.Lower, op.Lo)
		upper := minU8(r.Upper, op.Hi)
		if lower > upper || op.Lo > op.Hi || baseLen > op.Lo {
			return prefixset.Range{}, false
		}
		return prefixset.Range{Base: r.Base, Lower: lower, Upper: upper}, true
	default:
		return prefixset.Range{}, false
	}
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

// rangesFromPrefixTokens parses whitespace-separated prefix tokens of a
// single family into a canonical Set of exact-length ranges, skipping (with
// a warning) tokens of the other family or that fail to parse.
func rangesFromPrefixTokens(tokens []string, fam prefixset.Family, warn func(string, logrus.Fields)) (prefixset.Set, error) {
	var ranges []prefixset.Range
	for _, tok := range tokens {
		p, err := netip.ParsePrefix(tok)
		if err != nil {
			if warn != nil {
				warn("malformed prefix token dropped", logrus.Fields{"token": tok, "error": err})
			}
			continue
		}
		if prefixset.FamilyOf(p) != fam {
			continue
		}
		p = p.Masked()
		bits := uint8(p.Bits())
		ranges = append(ranges, prefixset.Range{Base: p, Lower: bits, Upper: bits})
	}
	return prefixset.FromRanges(fam, ranges...)
}

// normaliseASN upper-cases and validates an "ASnnnn" token from an
// as-set-members-recursive response, returning "" for anything else (e.g. a
// nested as-set name IRRd didn't fully expand).
func normaliseASN(tok string) string {
	tok = strings.ToUpper(strings.TrimSpace(tok))
	if !strings.HasPrefix(tok, "AS") {
		return ""
	}
	if _, err := strconv.Atoi(tok[2:]); err != nil {
		return ""
	}
	return tok
}

// extractAttribute returns the value of the first RPSL attribute named attr
// (case-insensitive) in lines, joining any indented continuation lines.
func extractAttribute(lines []string, attr string) string {
	prefix := strings.ToLower(attr) + ":"
	var value strings.Builder
	inAttr := false
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		lower := strings.ToLower(trimmed)
		if strings.HasPrefix(lower, prefix) {
			value.WriteString(strings.TrimSpace(trimmed[len(prefix):]))
			inAttr = true
			continue
		}
		if inAttr && (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) {
			value.WriteByte(' ')
			value.WriteString(strings.TrimSpace(line))
			continue
		}
		inAttr = false
	}
	return value.String()
}
