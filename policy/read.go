package policy

import (
	"encoding/xml"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/bgpfu/junos-agent/internal/prefixset"
	"github.com/bgpfu/junos-agent/internal/rpsl"
)

// candidateCommentPrefix is the literal marker the operator embeds in a
// policy-statement's jcmd:comment to mark it as agent-managed filter intent
// (spec.md §6 "Candidate-policy discovery").
const candidateCommentPrefix = "bgpfu-fltr:"

// rawConfiguration mirrors the shape of a <get-config>/<get-configuration>
// reply's <data> payload, following the same nested-path xml struct-tag
// idiom the device's own config-read structures use.
type rawConfiguration struct {
	XMLName       xml.Name             `xml:"data"`
	PolicyOptions rawPolicyOptions     `xml:"configuration>policy-options"`
}

type rawPolicyOptions struct {
	Statements []rawPolicyStatement `xml:"policy-statement"`
}

type rawPolicyStatement struct {
	Active  string    `xml:"active,attr"`
	Name    string    `xml:"name"`
	Comment string    `xml:"comment"`
	Terms   []rawTerm `xml:"term"`
	Then    rawThen   `xml:"then"`
}

type rawTerm struct {
	Name string  `xml:"name"`
	From rawFrom `xml:"from"`
}

type rawFrom struct {
	Family       string           `xml:"family"`
	RouteFilters []rawRouteFilter `xml:"route-filter"`
}

type rawRouteFilter struct {
	Address           string `xml:"address"`
	ChoiceIdent       string `xml:"choice-ident,attr"`
	ChoiceValue       string `xml:"choice-value,attr"`
	PrefixLengthRange string `xml:"prefix-length-range"`
}

type rawThen struct {
	Accept *struct{} `xml:"accept"`
	Reject *struct{} `xml:"reject"`
}

// ParseCandidates extracts candidate policy-statements from a
// <get-config source="running"> reply's Data, following the agent-managed
// marker convention of spec.md §6. Statements with jcmd:active="false", a
// missing/non-matching comment marker, or a bottom action other than "then
// reject" are skipped entirely (as if the name were never a candidate at
// all). A statement that carries the marker but fails to parse as RPSL is
// reported in failed, not silently skipped: spec.md §6 requires its
// previously-installed policy be preserved rather than deleted, which
// Differences can only do if it knows the name was seen as an (invalid)
// candidate — see EvalOutcome.
func ParseCandidates(data string) (parsed map[string]rpsl.FilterExpression, failed []string, err error) {
	var raw rawConfiguration
	if err := xml.Unmarshal([]byte(data), &raw); err != nil {
		return nil, nil, fmt.Errorf("policy: parsing candidate configuration: %w", err)
	}

	parsed = make(map[string]rpsl.FilterExpression)
	for _, stmt := range raw.PolicyOptions.Statements {
		if stmt.Active == "false" {
			continue
		}
		if stmt.Then.Reject == nil || stmt.Then.Accept != nil {
			continue
		}
		exprText, ok := extractCandidateMarker(stmt.Comment)
		if !ok {
			continue
		}
		expr, parseErr := rpsl.Parse(exprText)
		if parseErr != nil {
			failed = append(failed, stmt.Name)
			continue
		}
		parsed[stmt.Name] = expr
	}
	return parsed, failed, nil
}

// extractCandidateMarker strips the "/* ... */" comment delimiters and
// leading/trailing whitespace, then matches the literal "bgpfu-fltr:"
// prefix, returning the remainder as candidate filter text.
func extractCandidateMarker(comment string) (string, bool) {
	c := strings.TrimSpace(comment)
	c = strings.TrimPrefix(c, "/*")
	c = strings.TrimSuffix(c, "*/")
	c = strings.TrimSpace(c)
	if !strings.HasPrefix(c, candidateCommentPrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(c, candidateCommentPrefix)), true
}

// ParseInstalled extracts installed policy-statements from a
// <get-configuration database="ephemeral"> reply's Data (spec.md §6
// "Installed-policy discovery").
func ParseInstalled(data string) (map[string]Statement, error) {
	var raw rawConfiguration
	if err := xml.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("policy: parsing installed configuration: %w", err)
	}

	out := make(map[string]Statement)
	for _, stmt := range raw.PolicyOptions.Statements {
		if stmt.Then.Reject == nil {
			continue
		}
		v4, v6, ok, err := rangesFromTerms(stmt.Terms)
		if err != nil {
			return nil, fmt.Errorf("policy: policy-statement %q: %w", stmt.Name, err)
		}
		if !ok || (v4.IsEmpty() && v6.IsEmpty()) {
			continue
		}
		out[stmt.Name] = Statement{Name: stmt.Name, IPv4: v4, IPv6: v6, evaluated: true}
	}
	return out, nil
}

func rangesFromTerms(terms []rawTerm) (v4, v6 prefixset.Set, ok bool, err error) {
	var v4ranges, v6ranges []prefixset.Range
	found := false
	for _, t := range terms {
		var fam prefixset.Family
		switch {
		case t.Name == "inet" && t.From.Family == "inet":
			fam = prefixset.V4
		case t.Name == "inet6" && t.From.Family == "inet6":
			fam = prefixset.V6
		default:
			continue
		}
		found = true
		for _, rf := range t.From.RouteFilters {
			if rf.ChoiceIdent != "prefix-length-range" {
				// The shape Render writes carries the "/LO-/HI" window in a
				// <prefix-length-range> element instead.
				if rf.PrefixLengthRange == "" {
					continue
				}
				rf.ChoiceValue = rf.PrefixLengthRange
			}
			r, err := parseRouteFilter(rf, fam)
			if err != nil {
				return prefixset.Set{}, prefixset.Set{}, false, err
			}
			if fam == prefixset.V4 {
				v4ranges = append(v4ranges, r)
			} else {
				v6ranges = append(v6ranges, r)
			}
		}
	}
	v4set, err := prefixset.FromRanges(prefixset.V4, v4ranges...)
	if err != nil {
		return prefixset.Set{}, prefixset.Set{}, false, err
	}
	v6set, err := prefixset.FromRanges(prefixset.V6, v6ranges...)
	if err != nil {
		return prefixset.Set{}, prefixset.Set{}, false, err
	}
	return v4set, v6set, found, nil
}

func parseRouteFilter(rf rawRouteFilter, fam prefixset.Family) (prefixset.Range, error) {
	base, err := netip.ParsePrefix(rf.Address)
	if err != nil {
		return prefixset.Range{}, fmt.Errorf("malformed route-filter address %q: %w", rf.Address, err)
	}
	lo, hi, err := parseChoiceValue(rf.ChoiceValue)
	if err != nil {
		return prefixset.Range{}, fmt.Errorf("malformed route-filter choice-value %q: %w", rf.ChoiceValue, err)
	}
	r, err := prefixset.NewRange(base, lo, hi)
	if err != nil {
		return prefixset.Range{}, err
	}
	if r.Family() != fam {
		return prefixset.Range{}, fmt.Errorf("route-filter %q is not in the expected family %s", rf.Address, fam)
	}
	return r, nil
}

// parseChoiceValue parses a Junos "/LO-/HI" prefix-length-range value.
func parseChoiceValue(v string) (lo, hi uint8, err error) {
	loStr, hiStr, found := strings.Cut(v, "-")
	if !found {
		return 0, 0, fmt.Errorf("expected \"/LO-/HI\" form")
	}
	loN, err := strconv.Atoi(strings.TrimPrefix(loStr, "/"))
	if err != nil {
		return 0, 0, err
	}
	hiN, err := strconv.Atoi(strings.TrimPrefix(hiStr, "/"))
	if err != nil {
		return 0, 0, err
	}
	return uint8(loN), uint8(hiN), nil
}
