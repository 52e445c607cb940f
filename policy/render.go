package policy

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/bgpfu/junos-agent/internal/prefixset"
	"github.com/bgpfu/junos-agent/internal/rpsl"
)

// configurationXML is the root <configuration><policy-options>... element
// tree an Update set renders to (spec.md §4.3 "Rendering to NETCONF edit").
// The nested xml struct tags follow the same path-per-field idiom the
// device's own config-read structures use (policy/read.go).
type configurationXML struct {
	XMLName       xml.Name          `xml:"configuration"`
	PolicyOptions policyOptionsXML  `xml:"policy-options"`
}

type policyOptionsXML struct {
	XMLName    xml.Name             `xml:"policy-options"`
	Statements []policyStatementXML `xml:"policy-statement"`
}

type policyStatementXML struct {
	Delete  string          `xml:"delete,attr,omitempty"`
	Comment *commentXML     `xml:"comment"`
	Name    string          `xml:"name"`
	Terms   []termXML       `xml:"term,omitempty"`
	Then    *thenXML        `xml:"then"`
}

// commentXML renders in the jcmd namespace, matching Junos's own ephemeral
// configuration comment element (netconf.NSJcmd, "http://yang.juniper.net/junos/jcmd").
type commentXML struct {
	XMLName xml.Name `xml:"http://yang.juniper.net/junos/jcmd comment"`
	Text    string   `xml:",chardata"`
}

type termXML struct {
	Delete string   `xml:"delete,attr,omitempty"`
	Name   string   `xml:"name"`
	From   *fromXML `xml:"from,omitempty"`
	Then   *thenXML `xml:"then,omitempty"`
}

type fromXML struct {
	Family       string            `xml:"family"`
	RouteFilters []routeFilterXML  `xml:"route-filter"`
}

type routeFilterXML struct {
	Delete           string `xml:"delete,attr,omitempty"`
	Address          string `xml:"address"`
	PrefixLengthRange string `xml:"prefix-length-range"`
}

type thenXML struct {
	Accept *struct{} `xml:"accept,omitempty"`
	Reject *struct{} `xml:"reject,omitempty"`
}

// Render serialises updates into the <policy-options> element that
// EphemeralDB.LoadConfig wraps in <configuration>.
func Render(updates []Update) (string, error) {
	doc := configurationXML{}
	for _, u := range updates {
		switch x := u.(type) {
		case Delete:
			doc.PolicyOptions.Statements = append(doc.PolicyOptions.Statements, policyStatementXML{
				Delete: "delete",
				Name:   x.Name,
			})
		case Upsert:
			stmt, err := renderUpsert(x)
			if err != nil {
				return "", err
			}
			doc.PolicyOptions.Statements = append(doc.PolicyOptions.Statements, stmt)
		default:
			return "", fmt.Errorf("policy: unrecognised update type %T", u)
		}
	}
	out, err := xml.Marshal(doc.PolicyOptions)
	if err != nil {
		return "", fmt.Errorf("policy: rendering configuration: %w", err)
	}
	return string(out), nil
}

func renderUpsert(u Upsert) (policyStatementXML, error) {
	stmt := policyStatementXML{
		Name: u.Name,
		Comment: &commentXML{
			Text: fmt.Sprintf("evaluated %s: %s", u.EvaluatedAt.Format(time.RFC3339), rpsl.Render(u.FilterExpr)),
		},
		Then: &thenXML{Reject: &struct{}{}},
	}

	v4Term, err := renderTerm("inet", "inet", u.V4)
	if err != nil {
		return policyStatementXML{}, err
	}
	if v4Term != nil {
		stmt.Terms = append(stmt.Terms, *v4Term)
	}
	v6Term, err := renderTerm("inet6", "inet6", u.V6)
	if err != nil {
		return policyStatementXML{}, err
	}
	if v6Term != nil {
		stmt.Terms = append(stmt.Terms, *v6Term)
	}
	return stmt, nil
}

// renderTerm renders one address family's term. A term whose New set is
// empty and whose Old set was non-empty renders as a bare delete="delete"
// term (spec.md §4.3); an entirely-new-and-empty term is omitted.
func renderTerm(name, family string, d Diff) (*termXML, error) {
	if d.New.IsEmpty() && d.HasOld && d.Old != nil && !d.Old.IsEmpty() {
		return &termXML{Delete: "delete", Name: name}, nil
	}
	if d.New.IsEmpty() && (!d.HasOld || d.Old == nil || d.Old.IsEmpty()) {
		return nil, nil
	}

	var filters []routeFilterXML
	for _, r := range d.removed() {
		rf, err := renderRouteFilter(r)
		if err != nil {
			return nil, err
		}
		rf.Delete = "delete"
		filters = append(filters, rf)
	}
	for _, r := range d.added() {
		rf, err := renderRouteFilter(r)
		if err != nil {
			return nil, err
		}
		filters = append(filters, rf)
	}

	return &termXML{
		Name: name,
		From: &fromXML{Family: family, RouteFilters: filters},
		Then: &thenXML{Accept: &struct{}{}},
	}, nil
}

func renderRouteFilter(r prefixset.Range) (routeFilterXML, error) {
	return routeFilterXML{
		Address:           r.Base.String(),
		PrefixLengthRange: fmt.Sprintf("/%d-/%d", r.Lower, r.Upper),
	}, nil
}
