package irr

import "fmt"

// Kind enumerates the whois queries the core issues (spec.md §4.1).
type Kind int

const (
	// RpslObject fetches the raw text of an RPSL object ("!m<class>,<key>").
	RpslObject Kind = iota
	// AsSetMembersRecursive resolves an as-set's member ASNs ("!i<name>,1").
	AsSetMembersRecursive
	// RouteSetMembersRecursive resolves a route-set's member prefixes ("!i<name>,1").
	RouteSetMembersRecursive
	// Ipv4Routes fetches the IPv4 prefixes originated by an ASN ("!g<asn>").
	Ipv4Routes
	// Ipv6Routes fetches the IPv6 prefixes originated by an ASN ("!6<asn>").
	Ipv6Routes
)

// Query is one whois request. Class is only meaningful for RpslObject.
type Query struct {
	Kind  Kind
	Class string // e.g. "filter-set", used by RpslObject
	Key   string // object name, set name, or ASN text
}

func (q Query) String() string {
	switch q.Kind {
	case RpslObject:
		return fmt.Sprintf("RpslObject(%s,%s)", q.Class, q.Key)
	case AsSetMembersRecursive:
		return fmt.Sprintf("AsSetMembersRecursive(%s)", q.Key)
	case RouteSetMembersRecursive:
		return fmt.Sprintf("RouteSetMembersRecursive(%s)", q.Key)
	case Ipv4Routes:
		return fmt.Sprintf("Ipv4Routes(%s)", q.Key)
	case Ipv6Routes:
		return fmt.Sprintf("Ipv6Routes(%s)", q.Key)
	default:
		return "Query(?)"
	}
}

// line renders the wire form of the query: one line, no trailing newline.
func (q Query) line() string {
	switch q.Kind {
	case RpslObject:
		return fmt.Sprintf("!m%s,%s", q.Class, q.Key)
	case AsSetMembersRecursive, RouteSetMembersRecursive:
		return fmt.Sprintf("!i%s,1", q.Key)
	case Ipv4Routes:
		return fmt.Sprintf("!g%s", q.Key)
	case Ipv6Routes:
		return fmt.Sprintf("!6%s", q.Key)
	default:
		return ""
	}
}

// RpslObjectQuery builds a Query for fetching the raw text of an object of
// the given RPSL class, e.g. RpslObjectQuery("filter-set", "fltr-foo").
func RpslObjectQuery(class, key string) Query {
	return Query{Kind: RpslObject, Class: class, Key: key}
}

// Response is one parsed answer to a Query, delivered in submission order.
type Response struct {
	Query Query
	// Lines holds the space-separated tokens of the payload for the
	// ASN/prefix-list query kinds, or the raw object text split into lines
	// for RpslObject. Empty (not nil) for a successful empty response.
	Lines []string
	// Err is set for KeyNotFound / ServerError outcomes (soft; see IsSoft)
	// and for Transport or Protocol failures while sending the query or
	// reading its response.
	Err error
}
