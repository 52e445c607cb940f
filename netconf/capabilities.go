package netconf

import "strings"

// Well-known NETCONF capability URNs (RFC 6241 §8, RFC 4741).
const (
	CapBase10           = "urn:ietf:params:netconf:base:1.0"
	CapBase11           = "urn:ietf:params:netconf:base:1.1"
	CapCandidate        = "urn:ietf:params:netconf:capability:candidate:1.0"
	CapConfirmedCommit10 = "urn:ietf:params:netconf:capability:confirmed-commit:1.0"
	CapConfirmedCommit11 = "urn:ietf:params:netconf:capability:confirmed-commit:1.1"
	CapValidate10       = "urn:ietf:params:netconf:capability:validate:1.0"
	CapValidate11       = "urn:ietf:params:netconf:capability:validate:1.1"
	CapRollbackOnError  = "urn:ietf:params:netconf:capability:rollback-on-error:1.0"
	CapStartup          = "urn:ietf:params:netconf:capability:startup:1.0"
	CapURL              = "urn:ietf:params:netconf:capability:url:1.0"
	CapXPath            = "urn:ietf:params:netconf:capability:xpath:1.0"
	CapNotification     = "urn:ietf:params:netconf:capability:notification:1.0"
)

// Capabilities is a set of capability URNs, comparing the base identifier and
// ignoring any "?module=..." query suffix a server may append.
type Capabilities map[string]struct{}

// NewCapabilities builds a Capabilities set from a capability URI list.
func NewCapabilities(uris []string) Capabilities {
	c := make(Capabilities, len(uris))
	for _, u := range uris {
		c[baseURI(u)] = struct{}{}
	}
	return c
}

func baseURI(uri string) string {
	if idx := strings.IndexByte(uri, '?'); idx >= 0 {
		return uri[:idx]
	}
	return uri
}

// Has reports whether the set contains uri (ignoring any query suffix).
func (c Capabilities) Has(uri string) bool {
	_, ok := c[baseURI(uri)]
	return ok
}

// HasAny reports whether the set contains any of uris.
func (c Capabilities) HasAny(uris ...string) bool {
	for _, u := range uris {
		if c.Has(u) {
			return true
		}
	}
	return false
}

// List returns the capability URIs in the set, order unspecified.
func (c Capabilities) List() []string {
	out := make([]string, 0, len(c))
	for u := range c {
		out = append(out, u)
	}
	return out
}

// negotiateVersion picks the highest NETCONF base version present in both
// client and server capability sets (spec.md §4.4).
func negotiateVersion(client, server Capabilities) (string, error) {
	if client.Has(CapBase11) && server.Has(CapBase11) {
		return CapBase11, nil
	}
	if client.Has(CapBase10) && server.Has(CapBase10) {
		return CapBase10, nil
	}
	return "", &VersionNegotiationError{ClientCaps: client.List(), ServerCaps: server.List()}
}
