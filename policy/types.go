// Package policy evaluates RPSL filter expressions into prefix sets, diffs
// the result against a device's installed policy, and renders the diff as a
// Junos <policy-options> configuration fragment (spec.md §3, §4.2-§4.3).
package policy

import (
	"time"

	"github.com/bgpfu/junos-agent/internal/prefixset"
	"github.com/bgpfu/junos-agent/internal/rpsl"
)

// Statement is a named policy-statement, either candidate (carrying an
// unevaluated filter expression) or installed/evaluated (carrying resolved
// prefix sets). A Statement produced by the installed-policy reader always
// has a nil FilterExpr and at least one of IPv4/IPv6 non-empty.
type Statement struct {
	Name string

	// FilterExpr is set for candidate statements (read from configuration
	// intent) and for statements that have just been evaluated.
	FilterExpr rpsl.FilterExpression

	// IPv4/IPv6 are set once a Statement has been evaluated, or for
	// statements read back from the installed configuration.
	IPv4, IPv6 prefixset.Set
	evaluated  bool
}

// Evaluated reports whether IPv4/IPv6 carry resolved ranges.
func (s Statement) Evaluated() bool { return s.evaluated }

// EvalOutcome records, for one candidate name, either the resolved Statement
// or that evaluation failed. A name present with Failed=true is distinct
// from a name absent altogether: Differences must not delete the
// corresponding installed policy-statement in the former case, only in the
// latter (spec.md §9 Open Question — malformed filters preserve, not
// delete).
type EvalOutcome struct {
	Statement Statement
	Failed    bool
}

// Diff carries enough information to emit element-level add/remove of
// route-filter entries for one address family of one statement (spec.md §3).
type Diff struct {
	Old      *prefixset.Set // nil if the statement is new
	New      prefixset.Set
	HasOld   bool
}

// Update is either a Delete or an Upsert produced by Differences.
type Update interface {
	isUpdate()
}

// Delete removes a previously-installed policy-statement entirely.
type Delete struct {
	Name string
}

// Upsert installs or updates a policy-statement's filter terms.
type Upsert struct {
	Name       string
	FilterExpr rpsl.FilterExpression
	V4         Diff
	V6         Diff
	// EvaluatedAt records when the filter expression was resolved, for the
	// rendered comment attribute (spec.md §4.3).
	EvaluatedAt time.Time
}

func (Delete) isUpdate() {}
func (Upsert) isUpdate() {}
