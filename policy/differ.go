package policy

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bgpfu/junos-agent/internal/prefixset"
	"github.com/bgpfu/junos-agent/internal/rpsl"
)

// Evaluate runs every candidate filter expression through ev. Every
// candidate name is represented in the result, whether or not its
// evaluation succeeded (spec.md §4.3 "silently drop those that failed to
// evaluate" refers to dropping them from *installation*, not from the name
// set the differ reasons about — a name whose candidate failed to evaluate
// must not be mistaken for a name with no candidate at all, or Differences
// would incorrectly emit a Delete instead of preserving the installed
// policy-statement; see spec.md §9 Open Question on malformed filters).
func Evaluate(ev *Evaluator, candidates map[string]rpsl.FilterExpression) map[string]EvalOutcome {
	out := make(map[string]EvalOutcome, len(candidates))
	for name, expr := range candidates {
		v4, v6, err := ev.Eval(expr)
		if err != nil {
			ev.warn("candidate policy-statement failed to evaluate, previous installed policy preserved", logrus.Fields{
				"policy_statement": name,
				"error":            err,
			})
			out[name] = EvalOutcome{Failed: true}
			continue
		}
		out[name] = EvalOutcome{Statement: Statement{Name: name, FilterExpr: expr, IPv4: v4, IPv6: v6, evaluated: true}}
	}
	return out
}

// MarkFailed records names whose candidate filter expression could not even
// be parsed (ParseCandidates' failed list) as failed outcomes, so
// Differences treats them the same way as a name that parsed but failed to
// evaluate: preserve, don't delete.
func MarkFailed(evaluated map[string]EvalOutcome, names []string) {
	for _, name := range names {
		evaluated[name] = EvalOutcome{Failed: true}
	}
}

// Differences computes the set of Updates needed to bring installed into
// agreement with evaluated (spec.md §4.3 "Diff").
func Differences(installed map[string]Statement, evaluated map[string]EvalOutcome, at time.Time) []Update {
	names := make(map[string]struct{}, len(installed)+len(evaluated))
	for name := range installed {
		names[name] = struct{}{}
	}
	for name := range evaluated {
		names[name] = struct{}{}
	}

	var updates []Update
	for name := range names {
		old, hadOld := installed[name]
		outcome, hadCandidate := evaluated[name]

		switch {
		case hadCandidate && outcome.Failed:
			// Evaluation failed: emit nothing, preserving whatever is
			// installed (or installing nothing, if there was none).
			continue
		case hadOld && !hadCandidate:
			updates = append(updates, Delete{Name: name})
		case !hadOld && hadCandidate:
			new := outcome.Statement
			updates = append(updates, Upsert{
				Name:        name,
				FilterExpr:  new.FilterExpr,
				V4:          Diff{New: new.IPv4},
				V6:          Diff{New: new.IPv6},
				EvaluatedAt: at,
			})
		case hadOld && hadCandidate:
			new := outcome.Statement
			oldV4, oldV6 := old.IPv4, old.IPv6
			updates = append(updates, Upsert{
				Name:        name,
				FilterExpr:  new.FilterExpr,
				V4:          Diff{Old: &oldV4, New: new.IPv4, HasOld: true},
				V6:          Diff{Old: &oldV6, New: new.IPv6, HasOld: true},
				EvaluatedAt: at,
			})
		}
	}
	return updates
}

// added returns the ranges present in d.New but not d.Old (or all of d.New
// if there was no previous set).
func (d Diff) added() []prefixset.Range {
	if !d.HasOld || d.Old == nil {
		return d.New.Ranges()
	}
	return d.New.Difference(*d.Old).Ranges()
}

// removed returns the ranges present in d.Old but not d.New.
func (d Diff) removed() []prefixset.Range {
	if !d.HasOld || d.Old == nil {
		return nil
	}
	return d.Old.Difference(d.New).Ranges()
}
