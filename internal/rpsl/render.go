package rpsl

import "fmt"

// Render reproduces the mp-filter text an expression was parsed from,
// suitable for embedding in a diagnostic comment (policy/render.go). It is
// not guaranteed to be byte-identical to the original source text (e.g.
// whitespace is normalised), only semantically equivalent.
func Render(expr FilterExpression) string {
	switch x := expr.(type) {
	case Unit:
		return renderTerm(x.Term)
	case Not:
		return "NOT " + renderTerm(x.Term)
	case And:
		return renderTerm(x.Left) + " AND " + renderTerm(x.Right)
	case Or:
		return renderTerm(x.Left) + " OR " + renderTerm(x.Right)
	default:
		return "?"
	}
}

func renderTerm(t Term) string {
	switch x := t.(type) {
	case LiteralTerm:
		return renderPrefixSetExpr(x.Set) + x.Op.String()
	case Named:
		return x.FilterSetName
	case Parenthesised:
		return "(" + Render(x.Expr) + ")"
	default:
		return "?"
	}
}

func renderPrefixSetExpr(e PrefixSetExpr) string {
	switch x := e.(type) {
	case PrefixLiteral:
		out := "{"
		for i, entry := range x.Entries {
			if i > 0 {
				out += ", "
			}
			out += entry.Prefix + entry.Op.String()
		}
		return out + "}"
	case PrefixSetNamed:
		switch x.Kind {
		case Any:
			return "ANY"
		case PeerAs:
			return "PeerAS"
		default:
			return x.Name
		}
	default:
		return fmt.Sprintf("%v", e)
	}
}
