package rpsl

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse turns mp-filter text into a FilterExpression. It implements the
// grammar fragment in spec.md §3: a FilterExpression is one term, a negated
// term, or an AND/OR of two terms; a Term is a literal prefix-set expression
// with a range operator, a named filter-set reference, or a parenthesised
// sub-expression.
func Parse(text string) (FilterExpression, error) {
	p := &parser{toks: tokenize(text)}
	expr, err := p.parseExpression()
	if err != nil {
		return nil, fmt.Errorf("rpsl: parsing %q: %w", text, err)
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("rpsl: parsing %q: unexpected trailing token %q", text, p.toks[p.pos])
	}
	return expr, nil
}

type parser struct {
	toks []string
	pos  int
}

func (p *parser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos]
}

func (p *parser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) expect(tok string) error {
	if strings.EqualFold(p.peek(), tok) {
		p.pos++
		return nil
	}
	return fmt.Errorf("expected %q, got %q", tok, p.peek())
}

// parseExpression parses "NOT term", "term AND term", "term OR term", or a
// bare term, matching spec.md's FilterExpression shape.
func (p *parser) parseExpression() (FilterExpression, error) {
	if strings.EqualFold(p.peek(), "NOT") {
		p.next()
		t, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return Not{Term: t}, nil
	}

	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	switch {
	case strings.EqualFold(p.peek(), "AND"):
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return And{Left: left, Right: right}, nil
	case strings.EqualFold(p.peek(), "OR"):
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return Or{Left: left, Right: right}, nil
	default:
		return Unit{Term: left}, nil
	}
}

// parseTerm parses a Term: "(" expr ")", "{" prefix-set-literal "}" [op], or
// a bare name (filter-set name, as-set/route-set name, ASN, ANY, PeerAS).
func (p *parser) parseTerm() (Term, error) {
	switch p.peek() {
	case "(":
		p.next()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return Parenthesised{Expr: expr}, nil
	case "{":
		return p.parsePrefixLiteral()
	case "":
		return nil, fmt.Errorf("unexpected end of input")
	}

	name := p.next()
	switch {
	case strings.EqualFold(name, "ANY"):
		return p.maybeWrapNamed(PrefixSetNamed{Kind: Any})
	case strings.EqualFold(name, "PeerAS"):
		return p.maybeWrapNamed(PrefixSetNamed{Kind: PeerAs})
	case isASN(name):
		return p.maybeWrapNamed(PrefixSetNamed{Kind: AutNum, Name: strings.ToUpper(name)})
	case strings.HasPrefix(strings.ToUpper(name), "AS-"):
		return p.maybeWrapNamed(PrefixSetNamed{Kind: AsSet, Name: name})
	case strings.HasPrefix(strings.ToUpper(name), "RS-"):
		return p.maybeWrapNamed(PrefixSetNamed{Kind: RouteSet, Name: name})
	case strings.HasPrefix(strings.ToUpper(name), "FLTR-"):
		return Named{FilterSetName: name}, nil
	default:
		return nil, fmt.Errorf("unrecognised term %q", name)
	}
}

// maybeWrapNamed wraps a resolved PrefixSetNamed reference as a LiteralTerm,
// consuming a trailing range operator if present.
func (p *parser) maybeWrapNamed(set PrefixSetNamed) (Term, error) {
	op, err := p.parseOptionalOp()
	if err != nil {
		return nil, err
	}
	return LiteralTerm{Set: set, Op: op}, nil
}

func (p *parser) parsePrefixLiteral() (Term, error) {
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	var entries []PrefixLiteralEntry
	for {
		if p.peek() == "}" {
			return nil, fmt.Errorf("empty prefix-set literal")
		}
		tok := p.next()
		prefix, op, err := splitPrefixAndOp(tok)
		if err != nil {
			return nil, err
		}
		entries = append(entries, PrefixLiteralEntry{Prefix: prefix, Op: op})
		if p.peek() == "," {
			p.next()
			continue
		}
		break
	}
	if err := p.expect("}"); err != nil {
		return nil, err
	}
	op, err := p.parseOptionalOp()
	if err != nil {
		return nil, err
	}
	return LiteralTerm{Set: PrefixLiteral{Entries: entries}, Op: op}, nil
}

// parseOptionalOp parses a trailing "^-", "^+", "^n", or "^lo-hi" range
// operator token if one is present.
func (p *parser) parseOptionalOp() (RangeOp, error) {
	tok := p.peek()
	if !strings.HasPrefix(tok, "^") {
		return RangeOp{Kind: OpNone}, nil
	}
	p.next()
	return parseOpToken(tok)
}

func splitPrefixAndOp(tok string) (string, RangeOp, error) {
	idx := strings.Index(tok, "^")
	if idx < 0 {
		return tok, RangeOp{Kind: OpNone}, nil
	}
	op, err := parseOpToken(tok[idx:])
	if err != nil {
		return "", RangeOp{}, err
	}
	return tok[:idx], op, nil
}

func parseOpToken(tok string) (RangeOp, error) {
	body := strings.TrimPrefix(tok, "^")
	switch body {
	case "-":
		return RangeOp{Kind: OpLessExcl}, nil
	case "+":
		return RangeOp{Kind: OpLessIncl}, nil
	}
	if lo, hi, ok := strings.Cut(body, "-"); ok {
		loN, err := strconv.Atoi(lo)
		if err != nil {
			return RangeOp{}, fmt.Errorf("invalid range operator %q: %w", tok, err)
		}
		hiN, err := strconv.Atoi(hi)
		if err != nil {
			return RangeOp{}, fmt.Errorf("invalid range operator %q: %w", tok, err)
		}
		return RangeOp{Kind: OpRange, Lo: uint8(loN), Hi: uint8(hiN)}, nil
	}
	n, err := strconv.Atoi(body)
	if err != nil {
		return RangeOp{}, fmt.Errorf("invalid range operator %q: %w", tok, err)
	}
	return RangeOp{Kind: OpExact, Exact: uint8(n)}, nil
}

func isASN(tok string) bool {
	upper := strings.ToUpper(tok)
	if !strings.HasPrefix(upper, "AS") || strings.HasPrefix(upper, "AS-") {
		return false
	}
	_, err := strconv.Atoi(upper[2:])
	return err == nil
}

// tokenize splits filter text into a flat token stream: parentheses, braces,
// commas, and AND/OR/NOT keywords are stand-alone tokens; everything else
// (set names, ASNs, prefix/range-operator pairs) is a single whitespace- and
// comma-delimited token.
func tokenize(text string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch r {
		case '(', ')', '{', '}', ',':
			flush()
			toks = append(toks, string(r))
		case ' ', '\t', '\n', '\r':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}
