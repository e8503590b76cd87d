package filter

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ParseError reports where a textual expression stopped making sense.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("filter: %s at offset %d", e.Msg, e.Pos)
}

// Parse reads the textual form used on the command line, for example
//
//	dport == 80 or sport == 80
//	not (sport >= 1024) and dport <= 9000
//
// "src"/"sport" select the local port, "dst"/"dport" the remote one.
// "&&", "||" and "!" are accepted as well. An empty string yields nil.
func Parse(s string) (*Node, error) {
	p := &parser{toks: tokenize(s)}
	if len(p.toks) == 0 {
		return nil, nil
	}
	for _, t := range p.toks {
		if t.kind == tokBad {
			return nil, &ParseError{Pos: t.pos, Msg: fmt.Sprintf("unexpected %q", t.text)}
		}
	}
	n, err := p.or()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, &ParseError{Pos: t.pos, Msg: fmt.Sprintf("unexpected %q", t.text)}
	}
	return n, nil
}

type tokKind uint8

const (
	tokEOF tokKind = iota
	tokWord
	tokNum
	tokCmp
	tokLParen
	tokRParen
	tokBad
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func tokenize(s string) []token {
	var toks []token
	for i := 0; i < len(s); {
		c, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case unicode.IsSpace(c):
			i += size
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case strings.HasPrefix(s[i:], "&&"):
			toks = append(toks, token{tokWord, "and", i})
			i += 2
		case strings.HasPrefix(s[i:], "||"):
			toks = append(toks, token{tokWord, "or", i})
			i += 2
		case strings.HasPrefix(s[i:], "=="), strings.HasPrefix(s[i:], ">="), strings.HasPrefix(s[i:], "<="):
			toks = append(toks, token{tokCmp, s[i : i+2], i})
			i += 2
		case c == '=':
			toks = append(toks, token{tokCmp, "==", i})
			i++
		case c == '!':
			toks = append(toks, token{tokWord, "not", i})
			i++
		case isDigit(c):
			j := i
			for j < len(s) && isDigit(rune(s[j])) {
				j++
			}
			toks = append(toks, token{tokNum, s[i:j], i})
			i = j
		case unicode.IsLetter(c):
			j := i
			for j < len(s) {
				r, n := utf8.DecodeRuneInString(s[j:])
				if !unicode.IsLetter(r) {
					break
				}
				j += n
			}
			toks = append(toks, token{tokWord, strings.ToLower(s[i:j]), i})
			i = j
		default:
			toks = append(toks, token{tokBad, s[i : i+size], i})
			i += size
		}
	}
	return toks
}

// Port numbers are ASCII only, strconv rejects other digits.
func isDigit(c rune) bool { return '0' <= c && c <= '9' }

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token {
	if p.i < len(p.toks) {
		return p.toks[p.i]
	}
	end := 0
	if len(p.toks) > 0 {
		last := p.toks[len(p.toks)-1]
		end = last.pos + len(last.text)
	}
	return token{kind: tokEOF, pos: end}
}

func (p *parser) next() token {
	t := p.peek()
	if p.i < len(p.toks) {
		p.i++
	}
	return t
}

func (p *parser) or() (*Node, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokWord && p.peek().text == "or" {
		p.next()
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = left.Or(right)
	}
	return left, nil
}

func (p *parser) and() (*Node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokWord && p.peek().text == "and" {
		p.next()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = left.And(right)
	}
	return left, nil
}

func (p *parser) unary() (*Node, error) {
	t := p.next()
	switch {
	case t.kind == tokWord && t.text == "not":
		n, err := p.unary()
		if err != nil {
			return nil, err
		}
		return n.Not(), nil
	case t.kind == tokLParen:
		n, err := p.or()
		if err != nil {
			return nil, err
		}
		if r := p.next(); r.kind != tokRParen {
			return nil, &ParseError{Pos: r.pos, Msg: "missing )"}
		}
		return n, nil
	case t.kind == tokWord:
		return p.comparison(t)
	case t.kind == tokEOF:
		return nil, &ParseError{Pos: t.pos, Msg: "unexpected end of expression"}
	}
	return nil, &ParseError{Pos: t.pos, Msg: fmt.Sprintf("unexpected %q", t.text)}
}

func (p *parser) comparison(sideTok token) (*Node, error) {
	var side Side
	switch sideTok.text {
	case "sport", "src":
		side = SideSrc
	case "dport", "dst":
		side = SideDst
	default:
		return nil, &ParseError{Pos: sideTok.pos, Msg: fmt.Sprintf("unknown side %q", sideTok.text)}
	}

	cmp := p.next()
	if cmp.kind != tokCmp {
		return nil, &ParseError{Pos: cmp.pos, Msg: "expected ==, >= or <="}
	}

	num := p.next()
	if num.kind != tokNum {
		return nil, &ParseError{Pos: num.pos, Msg: "expected port number"}
	}
	port, err := strconv.ParseUint(num.text, 10, 16)
	if err != nil {
		return nil, &ParseError{Pos: num.pos, Msg: fmt.Sprintf("invalid port %q", num.text)}
	}

	switch cmp.text {
	case ">=":
		return Ge(side, uint16(port)), nil
	case "<=":
		return Le(side, uint16(port)), nil
	default:
		return Eq(side, uint16(port)), nil
	}
}
