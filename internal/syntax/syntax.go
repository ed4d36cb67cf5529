// Package syntax builds the S-expression tree described in spec section 3
// out of a flat token sequence, and classifies leaf tokens as variables,
// numbers, or strings the way the original compiler's t_is helper does.
package syntax

import (
	"regexp"

	"github.com/pkg/errors"

	"accvm/internal/lexer"
)

// Node is either a raw token (Children == nil) or a compound form with an
// ordered sequence of child nodes (Children != nil). TokenIndex is the
// index, in the original token slice, of the node's own token (for a leaf)
// or of its opening "(" (for a compound) — used for diagnostics.
type Node struct {
	TokenIndex int
	Token      lexer.Token
	Children   []*Node
}

// IsCompound reports whether n is a parenthesized form rather than a leaf.
func (n *Node) IsCompound() bool { return n.Children != nil }

var (
	variableRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)
	numberRe   = regexp.MustCompile(`^(0|-?[1-9][0-9]*)$`)
)

// IsVariable reports whether tok is a valid identifier.
func IsVariable(tok lexer.Token) bool {
	return variableRe.MatchString(string(tok))
}

// IsNumber reports whether tok is a valid integer literal.
func IsNumber(tok lexer.Token) bool {
	return numberRe.MatchString(string(tok))
}

// IsString reports whether tok is a double-quoted literal of any length
// or a single-quoted literal of exactly one character — the latter
// restriction comes straight from the original compiler's t_is regex
// ("'[^']'" has no repetition operator) and is preserved rather than
// "fixed", since widening it would silently accept source the reference
// translator rejects as an unknown token.
func IsString(tok lexer.Token) bool {
	s := string(tok)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return true
	}
	if len(s) == 3 && s[0] == '\'' && s[2] == '\'' {
		return true
	}
	return false
}

// ParseError is raised for unmatched parentheses or leftover trailing
// tokens; it is fatal at translate time (spec section 7).
type ParseError struct {
	Message string
	Window  string
}

func (e *ParseError) Error() string {
	return e.Message + ":\n" + e.Window
}

// beautifulToken renders a five-before/four-after window around tokens[n]
// with a caret underline, clamped to the ends of the token slice.
func beautifulToken(tokens []lexer.Token, n int) string {
	start := n - 5
	if start < 0 {
		start = 0
	}
	end := n + 5
	if end > len(tokens) {
		end = len(tokens)
	}

	ret := ""
	for _, t := range tokens[start:n] {
		ret += string(t) + " "
	}
	underline := "\r\n" + spaces(len(ret)) + carets(len(tokens[n]))
	ret += string(tokens[n])
	for _, t := range tokens[n+1 : end] {
		ret += " " + string(t)
	}
	return ret + underline
}

func spaces(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}

func carets(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '^'
	}
	return string(b)
}

// Parse builds a syntax tree from tokens using recursive descent: on "("
// it recurses into a compound node whose children are read until the
// matching ")". The root is always a compound node. Mismatched
// parentheses or leftover trailing tokens produce a ParseError.
func Parse(tokens []lexer.Token) (*Node, error) {
	root, pos, err := parseRecursive(tokens, 0)
	if err != nil {
		return nil, err
	}
	if pos != len(tokens) {
		if pos > len(tokens) {
			return nil, &ParseError{Message: "unexpected end of file"}
		}
		return nil, &ParseError{
			Message: "Unexpected token",
			Window:  beautifulToken(tokens, pos),
		}
	}
	return root, nil
}

func parseRecursive(tokens []lexer.Token, pos int) (*Node, int, error) {
	start := pos
	node := &Node{TokenIndex: start, Children: []*Node{}}
	for pos < len(tokens) && tokens[pos] != ")" {
		tok := tokens[pos]
		if tok == "(" {
			child, next, err := parseRecursive(tokens, pos+1)
			if err != nil {
				return nil, 0, err
			}
			child.TokenIndex = pos
			node.Children = append(node.Children, child)
			pos = next
		} else {
			node.Children = append(node.Children, &Node{TokenIndex: pos, Token: tok})
		}
		pos++
	}
	return node, pos, nil
}

// NewDiagnostic is a convenience constructor used by internal/codegen to
// build a ParseError-shaped diagnostic (scope errors share the same
// token-window formatting as parse errors; spec section 4.2/4.3).
func NewDiagnostic(tokens []lexer.Token, tokenIndex int, message string) error {
	if tokenIndex < 0 || tokenIndex >= len(tokens) {
		return errors.New(message)
	}
	return &ParseError{Message: message, Window: beautifulToken(tokens, tokenIndex)}
}
