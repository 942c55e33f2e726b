// Package regextest evaluates backtracking regular expressions against sample text.
package regextest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

const (
	// MaxMatches caps the number of matches collected for one evaluation.
	MaxMatches = 1000
	// MatchTimeout bounds a single evaluation.
	MatchTimeout = 2 * time.Second
)

// ErrEmptyPattern is returned when no pattern is supplied.
var ErrEmptyPattern = errors.New("pattern is required")

// Group is one capture group of a match.
type Group struct {
	Number  int    `json:"number"`
	Name    string `json:"name,omitempty"`
	Value   string `json:"value"`
	Index   int    `json:"index"`
	Matched bool   `json:"matched"`
}

// Match is one match of the pattern.
type Match struct {
	Match  string  `json:"match"`
	Index  int     `json:"index"`
	Groups []Group `json:"groups"`
}

// Request describes an evaluation.
type Request struct {
	Pattern     string  `json:"pattern"`
	Flags       string  `json:"flags"`
	Input       string  `json:"input"`
	Replacement *string `json:"replacement,omitempty"`
}

// Result is the outcome of Evaluate.
type Result struct {
	Literal   string  `json:"literal"`
	Matches   []Match `json:"matches"`
	Truncated bool    `json:"truncated,omitempty"`
	Replaced  *string `json:"replaced,omitempty"`
}

// Compile builds an ECMAScript-flavoured regexp from a pattern and a flag
// string made of g, i, m, s, u. Unknown flags are rejected; g is accepted and
// only affects Evaluate.
func Compile(pattern, flags string) (*regexp2.Regexp, error) {
	if pattern == "" {
		return nil, ErrEmptyPattern
	}
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	for _, f := range flags {
		switch f {
		case 'g':
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'u':
			opts |= regexp2.Unicode
		default:
			return nil, fmt.Errorf("unsupported flag %q", f)
		}
	}
	re, err := regexp2.Compile(pattern, opts)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	re.MatchTimeout = MatchTimeout
	return re, nil
}

// Evaluate runs the request. Without the g flag only the first match is returned.
// Indexes are rune offsets into the input.
func Evaluate(req Request) (Result, error) {
	re, err := Compile(req.Pattern, req.Flags)
	if err != nil {
		return Result{}, err
	}
	global := strings.ContainsRune(req.Flags, 'g')
	res := Result{Literal: "/" + req.Pattern + "/" + req.Flags, Matches: []Match{}}
	if req.Input != "" {
		m, err := re.FindStringMatch(req.Input)
		for m != nil && err == nil {
			if len(res.Matches) == MaxMatches {
				res.Truncated = true
				break
			}
			res.Matches = append(res.Matches, convert(m))
			if !global {
				break
			}
			m, err = re.FindNextMatch(m)
		}
		if err != nil {
			return Result{}, fmt.Errorf("match: %w", err)
		}
	}
	if req.Replacement != nil {
		count := 1
		if global {
			count = -1
		}
		out, err := re.Replace(req.Input, *req.Replacement, -1, count)
		if err != nil {
			return Result{}, fmt.Errorf("replace: %w", err)
		}
		res.Replaced = &out
	}
	return res, nil
}

func convert(m *regexp2.Match) Match {
	out := Match{Match: m.String(), Index: m.Index, Groups: []Group{}}
	for i, g := range m.Groups()[1:] {
		grp := Group{Number: i + 1, Index: -1}
		if g.Name != strconv.Itoa(i+1) {
			grp.Name = g.Name
		}
		if len(g.Captures) > 0 {
			grp.Matched = true
			grp.Value = g.String()
			grp.Index = g.Index
		}
		out.Groups = append(out.Groups, grp)
	}
	return out
}

// Token is one piece of an explained pattern.
type Token struct {
	Token   string `json:"token"`
	Meaning string `json:"meaning"`
}

var escapes = map[byte]string{
	'd': "Any digit",
	'D': "Any non-digit",
	'w': "Any word character",
	'W': "Any non-word character",
	's': "Any whitespace",
	'S': "Any non-whitespace",
	'b': "Word boundary",
	'B': "Non-word boundary",
}

// Explain splits a pattern into tokens with a short description of each.
func Explain(pattern string) []Token {
	var out []Token
	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch c {
		case '^':
			out = append(out, Token{"^", "Start of line"})
		case '$':
			out = append(out, Token{"$", "End of line"})
		case '.':
			out = append(out, Token{".", "Any character"})
		case '*':
			out = append(out, Token{"*", "Zero or more"})
		case '+':
			out = append(out, Token{"+", "One or more"})
		case '?':
			out = append(out, Token{"?", "Zero or one"})
		case '|':
			out = append(out, Token{"|", "Or"})
		case '\\':
			if i+1 < len(pattern) {
				next := pattern[i+1]
				meaning, ok := escapes[next]
				if !ok {
					meaning = fmt.Sprintf("Literal %q", string(next))
				}
				out = append(out, Token{pattern[i : i+2], meaning})
				i += 2
				continue
			}
		case '[':
			if end := strings.IndexByte(pattern[i+1:], ']'); end >= 0 {
				tok := pattern[i : i+end+2]
				out = append(out, Token{tok, "Any of " + tok})
				i += end + 2
				continue
			}
		case '{':
			if end := strings.IndexByte(pattern[i+1:], '}'); end >= 0 {
				tok := pattern[i : i+end+2]
				out = append(out, Token{tok, "Quantifier " + tok})
				i += end + 2
				continue
			}
		case '(':
			depth, j := 1, i+1
			for ; j < len(pattern) && depth > 0; j++ {
				switch pattern[j] {
				case '(':
					depth++
				case ')':
					depth--
				}
			}
			if depth == 0 {
				out = append(out, Token{pattern[i:j], "Capture group"})
				i = j
				continue
			}
		default:
			if isAlnum(c) {
				j := i + 1
				for j < len(pattern) && isAlnum(pattern[j]) {
					j++
				}
				out = append(out, Token{pattern[i:j], fmt.Sprintf("Literal %q", pattern[i:j])})
				i = j
				continue
			}
		}
		i++
	}
	return out
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// CommonPattern is a named ready-made pattern.
type CommonPattern struct {
	Name    string `json:"name"`
	Pattern string `json:"pattern"`
}

// CommonPatterns lists ready-made patterns.
func CommonPatterns() []CommonPattern {
	return []CommonPattern{
		{"email", `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`},
		{"url", `^https?:\/\/(www\.)?[-a-zA-Z0-9@:%._\+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b([-a-zA-Z0-9()@:%_\+.~#?&//=]*)$`},
		{"phone", `^[\+]?[(]?[0-9]{3}[)]?[-\s\.]?[0-9]{3}[-\s\.]?[0-9]{4,6}$`},
		{"ipv4", `^(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)$`},
		{"hex", `^#?([a-fA-F0-9]{6}|[a-fA-F0-9]{3})$`},
		{"date", `^\d{4}-\d{2}-\d{2}$`},
		{"time", `^([01]?[0-9]|2[0-3]):[0-5][0-9](:[0-5][0-9])?$`},
		{"username", `^[a-zA-Z0-9_-]{3,16}$`},
		{"password", `^(?=.*[a-z])(?=.*[A-Z])(?=.*\d)[a-zA-Z\d]{8,}$`},
		{"uuid", `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`},
	}
}
