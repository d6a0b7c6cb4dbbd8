// Package template compiles path templates with typed placeholders into
// matchers and builders. A template is an ordered sequence of literal
// segments and `{name}` or `{name:type}` placeholders, where type is one
// of string (default), int or float. Literal braces are escaped as `{{`
// and `}}`.
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jeromerg/filoc/api"
)

// Kind is the declared type of a placeholder.
type Kind int

const (
	String Kind = iota
	Int
	Float
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Float:
		return "float"
	default:
		return "string"
	}
}

// Placeholder is one typed slot of a compiled template.
type Placeholder struct {
	Name string
	Kind Kind
}

// Matching grammars. Strings match a non-separator run; ints accept an
// optional sign and hex/octal/binary prefixes; floats accept the general
// numeric grammar with optional exponent.
const (
	reString = `[^/]+?`
	reInt    = `[-+]?(?:0[xX][0-9a-fA-F]+|0[oO][0-7]+|0[bB][01]+|\d+)`
	reFloat  = `[-+]?(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][-+]?\d+)?`
)

var nameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type segment struct {
	literal string // when placeholder is nil
	ph      *Placeholder
}

// Compiled is an immutable compiled path template.
type Compiled struct {
	raw      string
	segments []segment
	re       *regexp.Regexp
	phs      []Placeholder // in appearance order
	prefix   string        // literal text before the first placeholder
}

// Compile parses a path template. It fails with *api.TemplateError when
// a placeholder name repeats, a type annotation is unrecognized or the
// braces are unbalanced.
func Compile(tmpl string) (*Compiled, error) {
	c := &Compiled{raw: tmpl}
	seen := map[string]bool{}

	var lit strings.Builder
	flushLiteral := func() {
		if lit.Len() > 0 {
			c.segments = append(c.segments, segment{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(tmpl); {
		switch tmpl[i] {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				lit.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return nil, &api.TemplateError{Template: tmpl, Reason: "unbalanced '{'"}
			}
			ph, err := parsePlaceholder(tmpl, tmpl[i+1:i+end])
			if err != nil {
				return nil, err
			}
			if seen[ph.Name] {
				return nil, &api.TemplateError{Template: tmpl, Reason: fmt.Sprintf("placeholder %q repeats", ph.Name)}
			}
			seen[ph.Name] = true
			flushLiteral()
			c.segments = append(c.segments, segment{ph: ph})
			c.phs = append(c.phs, *ph)
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				lit.WriteByte('}')
				i += 2
				continue
			}
			return nil, &api.TemplateError{Template: tmpl, Reason: "unbalanced '}'"}
		default:
			lit.WriteByte(tmpl[i])
			i++
		}
	}
	flushLiteral()

	// literal prefix before the first placeholder
	if len(c.segments) > 0 && c.segments[0].ph == nil {
		c.prefix = c.segments[0].literal
	}

	var pattern strings.Builder
	pattern.WriteByte('^')
	for _, seg := range c.segments {
		if seg.ph == nil {
			pattern.WriteString(regexp.QuoteMeta(seg.literal))
			continue
		}
		pattern.WriteString("(?P<")
		pattern.WriteString(seg.ph.Name)
		pattern.WriteString(">")
		switch seg.ph.Kind {
		case Int:
			pattern.WriteString(reInt)
		case Float:
			pattern.WriteString(reFloat)
		default:
			pattern.WriteString(reString)
		}
		pattern.WriteString(")")
	}
	pattern.WriteByte('$')

	re, err := regexp.Compile(pattern.String())
	if err != nil {
		return nil, &api.TemplateError{Template: tmpl, Reason: err.Error()}
	}
	c.re = re
	return c, nil
}

func parsePlaceholder(tmpl, body string) (*Placeholder, error) {
	name, typ, hasType := strings.Cut(body, ":")
	if !nameRe.MatchString(name) {
		return nil, &api.TemplateError{Template: tmpl, Reason: fmt.Sprintf("invalid placeholder name %q", name)}
	}
	ph := &Placeholder{Name: name}
	if !hasType {
		return ph, nil
	}
	switch typ {
	case "string", "str":
		ph.Kind = String
	case "int", "integer", "d":
		ph.Kind = Int
	case "float", "g":
		ph.Kind = Float
	default:
		return nil, &api.TemplateError{Template: tmpl, Reason: fmt.Sprintf("unknown type %q for placeholder %q", typ, name)}
	}
	return ph, nil
}

// String returns the original template text.
func (c *Compiled) String() string { return c.raw }

// Names returns the placeholder names in appearance order.
func (c *Compiled) Names() []string {
	names := make([]string, len(c.phs))
	for i, ph := range c.phs {
		names[i] = ph.Name
	}
	return names
}

// Placeholders returns the typed placeholders in appearance order.
func (c *Compiled) Placeholders() []Placeholder {
	out := make([]Placeholder, len(c.phs))
	copy(out, c.phs)
	return out
}

// HasName reports whether name is a placeholder of the template.
func (c *Compiled) HasName(name string) bool {
	for _, ph := range c.phs {
		if ph.Name == name {
			return true
		}
	}
	return false
}

// GlobPrefix returns the deepest directory of the literal prefix before
// the first placeholder, used to scope storage listing. Empty when the
// template starts with a placeholder at the root.
func (c *Compiled) GlobPrefix() string {
	i := strings.LastIndexByte(c.prefix, '/')
	if i < 0 {
		return ""
	}
	if i == 0 {
		return "/"
	}
	return c.prefix[:i]
}

// Match performs a full-length match of path against the template and
// extracts the typed placeholder values. It returns nil, false when the
// path does not conform, including when a captured run is not a valid
// literal of the declared type.
func (c *Compiled) Match(path string) (api.Binding, bool) {
	m := c.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	binding := api.Binding{}
	for i, name := range c.re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		ph := c.placeholder(name)
		switch ph.Kind {
		case Int:
			v, err := strconv.ParseInt(m[i], 0, 64)
			if err != nil {
				return nil, false
			}
			binding[name] = v
		case Float:
			v, err := strconv.ParseFloat(m[i], 64)
			if err != nil {
				return nil, false
			}
			binding[name] = v
		default:
			binding[name] = m[i]
		}
	}
	return binding, true
}

func (c *Compiled) placeholder(name string) *Placeholder {
	for i := range c.phs {
		if c.phs[i].Name == name {
			return &c.phs[i]
		}
	}
	return nil
}

// Build renders the concrete path for a full binding. It fails with
// *api.MissingKeyError when a placeholder has no bound value and with
// *api.TypeMismatchError when a bound value disagrees with the declared
// placeholder type. Integers render in base 10 and floats in their
// shortest form, the canonical spellings Match parses back unchanged.
func (c *Compiled) Build(binding api.Binding) (string, error) {
	var out strings.Builder
	for _, seg := range c.segments {
		if seg.ph == nil {
			out.WriteString(seg.literal)
			continue
		}
		raw, ok := binding[seg.ph.Name]
		if !ok {
			return "", &api.MissingKeyError{Template: c.raw, Name: seg.ph.Name}
		}
		s, err := formatValue(seg.ph, api.Normalize(raw))
		if err != nil {
			return "", err
		}
		out.WriteString(s)
	}
	return out.String(), nil
}

func formatValue(ph *Placeholder, v any) (string, error) {
	switch ph.Kind {
	case Int:
		i, ok := v.(int64)
		if !ok {
			return "", &api.TypeMismatchError{Name: ph.Name, Want: "int", Value: v}
		}
		return strconv.FormatInt(i, 10), nil
	case Float:
		switch x := v.(type) {
		case float64:
			return strconv.FormatFloat(x, 'g', -1, 64), nil
		case int64:
			// lossless widening, accepted for convenience
			return strconv.FormatFloat(float64(x), 'g', -1, 64), nil
		}
		return "", &api.TypeMismatchError{Name: ph.Name, Want: "float", Value: v}
	default:
		s, ok := v.(string)
		if !ok {
			return "", &api.TypeMismatchError{Name: ph.Name, Want: "string", Value: v}
		}
		if strings.ContainsRune(s, '/') {
			return "", &api.TypeMismatchError{Name: ph.Name, Want: "string without '/'", Value: v}
		}
		return s, nil
	}
}
