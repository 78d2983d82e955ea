// Package template compiles a small HTML templating language into
// reusable renderers that produce iolist trees. The language has three
// forms: plain text with {field} interpolation, a loop form for
// repeating a body over a sequence, and an extend form that fills
// named slots of a parent template. Compilation happens once; a
// compiled template may be rendered any number of times.
package template

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/kjosib/kale/iolist"
)

// Context supplies values to a render. String values are HTML-escaped
// on interpolation, *iolist.Node values pass through untouched, nil
// renders as nothing, and anything else goes through fmt and is then
// escaped.
type Context map[string]any

// Template is a compiled renderer. Render never emits partial output:
// it either returns a complete tree or an error.
type Template interface {
	Render(ctx Context) (*iolist.Node, error)
}

// MissingKeyError reports a {field} whose key is absent from the
// render context. Absent and nil are different: a nil value renders
// empty, an absent key is a bug in the calling handler.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("template: no value for {%s}", e.Key)
}

// Filter is a value preprocessor usable as {field:name}. The result
// is HTML-escaped after the filter runs.
type Filter func(value any) (string, error)

// filters is the package registry, consulted at compile time.
var filters = map[string]Filter{
	"num":   filterNum,
	"cents": filterCents,
}

// RegisterFilter installs a filter under the given name for use as
// {field:name}. Call before compiling templates that mention it.
func RegisterFilter(name string, fn Filter) {
	filters[name] = fn
}

// Compile parses template source into a renderer. The form is chosen
// by prefix: "<loop" and "<extend>" select the composite forms, and
// anything else is plain text with interpolation. Extend templates
// name a parent, so they can only be compiled through a Folder.
func Compile(src string) (Template, error) {
	return compile(src, nil)
}

// MustCompile is Compile for package-level template literals.
func MustCompile(src string) Template {
	t, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return t
}

type resolver func(name string) (Template, error)

func compile(src string, resolve resolver) (Template, error) {
	trimmed := strings.TrimLeft(src, " \t\r\n")
	switch {
	case strings.HasPrefix(trimmed, beginExtend):
		if resolve == nil {
			return nil, fmt.Errorf("template: extend form requires a template folder")
		}
		return compileExtend(trimmed, resolve)
	case strings.HasPrefix(trimmed, "<loop"):
		return compileLoop(trimmed)
	default:
		return compileText(src)
	}
}

// fieldPattern matches {name}, {.name} (raw, no escaping), and
// {name:filter}. The dot and the filter are mutually exclusive.
var fieldPattern = regexp.MustCompile(`\{(\.?)([_a-zA-Z]\w*)(:\w+)?\}`)

// step emits one piece of a rendered text template.
type step func(ctx Context) (*iolist.Node, error)

// textTemplate is a compiled plain-text template: an alternation of
// literal chunks and field lookups.
type textTemplate struct {
	steps []step
}

func compileText(src string) (Template, error) {
	var steps []step
	left := 0
	for _, m := range fieldPattern.FindAllStringSubmatchIndex(src, -1) {
		if left < m[0] {
			steps = append(steps, literalStep(src[left:m[0]]))
		}
		key := src[m[4]:m[5]]
		raw := m[2] != m[3]
		if raw && m[6] != m[7] {
			return nil, fmt.Errorf("template: {.%s%s} mixes raw passthrough with a filter", key, src[m[6]:m[7]])
		}
		switch {
		case raw:
			steps = append(steps, rawStep(key))
		case m[6] != m[7]:
			name := src[m[6]+1 : m[7]] // drop the leading colon
			fn, ok := filters[name]
			if !ok {
				return nil, fmt.Errorf("template: unknown filter :%s", name)
			}
			steps = append(steps, filterStep(key, fn))
		default:
			steps = append(steps, escapeStep(key))
		}
		left = m[1]
	}
	if left < len(src) {
		steps = append(steps, literalStep(src[left:]))
	}
	return &textTemplate{steps: steps}, nil
}

func (t *textTemplate) Render(ctx Context) (*iolist.Node, error) {
	out := iolist.Seq()
	for _, s := range t.steps {
		node, err := s(ctx)
		if err != nil {
			return nil, err
		}
		out.Append(node)
	}
	return out, nil
}

func literalStep(text string) step {
	chunk := []byte(text)
	return func(Context) (*iolist.Node, error) {
		return iolist.Bytes(chunk), nil
	}
}

func escapeStep(key string) step {
	return func(ctx Context) (*iolist.Node, error) {
		value, ok := ctx[key]
		if !ok {
			return nil, &MissingKeyError{Key: key}
		}
		return escapeValue(value)
	}
}

func rawStep(key string) step {
	return func(ctx Context) (*iolist.Node, error) {
		value, ok := ctx[key]
		if !ok {
			return nil, &MissingKeyError{Key: key}
		}
		switch v := value.(type) {
		case nil:
			return nil, nil
		case *iolist.Node:
			return shareNode(v), nil
		case string:
			return iolist.Text(v), nil
		case []byte:
			return iolist.Bytes(v), nil
		default:
			return iolist.Text(fmt.Sprint(v)), nil
		}
	}
}

func filterStep(key string, fn Filter) step {
	return func(ctx Context) (*iolist.Node, error) {
		value, ok := ctx[key]
		if !ok {
			return nil, &MissingKeyError{Key: key}
		}
		text, err := fn(value)
		if err != nil {
			return nil, fmt.Errorf("template: filter on {%s}: %w", key, err)
		}
		return iolist.Text(html.EscapeString(text)), nil
	}
}

// shareNode lets one context value appear at several interpolation
// points. The first use takes the tree itself; later uses get a
// flattened copy, since a node may have only one parent.
func shareNode(n *iolist.Node) *iolist.Node {
	if n.Attached() {
		return iolist.Bytes(n.Flat())
	}
	return n
}

func escapeValue(value any) (*iolist.Node, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return iolist.Text(html.EscapeString(v)), nil
	case *iolist.Node:
		// Already-assembled content is trusted as markup.
		return shareNode(v), nil
	case []byte:
		return iolist.Text(html.EscapeString(string(v))), nil
	default:
		return iolist.Text(html.EscapeString(fmt.Sprint(v))), nil
	}
}

// filterNum renders integers and floats with thousands separators.
func filterNum(value any) (string, error) {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return groupDigits(fmt.Sprint(v)), nil
	case float32, float64:
		return groupDigits(fmt.Sprintf("%.0f", v)), nil
	default:
		return "", fmt.Errorf("not a number: %T", value)
	}
}

// filterCents is filterNum with two decimal places kept.
func filterCents(value any) (string, error) {
	var text string
	switch v := value.(type) {
	case float32, float64:
		text = fmt.Sprintf("%.2f", v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		text = fmt.Sprint(v) + ".00"
	default:
		return "", fmt.Errorf("not a number: %T", value)
	}
	dot := strings.IndexByte(text, '.')
	return groupDigits(text[:dot]) + text[dot:], nil
}

func groupDigits(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	head := len(s) % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	out := b.String()
	if neg {
		out = "-" + out
	}
	return out
}
