package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kjosib/kale/iolist"
)

const (
	beginExtend = "<extend>"
	endExtend   = "</extend>"
	endLoop     = "</loop>"
)

// loopTag matches the opening of a loop form. The optional word names
// the context key holding the sequence; it defaults to "items".
var loopTag = regexp.MustCompile(`^<loop(?:\s+([_a-zA-Z]\w*))?\s*>`)

// piPattern matches the <?name?> processing instructions that divide
// a composite template into sections.
var piPattern = regexp.MustCompile(`<\?\s*(\w+)\s*\?>`)

// loopTemplate repeats its body once per element of a named sequence,
// bracketed by a preamble and epilogue. An empty sequence renders the
// otherwise branch instead, or nothing if none was given.
type loopTemplate struct {
	key       string
	preamble  Template
	body      Template
	epilogue  Template
	otherwise Template // nil when no <?else?> section
}

func compileLoop(src string) (Template, error) {
	tag := loopTag.FindStringSubmatch(src)
	if tag == nil {
		return nil, fmt.Errorf("template: malformed <loop> tag")
	}
	key := tag[1]
	if key == "" {
		key = "items"
	}
	sections, err := splitSections(src[len(tag[0]):], endLoop)
	if err != nil {
		return nil, err
	}
	for name := range sections {
		switch name {
		case "", "begin", "end", "else":
		default:
			return nil, fmt.Errorf("template: loop has unexpected section <?%s?>", name)
		}
	}
	body, ok := sections["begin"]
	if !ok {
		return nil, fmt.Errorf("template: loop is missing its <?begin?> section")
	}
	lt := &loopTemplate{key: key}
	if lt.preamble, err = compileText(sections[""]); err != nil {
		return nil, err
	}
	if lt.body, err = compileText(body); err != nil {
		return nil, err
	}
	if lt.epilogue, err = compileText(sections["end"]); err != nil {
		return nil, err
	}
	if otherwise, ok := sections["else"]; ok {
		if lt.otherwise, err = compileText(otherwise); err != nil {
			return nil, err
		}
	}
	return lt, nil
}

func (t *loopTemplate) Render(ctx Context) (*iolist.Node, error) {
	value, ok := ctx[t.key]
	if !ok {
		return nil, &MissingKeyError{Key: t.key}
	}
	items, err := asSequence(t.key, value)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		if t.otherwise == nil {
			return iolist.Seq(), nil
		}
		return t.otherwise.Render(ctx)
	}
	out := iolist.Seq()
	pre, err := t.preamble.Render(ctx)
	if err != nil {
		return nil, err
	}
	out.Append(pre)
	for _, item := range items {
		scope := make(Context, len(ctx)+len(item))
		for k, v := range ctx {
			scope[k] = v
		}
		for k, v := range item {
			scope[k] = v
		}
		body, err := t.body.Render(scope)
		if err != nil {
			return nil, err
		}
		out.Append(body)
	}
	post, err := t.epilogue.Render(ctx)
	if err != nil {
		return nil, err
	}
	out.Append(post)
	return out, nil
}

// asSequence accepts the shapes handlers naturally produce for loop
// data: a slice of Context, of map[string]any, or of any whose
// elements are one of those.
func asSequence(key string, value any) ([]Context, error) {
	switch v := value.(type) {
	case []Context:
		return v, nil
	case []map[string]any:
		items := make([]Context, len(v))
		for i, m := range v {
			items[i] = Context(m)
		}
		return items, nil
	case []any:
		items := make([]Context, len(v))
		for i, e := range v {
			switch m := e.(type) {
			case Context:
				items[i] = m
			case map[string]any:
				items[i] = Context(m)
			default:
				return nil, fmt.Errorf("template: loop over {%s}: element %d is %T, want a map", key, i, e)
			}
		}
		return items, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("template: loop over {%s}: got %T, want a sequence", key, value)
	}
}

// assembly is a compiled <extend> form: slot fragments rendered into
// the raw-interpolation positions of a parent template. Each fragment
// renders exactly once per call; the parent receives finished iolist
// trees, never re-rendered text.
type assembly struct {
	base  Template
	slots map[string]Template
}

func compileExtend(src string, resolve resolver) (Template, error) {
	sections, err := splitSections(src[len(beginExtend):], endExtend)
	if err != nil {
		return nil, err
	}
	parent := strings.TrimSpace(sections[""])
	if parent == "" {
		return nil, fmt.Errorf("template: extend names no parent template")
	}
	base, err := resolve(parent)
	if err != nil {
		return nil, fmt.Errorf("template: extend %q: %w", parent, err)
	}
	a := &assembly{base: base, slots: make(map[string]Template, len(sections)-1)}
	for name, text := range sections {
		if name == "" {
			continue
		}
		slot, err := compile(text, resolve)
		if err != nil {
			return nil, fmt.Errorf("template: slot <?%s?>: %w", name, err)
		}
		a.slots[name] = slot
	}
	return a, nil
}

func (t *assembly) Render(ctx Context) (*iolist.Node, error) {
	merged := make(Context, len(ctx)+len(t.slots))
	for k, v := range ctx {
		merged[k] = v
	}
	for name, slot := range t.slots {
		node, err := slot.Render(ctx)
		if err != nil {
			return nil, err
		}
		merged[name] = node
	}
	return t.base.Render(merged)
}

// splitSections divides composite-template text at <?name?> marks.
// The text before the first mark is keyed by the empty string. The
// end marker must be the last non-whitespace content.
func splitSections(text, endMarker string) (map[string]string, error) {
	right := strings.LastIndex(text, endMarker)
	if right < 0 {
		return nil, fmt.Errorf("template: missing %s", endMarker)
	}
	if tail := text[right+len(endMarker):]; strings.TrimSpace(tail) != "" {
		return nil, fmt.Errorf("template: content after %s", endMarker)
	}
	body := text[:right]
	sections := make(map[string]string)
	key := ""
	left := 0
	for _, m := range piPattern.FindAllStringSubmatchIndex(body, -1) {
		sections[key] = strings.TrimSpace(body[left:m[0]])
		key = body[m[2]:m[3]]
		left = m[1]
	}
	sections[key] = strings.TrimSpace(body[left:])
	return sections, nil
}
