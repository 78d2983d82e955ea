package web

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Router dispatches requests to handlers by path pattern and method.
// Patterns are slash-separated sequences of literal segments, {name}
// capture segments, and an optional trailing * wildcard:
//
//	r.Route("GET", "/item/{id}", showItem)
//	r.Route("GET", "/static/*", assets)
//
// At each depth a literal outranks a capture, and a capture outranks
// the wildcard; among capture edges, the first one registered wins.
// Routers implement Handler, so a router can be mounted inside
// another.
//
// Registration happens at startup; the tree is read-only while
// serving. Conflicting registrations panic, following the
// net/http.ServeMux convention for configuration errors.
type Router struct {
	root *routeNode

	// NotFound answers requests no pattern matches. Defaults to the
	// standard 404 page.
	NotFound Handler
}

type routeNode struct {
	literals map[string]*routeNode
	captures []captureEdge
	methods  map[string]Handler // terminal handlers for an exact-length match
	wild     map[string]Handler // terminal handlers for a trailing * at this depth
}

type captureEdge struct {
	name string
	node *routeNode
}

// methodAny is the registration key meaning "any method", used by
// Mount so a sub-handler sees every verb.
const methodAny = "*"

func newRouteNode() *routeNode {
	return &routeNode{literals: make(map[string]*routeNode)}
}

// NewRouter returns an empty router with the default not-found page.
func NewRouter() *Router {
	return &Router{
		root: newRouteNode(),
		NotFound: HandlerFunc(func(*Request, Params) (*Response, error) {
			return NotFound(), nil
		}),
	}
}

// Route registers a handler for the given method and pattern. Method
// "*" matches any method. It panics on a malformed pattern or a
// duplicate registration.
func (rt *Router) Route(method, pattern string, h Handler) {
	if h == nil {
		panic("web: nil handler for " + pattern)
	}
	method = strings.ToUpper(method)
	segments, wildcard := parsePattern(pattern)
	node := rt.root
	for _, seg := range segments {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			name := seg[1 : len(seg)-1]
			if name == "" {
				panic("web: empty capture name in pattern " + pattern)
			}
			node = node.digCapture(name)
		} else {
			node = node.digLiteral(seg)
		}
	}
	table := &node.methods
	if wildcard {
		table = &node.wild
	}
	if *table == nil {
		*table = make(map[string]Handler)
	}
	if _, exists := (*table)[method]; exists {
		panic(fmt.Sprintf("web: duplicate route %s %s", method, pattern))
	}
	(*table)[method] = h
}

// HandleFunc is Route for a plain function.
func (rt *Router) HandleFunc(method, pattern string, fn HandlerFunc) {
	rt.Route(method, pattern, fn)
}

// Mount delegates everything under prefix to h, with the prefix
// stripped from the request path. The remainder is also available as
// params["*"].
func (rt *Router) Mount(prefix string, h Handler) {
	pattern := strings.TrimSuffix(prefix, "/") + "/*"
	rt.Route(methodAny, pattern, HandlerFunc(func(req *Request, params Params) (*Response, error) {
		var rest []string
		if tail := params["*"]; tail != "" {
			rest = strings.Split(tail, "/")
		}
		return h.Handle(req.WithPath(rest), params)
	}))
}

func parsePattern(pattern string) (segments []string, wildcard bool) {
	if !strings.HasPrefix(pattern, "/") {
		panic("web: pattern must begin with a slash: " + pattern)
	}
	for _, seg := range strings.Split(strings.Trim(pattern, "/"), "/") {
		if seg == "" {
			continue
		}
		segments = append(segments, seg)
	}
	if n := len(segments); n > 0 && segments[n-1] == "*" {
		segments = segments[:n-1]
		wildcard = true
	}
	for _, seg := range segments {
		if seg == "*" {
			panic("web: * is only valid as the final segment: " + pattern)
		}
	}
	return segments, wildcard
}

func (n *routeNode) digLiteral(seg string) *routeNode {
	if kid, ok := n.literals[seg]; ok {
		return kid
	}
	kid := newRouteNode()
	n.literals[seg] = kid
	return kid
}

func (n *routeNode) digCapture(name string) *routeNode {
	for _, edge := range n.captures {
		if edge.name == name {
			return edge.node
		}
	}
	kid := newRouteNode()
	n.captures = append(n.captures, captureEdge{name: name, node: kid})
	return kid
}

// Handle implements Handler. A request whose path is not in normal
// form (".", "..", or empty interior segments) is redirected to the
// normal form before any handler runs.
func (rt *Router) Handle(req *Request, params Params) (*Response, error) {
	if target, ok := normalizeTarget(req.RawURI); ok {
		return Redirect(target), nil
	}
	found := Params{}
	for k, v := range params {
		found[k] = v
	}
	allowed := map[string]bool{}
	h := rt.root.match(req.Method, req.Path, found, allowed)
	if h == nil {
		if len(allowed) > 0 {
			return methodNotAllowed(allowed), nil
		}
		return rt.NotFound.Handle(req, found)
	}
	return h.Handle(req, found)
}

// match finds the handler for the remaining path segments, binding
// captures into params as it goes. On failure params may hold stale
// bindings; the caller only uses it after success. allowed collects
// methods seen at path-matching terminals so a miss can become a 405.
func (n *routeNode) match(method string, segs []string, params Params, allowed map[string]bool) Handler {
	if len(segs) == 0 {
		if h := pickMethod(n.methods, method, allowed); h != nil {
			return h
		}
		// A trailing wildcard also matches an empty remainder.
		if h := pickMethod(n.wild, method, allowed); h != nil {
			params["*"] = ""
			return h
		}
		return nil
	}
	head, rest := segs[0], segs[1:]
	if kid, ok := n.literals[head]; ok {
		if h := kid.match(method, rest, params, allowed); h != nil {
			return h
		}
	}
	for _, edge := range n.captures {
		params[edge.name] = head
		if h := edge.node.match(method, rest, params, allowed); h != nil {
			return h
		}
		delete(params, edge.name)
	}
	if h := pickMethod(n.wild, method, allowed); h != nil {
		params["*"] = strings.Join(segs, "/")
		return h
	}
	return nil
}

func pickMethod(table map[string]Handler, method string, allowed map[string]bool) Handler {
	if len(table) == 0 {
		return nil
	}
	if h, ok := table[method]; ok {
		return h
	}
	if h, ok := table[methodAny]; ok {
		return h
	}
	for m := range table {
		allowed[m] = true
	}
	return nil
}

func methodNotAllowed(allowed map[string]bool) *Response {
	methods := make([]string, 0, len(allowed))
	for m := range allowed {
		if m != methodAny {
			methods = append(methods, m)
		}
	}
	sort.Strings(methods)
	resp := Generic(405, "", nil)
	resp.SetHeader("Allow", strings.Join(methods, ", "))
	return resp
}

// normalizeTarget reports whether the request path needs tidying and,
// if so, the canonical URL to redirect to. Dot segments collapse and
// empty interior segments drop; a trailing slash survives.
func normalizeTarget(rawURI string) (string, bool) {
	u, err := url.ParseRequestURI(rawURI)
	if err != nil {
		return "", false
	}
	p := u.Path
	if p == "" || p == "/" {
		return "", false
	}
	raw := strings.Split(p[1:], "/")
	var normal []string
	dirty := false
	for i, seg := range raw {
		switch seg {
		case "":
			if i != len(raw)-1 {
				dirty = true
			}
		case ".":
			dirty = true
		case "..":
			dirty = true
			if len(normal) > 0 {
				normal = normal[:len(normal)-1]
			}
		default:
			normal = append(normal, seg)
		}
	}
	if !dirty {
		return "", false
	}
	escaped := make([]string, len(normal))
	for i, seg := range normal {
		escaped[i] = url.PathEscape(seg)
	}
	target := "/" + strings.Join(escaped, "/")
	if strings.HasSuffix(p, "/") && target != "/" {
		target += "/"
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return target, true
}
