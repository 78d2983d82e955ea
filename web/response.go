package web

import (
	"fmt"
	"runtime/debug"

	"github.com/kjosib/kale/iolist"
	"github.com/kjosib/kale/template"
)

// reasonPhrase maps the status codes this server emits to their
// conventional reason phrases.
var reasonPhrase = map[int]string{
	200: "OK",
	201: "Created",
	202: "Accepted",
	204: "No Content",
	301: "Moved Permanently",
	302: "Moved Temporarily",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
}

// ReasonPhrase returns the phrase for a status code, or "Unknown".
func ReasonPhrase(code int) string {
	if phrase, ok := reasonPhrase[code]; ok {
		return phrase
	}
	return "Unknown"
}

// Response is everything needed for one HTTP/1.0 reply. It is mutable
// until the serve loop writes it to the socket; the write is terminal.
type Response struct {
	Code   int
	Body   *iolist.Node
	header *Header

	// ShutDown asks the serve loop to exit cleanly after this
	// response has been flushed.
	ShutDown bool
}

// New builds a response with the given status and body. A nil body is
// an empty body.
func New(code int, body *iolist.Node) *Response {
	return &Response{Code: code, Body: body, header: NewHeader()}
}

// SetHeader sets a response header, last write wins. Content-Length
// and Connection are managed by the serve loop and need not be set.
func (r *Response) SetHeader(key, value string) *Response {
	r.header.Set(key, value)
	return r
}

// HeaderValue returns a previously set header, or "".
func (r *Response) HeaderValue(key string) string {
	return r.header.Get(key)
}

// OK wraps an assembled body in a 200 response.
func OK(body *iolist.Node) *Response {
	return New(200, body)
}

// Text is a 200 plain-text response.
func Text(text string) *Response {
	resp := New(200, iolist.Text(text))
	resp.SetHeader("Content-Type", "text/plain; charset=utf-8")
	return resp
}

// HTML is a 200 response with a literal HTML body.
func HTML(markup string) *Response {
	return New(200, iolist.Text(markup))
}

// Redirect is a 302 to the given location.
func Redirect(location string) *Response {
	resp := New(302, nil)
	resp.SetHeader("Location", location)
	return resp
}

// pageTemplate is the chrome around generic and error pages.
var pageTemplate = template.MustCompile(`<!DOCTYPE html>
<html><head><title>{title}</title></head>
<body><h1>{title}</h1>
{.body}
</body></html>
`)

// Generic renders a standard page for the given status. A nil body
// gives a bare page with the reason phrase as its heading.
func Generic(code int, title string, body *iolist.Node) *Response {
	if title == "" {
		title = ReasonPhrase(code)
	}
	if body == nil {
		body = iolist.Text("<p>No further information.</p>")
	}
	node, err := pageTemplate.Render(template.Context{"title": title, "body": body})
	if err != nil {
		// The chrome template has no optional fields; this cannot
		// happen short of a bug in this package.
		return New(code, iolist.Text(title))
	}
	return New(code, node)
}

// NotFound is the default 404 page.
func NotFound() *Response {
	return Generic(404, "", nil)
}

var panicTemplate = template.MustCompile(`<p>Something went wrong during: {method} <a href="{url}">{url}</a></p>
<p>Here is a stack trace. Perhaps you can send it to the responsible party.</p>
<pre style="background:#400;color:#fff;padding:20px;font-size:15px">{trace}</pre>
`)

// FromPanic builds the 500 page shown when a handler panics: what was
// being attempted plus the stack, since the only user of a local
// server is its developer or someone who can reach them.
func FromPanic(req *Request, recovered any) *Response {
	node, err := panicTemplate.Render(template.Context{
		"method": req.Method,
		"url":    req.RawURI,
		"trace":  fmt.Sprintf("%v\n\n%s", recovered, debug.Stack()),
	})
	if err != nil {
		return Generic(500, "", nil)
	}
	return Generic(500, "", node)
}
