package web

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strconv"
	"strings"
)

// ProtocolError classifies malformed input from the client. The serve
// loop answers it with a 400 and closes the connection.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

func protocolErrorf(format string, args ...any) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// Pair is one key/value from a query string or form body.
type Pair struct {
	Key   string
	Value string
}

// Form is an order-preserving multimap for query parameters and form
// fields. Get returns the most recent value for a key, matching what a
// simple form submission means; All returns every value in arrival
// order.
type Form struct {
	pairs []Pair
	last  map[string]string
	multi map[string][]string
}

// NewForm returns an empty Form.
func NewForm() *Form {
	return &Form{last: make(map[string]string), multi: make(map[string][]string)}
}

// Add appends a key/value pair.
func (f *Form) Add(key, value string) {
	f.pairs = append(f.pairs, Pair{Key: key, Value: value})
	f.last[key] = value
	f.multi[key] = append(f.multi[key], value)
}

// Get returns the most recent value for key, or "".
func (f *Form) Get(key string) string {
	return f.last[key]
}

// Lookup reports whether key is present along with its latest value.
func (f *Form) Lookup(key string) (string, bool) {
	v, ok := f.last[key]
	return v, ok
}

// All returns every value for key in arrival order.
func (f *Form) All(key string) []string {
	return f.multi[key]
}

// Pairs returns every key/value in arrival order.
func (f *Form) Pairs() []Pair {
	return f.pairs
}

// Len reports the number of pairs.
func (f *Form) Len() int {
	return len(f.pairs)
}

// Header is a case-insensitive header map with last-write-wins
// semantics. Keys are stored lowercase; insertion order is preserved
// for serialization.
type Header struct {
	order []string
	value map[string]string
}

// NewHeader returns an empty Header.
func NewHeader() *Header {
	return &Header{value: make(map[string]string)}
}

// Set stores a value, replacing any previous one for the same key.
func (h *Header) Set(key, value string) {
	k := strings.ToLower(key)
	if _, ok := h.value[k]; !ok {
		h.order = append(h.order, k)
	}
	h.value[k] = value
}

// Get returns the value for key, or "".
func (h *Header) Get(key string) string {
	return h.value[strings.ToLower(key)]
}

// Has reports whether key is present.
func (h *Header) Has(key string) bool {
	_, ok := h.value[strings.ToLower(key)]
	return ok
}

// Each calls fn for every header in insertion order.
func (h *Header) Each(fn func(key, value string)) {
	for _, k := range h.order {
		fn(k, h.value[k])
	}
}

// FileUpload is one file from a multipart/form-data submission.
type FileUpload struct {
	Field       string
	Filename    string
	ContentType string
	Content     []byte
}

// Request is one parsed HTTP message. Once built it is never mutated;
// the With* methods return shallow copies. The zero of everything
// here comes from the wire, except the context, which middleware may
// extend with request-scoped values.
type Request struct {
	Method string
	RawURI string
	Proto  string

	// Path holds the decoded, non-empty path segments. The serve path
	// "/" is the empty slice. Trailing-slash state lives in RawURI.
	Path []string

	Query  *Form
	Header *Header
	Body   []byte

	ctx context.Context

	// Lazily decoded body forms, filled on first PostForm/Uploads call.
	postForm *Form
	uploads  []FileUpload
	bodyErr  error
	decoded  bool
}

// NewRequest builds a request from native values, which keeps
// handler tests independent of the wire format.
func NewRequest(method, rawURI string) *Request {
	req := &Request{
		Method: method,
		RawURI: rawURI,
		Proto:  "HTTP/1.0",
		Query:  NewForm(),
		Header: NewHeader(),
		ctx:    context.Background(),
	}
	if u, err := url.ParseRequestURI(rawURI); err == nil {
		req.Path = splitPath(u.Path)
		req.Query = parseQuery(u.RawQuery)
	}
	return req
}

// Context returns the request's context, never nil.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy carrying ctx.
func (r *Request) WithContext(ctx context.Context) *Request {
	clone := *r
	clone.ctx = ctx
	return &clone
}

// WithPath returns a shallow copy whose path is replaced, used by
// Mount to strip a routing prefix before delegating.
func (r *Request) WithPath(segments []string) *Request {
	clone := *r
	clone.Path = segments
	return &clone
}

// PostForm returns the decoded request body for form content types.
// For other content types it returns an empty form. The decode runs
// once and is cached.
func (r *Request) PostForm() (*Form, error) {
	r.decodeBody()
	return r.postForm, r.bodyErr
}

// Uploads returns the files from a multipart/form-data body.
func (r *Request) Uploads() ([]FileUpload, error) {
	r.decodeBody()
	return r.uploads, r.bodyErr
}

func (r *Request) decodeBody() {
	if r.decoded {
		return
	}
	r.decoded = true
	r.postForm = NewForm()
	if len(r.Body) == 0 {
		return
	}
	ctype := r.Header.Get("Content-Type")
	mediaType, mtParams, err := mime.ParseMediaType(ctype)
	if err != nil {
		return
	}
	switch mediaType {
	case "application/x-www-form-urlencoded":
		form, err := parseQueryStrict(string(r.Body))
		if err != nil {
			r.bodyErr = protocolErrorf("bad form body: %v", err)
			return
		}
		r.postForm = form
	case "multipart/form-data":
		boundary := mtParams["boundary"]
		if boundary == "" {
			r.bodyErr = protocolErrorf("multipart body without boundary")
			return
		}
		r.decodeMultipart(boundary)
	}
}

func (r *Request) decodeMultipart(boundary string) {
	mr := multipart.NewReader(bytes.NewReader(r.Body), boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return
		}
		if err != nil {
			r.bodyErr = protocolErrorf("bad multipart body: %v", err)
			return
		}
		content, err := io.ReadAll(part)
		if err != nil {
			r.bodyErr = protocolErrorf("bad multipart part: %v", err)
			return
		}
		if name := part.FormName(); name != "" {
			if filename := part.FileName(); filename != "" {
				ctype := part.Header.Get("Content-Type")
				if ctype == "" {
					ctype = "application/octet-stream"
				}
				r.uploads = append(r.uploads, FileUpload{
					Field:       name,
					Filename:    filename,
					ContentType: ctype,
					Content:     content,
				})
			} else {
				r.postForm.Add(name, string(content))
			}
		}
	}
}

// splitPath decodes a URL path into its non-empty segments.
func splitPath(p string) []string {
	var segs []string
	for _, raw := range strings.Split(p, "/") {
		if raw == "" {
			continue
		}
		seg, err := url.PathUnescape(raw)
		if err != nil {
			seg = raw
		}
		segs = append(segs, seg)
	}
	return segs
}

// parseQuery decodes a raw query string, keeping blank values and the
// arrival order of duplicate keys. Undecodable pieces are kept
// verbatim rather than dropped.
func parseQuery(raw string) *Form {
	form, _ := parseQueryInto(raw, false)
	return form
}

// parseQueryStrict is parseQuery but undecodable input is an error,
// used for POST bodies where garbage means a broken client.
func parseQueryStrict(raw string) (*Form, error) {
	return parseQueryInto(raw, true)
}

func parseQueryInto(raw string, strict bool) (*Form, error) {
	form := NewForm()
	for _, piece := range strings.Split(raw, "&") {
		if piece == "" {
			continue
		}
		key, value, _ := strings.Cut(piece, "=")
		k, err := url.QueryUnescape(key)
		if err != nil {
			if strict {
				return nil, fmt.Errorf("bad query key %q", key)
			}
			k = key
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			if strict {
				return nil, fmt.Errorf("bad query value %q", value)
			}
			v = value
		}
		form.Add(k, v)
	}
	return form, nil
}

// ReadRequest parses one HTTP/1.0-style request from br: request
// line, headers, and a body sized by Content-Length. Chunked bodies
// are not supported; this server speaks HTTP/1.0 on purpose. maxBody
// bounds the declared body size.
func ReadRequest(br *bufio.Reader, maxBody int) (*Request, error) {
	remain := maxBody
	line, err := readLine(br, &remain)
	if err != nil {
		return nil, protocolErrorf("reading request line: %v", err)
	}
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return nil, protocolErrorf("bad request line %q", line)
	}
	method, rawURI, proto := parts[0], parts[1], parts[2]
	if !strings.HasPrefix(proto, "HTTP/") {
		return nil, protocolErrorf("bad protocol %q", proto)
	}

	header := NewHeader()
	for {
		line, err := readLine(br, &remain)
		if err != nil {
			return nil, protocolErrorf("reading headers: %v", err)
		}
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, protocolErrorf("bogus header line %q", line)
		}
		header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	var body []byte
	if cl := header.Get("Content-Length"); cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return nil, protocolErrorf("bad Content-Length %q", cl)
		}
		if n > maxBody {
			return nil, protocolErrorf("declared body of %d bytes exceeds the %d byte limit", n, maxBody)
		}
		body = make([]byte, n)
		if _, err := io.ReadFull(br, body); err != nil {
			return nil, protocolErrorf("body shorter than declared: %v", err)
		}
	}

	u, err := url.ParseRequestURI(rawURI)
	if err != nil {
		return nil, protocolErrorf("bad request URI %q", rawURI)
	}

	return &Request{
		Method: method,
		RawURI: rawURI,
		Proto:  proto,
		Path:   splitPath(u.Path),
		Query:  parseQuery(u.RawQuery),
		Header: header,
		Body:   body,
		ctx:    context.Background(),
	}, nil
}

// readLine reads one CRLF- (or bare LF-) terminated line, charging
// the bytes consumed against *remain so that a client cannot stream
// an endless request line or header block.
func readLine(br *bufio.Reader, remain *int) (string, error) {
	var line []byte
	for {
		chunk, err := br.ReadSlice('\n')
		*remain -= len(chunk)
		if *remain < 0 {
			return "", errors.New("request head too large")
		}
		line = append(line, chunk...)
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			return "", err
		}
		return string(bytes.TrimRight(line, "\r\n")), nil
	}
}
