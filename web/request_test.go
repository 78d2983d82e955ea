package web

import (
	"bufio"
	"bytes"
	"errors"
	"mime/multipart"
	"strings"
	"testing"
)

func parse(t *testing.T, wire string) *Request {
	t.Helper()
	req, err := ReadRequest(bufio.NewReader(strings.NewReader(wire)), DefaultMaxRequestBytes)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	return req
}

func TestReadSimpleRequest(t *testing.T) {
	req := parse(t, "GET /hello HTTP/1.0\r\n\r\n")
	if req.Method != "GET" {
		t.Errorf("Method = %q", req.Method)
	}
	if len(req.Path) != 1 || req.Path[0] != "hello" {
		t.Errorf("Path = %v", req.Path)
	}
	if req.Proto != "HTTP/1.0" {
		t.Errorf("Proto = %q", req.Proto)
	}
}

func TestReadRequestWithHeadersAndBody(t *testing.T) {
	req := parse(t, "POST /submit HTTP/1.0\r\n"+
		"Content-Type: application/x-www-form-urlencoded\r\n"+
		"Content-Length: 9\r\n"+
		"\r\n"+
		"task=milk")
	if got := req.Header.Get("content-type"); got != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", got)
	}
	if string(req.Body) != "task=milk" {
		t.Errorf("Body = %q", req.Body)
	}
	form, err := req.PostForm()
	if err != nil {
		t.Fatalf("PostForm: %v", err)
	}
	if form.Get("task") != "milk" {
		t.Errorf("task = %q", form.Get("task"))
	}
}

func TestHeaderCaseInsensitive(t *testing.T) {
	req := parse(t, "GET / HTTP/1.0\r\nX-Thing: abc\r\n\r\n")
	for _, key := range []string{"x-thing", "X-Thing", "X-THING"} {
		if req.Header.Get(key) != "abc" {
			t.Errorf("Get(%q) = %q, want abc", key, req.Header.Get(key))
		}
	}
}

func TestHTTP11RequestLineAccepted(t *testing.T) {
	// Browsers send HTTP/1.1; the reply is still HTTP/1.0.
	req := parse(t, "GET / HTTP/1.1\r\nHost: localhost\r\n\r\n")
	if req.Proto != "HTTP/1.1" {
		t.Errorf("Proto = %q", req.Proto)
	}
}

func TestQueryOrderAndDuplicates(t *testing.T) {
	req := parse(t, "GET /search?q=one&tag=a&tag=b&empty= HTTP/1.0\r\n\r\n")
	if got := req.Query.All("tag"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("All(tag) = %v", got)
	}
	// Last write wins for the single-value view.
	if req.Query.Get("tag") != "b" {
		t.Errorf("Get(tag) = %q", req.Query.Get("tag"))
	}
	if _, ok := req.Query.Lookup("empty"); !ok {
		t.Error("blank value was dropped")
	}
	pairs := req.Query.Pairs()
	if len(pairs) != 4 || pairs[0].Key != "q" || pairs[1].Key != "tag" {
		t.Errorf("Pairs() = %v", pairs)
	}
}

func TestPathDecoding(t *testing.T) {
	req := parse(t, "GET /files/hello%20world HTTP/1.0\r\n\r\n")
	if len(req.Path) != 2 || req.Path[1] != "hello world" {
		t.Errorf("Path = %v", req.Path)
	}
}

func TestMalformedRequests(t *testing.T) {
	tests := []struct {
		name string
		wire string
	}{
		{"empty", ""},
		{"bad request line", "WHAT\r\n\r\n"},
		{"bad protocol", "GET / SMTP\r\n\r\n"},
		{"bogus header", "GET / HTTP/1.0\r\nnocolon\r\n\r\n"},
		{"bad content length", "GET / HTTP/1.0\r\nContent-Length: pony\r\n\r\n"},
		{"negative content length", "GET / HTTP/1.0\r\nContent-Length: -5\r\n\r\n"},
		{"short body", "POST / HTTP/1.0\r\nContent-Length: 50\r\n\r\nonly this"},
		{"bad uri", "GET no-slash HTTP/1.0\r\n\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadRequest(bufio.NewReader(strings.NewReader(tt.wire)), DefaultMaxRequestBytes)
			var perr *ProtocolError
			if !errors.As(err, &perr) {
				t.Errorf("ReadRequest = %v, want ProtocolError", err)
			}
		})
	}
}

func TestBodyLimitEnforced(t *testing.T) {
	wire := "POST / HTTP/1.0\r\nContent-Length: 1000\r\n\r\n"
	_, err := ReadRequest(bufio.NewReader(strings.NewReader(wire)), 100)
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("oversized declaration: got %v, want ProtocolError", err)
	}
}

func TestHeaderLimitEnforced(t *testing.T) {
	wire := "GET / HTTP/1.0\r\n" +
		"X-Filler: " + strings.Repeat("a", 5000) + "\r\n" +
		"\r\n"
	_, err := ReadRequest(bufio.NewReader(strings.NewReader(wire)), 1024)
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("oversized header: got %v, want ProtocolError", err)
	}
}

func TestMultipartUpload(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("note", "attached"); err != nil {
		t.Fatal(err)
	}
	fw, err := mw.CreateFormFile("doc", "hello.txt")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("file contents"))
	mw.Close()

	req := NewRequest("POST", "/upload")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Body = body.Bytes()

	form, err := req.PostForm()
	if err != nil {
		t.Fatalf("PostForm: %v", err)
	}
	if form.Get("note") != "attached" {
		t.Errorf("note = %q", form.Get("note"))
	}
	uploads, err := req.Uploads()
	if err != nil {
		t.Fatalf("Uploads: %v", err)
	}
	if len(uploads) != 1 {
		t.Fatalf("got %d uploads, want 1", len(uploads))
	}
	up := uploads[0]
	if up.Field != "doc" || up.Filename != "hello.txt" || string(up.Content) != "file contents" {
		t.Errorf("upload = %+v", up)
	}
}

func TestWithContextDoesNotMutate(t *testing.T) {
	req := NewRequest("GET", "/a")
	clone := req.WithContext(WithRequestID(req.Context(), "rid"))
	if RequestIDFrom(req.Context()) != "" {
		t.Error("WithContext mutated the original request")
	}
	if RequestIDFrom(clone.Context()) != "rid" {
		t.Error("clone lost its context value")
	}
}
