package web

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/kjosib/kale/iolist"
	"github.com/kjosib/kale/template"
)

// contentTypes maps file extensions to the types a local UI actually
// serves. Anything else goes out as octet-stream.
var contentTypes = map[string]string{
	".html":  "text/html; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".js":    "application/javascript; charset=utf-8",
	".json":  "application/json",
	".txt":   "text/plain; charset=utf-8",
	".svg":   "image/svg+xml",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".ico":   "image/x-icon",
	".pdf":   "application/pdf",
	".woff2": "font/woff2",
}

// compressible marks the types worth gzip-encoding.
var compressible = map[string]bool{
	".html": true,
	".css":  true,
	".js":   true,
	".json": true,
	".txt":  true,
	".svg":  true,
}

var listingLink = template.MustCompile(`<li><a href="{name}">{name}</a></li>` + "\r\n")

// StaticFolder serves the files under a filesystem directory. Mount
// it with a trailing wildcard:
//
//	router.Route("GET", "/static/*", web.NewStaticFolder("assets"))
//
// A remainder ending in a slash (or empty) gets a generated listing
// page. Components beginning with a dot or underscore are refused, a
// cheap rule that keeps editor droppings and "private" files out of
// the browser.
type StaticFolder struct {
	root string
}

// NewStaticFolder serves files rooted at dir.
func NewStaticFolder(dir string) *StaticFolder {
	return &StaticFolder{root: dir}
}

func forbidden(component string) bool {
	return component == "" || component[0] == '.' || component[0] == '_'
}

// Handle implements Handler.
func (sf *StaticFolder) Handle(req *Request, params Params) (*Response, error) {
	rest := params["*"]
	base, query, _ := strings.Cut(req.RawURI, "?")
	// The trailing slash decides between a file and a listing; for the
	// bare mount point only the URI itself can carry it.
	wantFolder := strings.HasSuffix(rest, "/") || strings.HasSuffix(base, "/")
	var components []string
	if rest != "" {
		components = strings.Split(strings.TrimSuffix(rest, "/"), "/")
	}
	for _, c := range components {
		if forbidden(c) {
			return Generic(403, "", nil), nil
		}
	}
	local := filepath.Join(sf.root, filepath.Join(components...))

	info, err := os.Stat(local)
	if err != nil {
		return NotFound(), nil
	}
	if info.IsDir() {
		if !wantFolder {
			// A folder reached without its trailing slash: relative
			// links inside the listing would resolve wrong.
			target := base + "/"
			if query != "" {
				target += "?" + query
			}
			return Redirect(target), nil
		}
		return sf.listing(local, len(components) > 0)
	}
	return sf.file(req, local)
}

func (sf *StaticFolder) listing(local string, hasParent bool) (*Response, error) {
	entries, err := os.ReadDir(local)
	if err != nil {
		return NotFound(), nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if forbidden(e.Name()) {
			continue
		}
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	list := iolist.Seq(iolist.Text("<ul>\r\n"))
	if hasParent {
		link, err := listingLink.Render(template.Context{"name": ".."})
		if err != nil {
			return nil, err
		}
		list.Append(link)
	}
	for _, name := range names {
		link, err := listingLink.Render(template.Context{"name": name})
		if err != nil {
			return nil, err
		}
		list.Append(link)
	}
	list.Append(iolist.Text("</ul>\r\n"))
	return Generic(200, "Folder "+filepath.Base(local), list), nil
}

func (sf *StaticFolder) file(req *Request, local string) (*Response, error) {
	content, err := os.ReadFile(local)
	if err != nil {
		return NotFound(), nil
	}
	ext := strings.ToLower(filepath.Ext(local))
	ctype, ok := contentTypes[ext]
	if !ok {
		ctype = "application/octet-stream"
	}
	resp := OK(iolist.Bytes(content))
	resp.SetHeader("Content-Type", ctype)

	if compressible[ext] && acceptsGzip(req) && len(content) > 256 {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(content); err == nil && zw.Close() == nil {
			resp.Body = iolist.Bytes(buf.Bytes())
			resp.SetHeader("Content-Encoding", "gzip")
		}
	}
	return resp, nil
}

func acceptsGzip(req *Request) bool {
	for _, enc := range strings.Split(req.Header.Get("Accept-Encoding"), ",") {
		if strings.TrimSpace(strings.SplitN(enc, ";", 2)[0]) == "gzip" {
			return true
		}
	}
	return false
}
