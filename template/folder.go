package template

import (
	"fmt"
	"os"
	"path/filepath"
)

// Folder loads templates from a directory, compiling each file once
// and caching the result. Files may use the extend form to name other
// templates in the same folder. The cache is not synchronized; the
// serving model is single-threaded and the cache is effectively
// read-only after warm-up.
type Folder struct {
	dir     string
	ext     string
	cache   map[string]Template
	loading map[string]bool
}

// FolderOption adjusts a Folder at construction.
type FolderOption func(*Folder)

// WithExtension overrides the ".tpl" filename extension. Pass the
// empty string to use bare names.
func WithExtension(ext string) FolderOption {
	return func(f *Folder) { f.ext = ext }
}

// NewFolder opens a template directory. The directory must exist.
func NewFolder(dir string, opts ...FolderOption) (*Folder, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("template folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("template folder: %s is not a directory", dir)
	}
	f := &Folder{
		dir:     dir,
		ext:     ".tpl",
		cache:   make(map[string]Template),
		loading: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Get returns the compiled template for the given base name, reading
// and compiling the file on first use.
func (f *Folder) Get(name string) (Template, error) {
	if t, ok := f.cache[name]; ok {
		return t, nil
	}
	if f.loading[name] {
		return nil, fmt.Errorf("template %q: extend cycle", name)
	}
	f.loading[name] = true
	defer delete(f.loading, name)
	path := filepath.Join(f.dir, name+f.ext)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", name, err)
	}
	t, err := compile(string(raw), f.Get)
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", name, err)
	}
	f.cache[name] = t
	return t, nil
}

// MustGet is Get for templates whose absence is a startup error.
func (f *Folder) MustGet(name string) Template {
	t, err := f.Get(name)
	if err != nil {
		panic(err)
	}
	return t
}

// Preload compiles the named templates eagerly so that syntax errors
// surface at startup rather than on first request.
func (f *Folder) Preload(names ...string) error {
	for _, name := range names {
		if _, err := f.Get(name); err != nil {
			return err
		}
	}
	return nil
}

// Invalidate empties the compile cache. Templates recompile from disk
// on next use. Useful while editing templates during development; see
// web.AutoReload for the per-request wrapper.
func (f *Folder) Invalidate() {
	f.cache = make(map[string]Template)
}
