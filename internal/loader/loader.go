// Package loader turns document paths into text the indexer can chunk.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bull/rag-assistant/internal/markdown"
)

// Document is a loaded source document.
type Document struct {
	Content      string
	Source       string // File name used as the document id
	Title        string // First heading, falling back to the file stem
	DocumentType string // "markdown" or "text"
	Path         string
}

// Loader loads documents and lists the loadable documents in a location.
type Loader interface {
	Load(ctx context.Context, path string) (*Document, error)
	List(ctx context.Context, dir string) ([]string, error)
}

var (
	ErrNotFound          = errors.New("document not found")
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrDecode            = errors.New("document is not valid UTF-8")
	ErrRead              = errors.New("document could not be read")
)

// Error describes a failed load. Kind is one of the sentinel errors above.
type Error struct {
	Path string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("load %s: %v", e.Path, e.Kind)
	}
	return fmt.Sprintf("load %s: %v: %v", e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

var documentTypes = map[string]string{
	".md":       "markdown",
	".markdown": "markdown",
	".txt":      "text",
}

// Supported reports whether the file extension can be loaded.
func Supported(path string) bool {
	_, ok := documentTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}

// NewDocument builds a Document, deriving the title from the first markdown
// heading or else the file stem.
func NewDocument(path string, content string) *Document {
	ext := strings.ToLower(filepath.Ext(path))
	docType := documentTypes[ext]

	title := ""
	if docType == "markdown" {
		title = markdown.Title([]byte(content))
	}
	if title == "" {
		base := filepath.Base(path)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	return &Document{
		Content:      content,
		Source:       filepath.Base(path),
		Title:        title,
		DocumentType: docType,
		Path:         path,
	}
}

// FileLoader reads documents from the local file system.
type FileLoader struct{}

// NewFileLoader creates a file system loader.
func NewFileLoader() *FileLoader {
	return &FileLoader{}
}

func (l *FileLoader) Load(ctx context.Context, path string) (*Document, error) {
	if !Supported(path) {
		return nil, &Error{Path: path, Kind: ErrUnsupportedFormat, Err: fmt.Errorf("extension %q", filepath.Ext(path))}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &Error{Path: path, Kind: ErrNotFound}
		}
		return nil, &Error{Path: path, Kind: ErrRead, Err: err}
	}
	if !utf8.Valid(data) {
		return nil, &Error{Path: path, Kind: ErrDecode}
	}

	return NewDocument(path, string(data)), nil
}

// List returns the supported files directly inside dir, sorted by name
// ignoring case.
func (l *FileLoader) List(ctx context.Context, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !Supported(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}

	sort.SliceStable(paths, func(i, j int) bool {
		return strings.ToLower(filepath.Base(paths[i])) < strings.ToLower(filepath.Base(paths[j]))
	})
	return paths, nil
}
