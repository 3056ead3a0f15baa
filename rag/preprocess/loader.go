package preprocess

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sweetpotato0/adaptive-rag/rag/document"
)

// Supported reports whether LoadFile understands the file extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown", ".html", ".htm":
		return true
	}
	return false
}

// LoadFile reads a local file into a document whose source is the path.
func LoadFile(path string) (document.Document, error) {
	if !Supported(path) {
		return document.Document{}, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return document.Document{}, fmt.Errorf("read %s: %w", path, err)
	}

	text := string(raw)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		text, err = HTMLToText(text)
		if err != nil {
			return document.Document{}, fmt.Errorf("parse %s: %w", path, err)
		}
		text = RemoveDuplicateParagraphs(RemoveWebNoise(text))
	default:
		text = Preprocess(text)
	}

	doc := document.Document{
		Title:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Content: text,
		Source:  path,
		Origin:  document.OriginLocal,
	}
	document.EnsureDocumentID(&doc)
	return doc, nil
}

// LoadPaths loads every supported file under the given files or directories,
// in lexical order. Unsupported files inside directories are skipped; an
// unsupported file named explicitly is an error.
func LoadPaths(paths []string) ([]document.Document, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && Supported(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)

	docs := make([]document.Document, 0, len(files))
	for _, f := range files {
		doc, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
