package results

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Sternrassler/darksearch-client/pkg/search"
)

// DefaultOutput is the export file used when none is configured.
const DefaultOutput = "results.json"

// Document is the exported file layout.
type Document struct {
	Results []search.Result `json:"results"`
}

// WriteJSON writes the collected results to w, indented with four spaces.
// HTML characters are written as-is.
func (s *Sink) WriteJSON(w io.Writer) error {
	doc := Document{Results: s.Snapshot()}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}

// ExportFile writes the collected results to path. The file is written
// to a temporary sibling first and renamed, so an interrupted export
// never leaves a truncated document behind.
func (s *Sink) ExportFile(path string) error {
	if path == "" {
		path = DefaultOutput
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := s.WriteJSON(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod export file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename export file: %w", err)
	}
	return nil
}

// ReadFile loads a previously exported document.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export file: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode export file: %w", err)
	}
	if doc.Results == nil {
		doc.Results = []search.Result{}
	}
	return &doc, nil
}
