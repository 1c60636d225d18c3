package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// ExportVersion is the snapshot format version written by Exporter.
const ExportVersion = "1.0"

// ExportFormat represents the JSON structure for medium export/import.
type ExportFormat struct {
	Version    string            `json:"version"`
	ExportedAt string            `json:"exported_at"`
	Entries    []ExportEntry     `json:"entries"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ExportEntry represents a single stored key.
type ExportEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Exporter snapshots the keys of a medium.
type Exporter struct {
	medium Medium
}

// NewExporter creates a new medium exporter.
func NewExporter(medium Medium) *Exporter {
	return &Exporter{medium: medium}
}

// Export writes every key under prefix to w in JSON format.
// Keys that disappear while the snapshot is taken are skipped.
func (e *Exporter) Export(ctx context.Context, w io.Writer, prefix string, metadata map[string]string) error {
	keys, err := e.medium.ListKeys(ctx, prefix)
	if err != nil {
		return fmt.Errorf("listing keys: %w", err)
	}

	entries := make([]ExportEntry, 0, len(keys))
	for _, key := range keys {
		val, err := e.medium.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", key, err)
		}
		entries = append(entries, ExportEntry{Key: key, Value: string(val)})
	}

	export := ExportFormat{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Entries:    entries,
		Metadata:   metadata,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(export); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}

	return nil
}

// ExportToFile exports the medium to a file.
// The path is provided by the caller and is intentionally user-controlled.
func (e *Exporter) ExportToFile(ctx context.Context, path, prefix string, metadata map[string]string) error {
	f, err := os.Create(path) // #nosec G304 - path is intentionally user-provided
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	return e.Export(ctx, f, prefix, metadata)
}

// Importer loads snapshots back into a medium.
type Importer struct {
	medium Medium
}

// NewImporter creates a new medium importer.
func NewImporter(medium Medium) *Importer {
	return &Importer{medium: medium}
}

// Import reads entries from r and writes them into the medium.
func (i *Importer) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	var export ExportFormat
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}
	if export.Version != ExportVersion {
		return nil, fmt.Errorf("unsupported snapshot version %q", export.Version)
	}

	result := &ImportResult{
		Version:  export.Version,
		Metadata: export.Metadata,
	}

	for _, entry := range export.Entries {
		if err := i.medium.Set(ctx, entry.Key, []byte(entry.Value)); err != nil {
			result.Failed++
			continue
		}
		result.Imported++
	}

	return result, nil
}

// ImportFromFile imports entries from a file.
// The path is provided by the caller and is intentionally user-controlled.
func (i *Importer) ImportFromFile(ctx context.Context, path string) (*ImportResult, error) {
	f, err := os.Open(path) // #nosec G304 - path is intentionally user-provided
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	return i.Import(ctx, f)
}

// ImportResult contains statistics about the import operation.
type ImportResult struct {
	Version  string
	Metadata map[string]string
	Imported int
	Failed   int
}
