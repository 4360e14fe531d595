package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// Document is the persisted form of a finished export.
type Document struct {
	Kind       Kind              `json:"kind" yaml:"kind"`
	ItemCount  int               `json:"item_count" yaml:"item_count"`
	ExportedAt time.Time         `json:"exported_at" yaml:"exported_at"`
	Items      []json.RawMessage `json:"items" yaml:"-"`
}

// Sink receives finished export documents.
type Sink interface {
	Write(ctx context.Context, destination string, doc Document) error
}

// lockRetryDelay is the polling interval while waiting for a destination lock.
const lockRetryDelay = 50 * time.Millisecond

// FileSink writes documents to the local file system: JSON by default,
// YAML for .yaml and .yml destinations. Writes go to a temporary file that
// is renamed into place, under a lock file next to the destination.
type FileSink struct {
	// Perm is the file mode of written documents. Defaults to 0o644.
	Perm os.FileMode
}

// Write implements Sink.
func (s FileSink) Write(ctx context.Context, destination string, doc Document) error {
	if destination == "" {
		return fmt.Errorf("destination is required")
	}

	data, err := encodeDocument(destination, doc)
	if err != nil {
		return err
	}

	dir := filepath.Dir(destination)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	lock := flock.New(destination + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("acquire lock: %s is busy", destination)
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(destination)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	perm := s.Perm
	if perm == 0 {
		perm = 0o644
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, destination); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func encodeDocument(destination string, doc Document) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(destination)) {
	case ".yaml", ".yml":
		return encodeYAML(doc)
	default:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return append(data, '\n'), nil
	}
}

// encodeYAML decodes the raw items so they are written as YAML mappings
// instead of byte sequences.
func encodeYAML(doc Document) ([]byte, error) {
	items := make([]any, 0, len(doc.Items))
	for i, raw := range doc.Items {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode item %d: %w", i, err)
		}
		items = append(items, v)
	}

	out := struct {
		Kind       Kind      `yaml:"kind"`
		ItemCount  int       `yaml:"item_count"`
		ExportedAt time.Time `yaml:"exported_at"`
		Items      []any     `yaml:"items"`
	}{doc.Kind, doc.ItemCount, doc.ExportedAt, items}

	data, err := yaml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return data, nil
}

// ReadDocument loads a document written by FileSink.
func ReadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}

	var doc Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var raw struct {
			Kind       Kind      `yaml:"kind"`
			ItemCount  int       `yaml:"item_count"`
			ExportedAt time.Time `yaml:"exported_at"`
			Items      []any     `yaml:"items"`
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Document{}, fmt.Errorf("decode yaml: %w", err)
		}
		doc = Document{Kind: raw.Kind, ItemCount: raw.ItemCount, ExportedAt: raw.ExportedAt}
		for i, item := range raw.Items {
			b, err := json.Marshal(item)
			if err != nil {
				return Document{}, fmt.Errorf("encode item %d: %w", i, err)
			}
			doc.Items = append(doc.Items, b)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return Document{}, fmt.Errorf("decode json: %w", err)
		}
	}
	return doc, nil
}
