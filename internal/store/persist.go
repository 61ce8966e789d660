package store

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// DefaultPath is the store location used when nothing else is configured.
const DefaultPath = "data/workflows.json"

// ResolvePath returns the store file location.
//
// Resolution order:
//  1. PROCWATCH_STORE_PATH environment variable (used as-is if set)
//  2. Explicit path (e.g. from config) if non-empty
//  3. [DefaultPath]
func ResolvePath(path string) string {
	if envPath := os.Getenv("PROCWATCH_STORE_PATH"); envPath != "" {
		return envPath
	}
	if path != "" {
		return path
	}
	return DefaultPath
}

//go:embed store.schema.json
var schemaJSON []byte

const schemaURL = "store.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func storeSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("failed to parse store schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("failed to add store schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// fileFormat is the on-disk layout of the store.
type fileFormat struct {
	SchemaVersion int                  `json:"schema_version"`
	Workflows     map[string]*Workflow `json:"workflows"`
}

// Decode parses and validates store file contents. Every failure caused by
// the data itself wraps [ErrCorruptStore].
func Decode(data []byte) (*Store, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrCorruptStore)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	sch, err := storeSchema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	if f.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %d", ErrCorruptStore, f.SchemaVersion)
	}
	for id, w := range f.Workflows {
		if w.WorkflowID != id {
			return nil, fmt.Errorf("%w: workflow %q stored under key %q", ErrCorruptStore, w.WorkflowID, id)
		}
	}

	return newFromWorkflows(f.SchemaVersion, f.Workflows), nil
}

// Encode serializes the store. Output is byte-stable for equal stores.
func (s *Store) Encode() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := json.MarshalIndent(fileFormat{SchemaVersion: s.schemaVersion, Workflows: s.workflows}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal store: %w", err)
	}
	return append(data, '\n'), nil
}

// Load reads the store at path. A missing file is an empty store. A corrupt
// file is an error wrapping [ErrCorruptStore] unless initFresh is set, in
// which case an empty store is returned and fresh reports true.
func Load(path string, initFresh bool) (st *Store, fresh bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read store: %w", err)
	}

	st, err = Decode(data)
	if err != nil {
		if initFresh && errors.Is(err, ErrCorruptStore) {
			return New(), true, nil
		}
		return nil, false, fmt.Errorf("failed to load store %s: %w", path, err)
	}
	return st, false, nil
}

// Save publishes the store at path atomically. Readers see either the old
// file or the new one.
func Save(path string, st *Store) error {
	data, err := st.Encode()
	if err != nil {
		return err
	}
	if err := writeFileAtomicDurable(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	return nil
}

// WriteSnapshot writes an immutable copy of the store. It fails if path
// already exists.
func WriteSnapshot(path string, st *Store) error {
	data, err := st.Encode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return f.Close()
}

func writeFileAtomicDurable(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return syncDir(dir)
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
