package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HeaderSchemaVersion tracks the schema version for run header documents.
const HeaderSchemaVersion = 1

// Options captures the free-form game options a run was started with.
type Options map[string]string

// Clone returns a copy of the options map.
func (o Options) Clone() Options {
	if len(o) == 0 {
		return nil
	}
	clone := make(Options, len(o))
	for key, value := range o {
		clone[key] = value
	}
	return clone
}

// Header is written next to a run's logs when the writer closes.
type Header struct {
	SchemaVersion int     `json:"schema_version"`
	RunID         string  `json:"run_id"`
	Seed          string  `json:"seed"`
	Vision        string  `json:"vision,omitempty"`
	Generator     string  `json:"generator,omitempty"`
	Mode          string  `json:"mode,omitempty"`
	Options       Options `json:"options,omitempty"`
	FilePointer   string  `json:"file_pointer"`
}

// Validate ensures the header is usable by the replay tooling.
func (h Header) Validate() error {
	if h.SchemaVersion <= 0 {
		return fmt.Errorf("schema_version must be positive")
	}
	if strings.TrimSpace(h.FilePointer) == "" {
		return fmt.Errorf("file_pointer must not be empty")
	}
	return nil
}

// WriteHeader persists the header as indented JSON.
func WriteHeader(path string, header Header) error {
	if err := header.Validate(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(header, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}

// ReadHeader loads and validates a header from disk.
func ReadHeader(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	var header Header
	if err := json.Unmarshal(data, &header); err != nil {
		return Header{}, err
	}
	if err := header.Validate(); err != nil {
		return Header{}, err
	}
	return header, nil
}
