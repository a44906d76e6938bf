package schema

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a tables file.
type File struct {
	Tables []TableConfig `yaml:"tables"`
}

// Decode parses a tables document. Unknown fields are rejected so typos in
// property names (e.g. "isIdentifer") fail loudly instead of silently.
func Decode(r io.Reader) ([]TableConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode tables: %w", err)
	}
	return f.Tables, nil
}

// LoadFile reads a YAML tables file and registers every table in it.
// Returns the number of tables registered.
func LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read tables file: %w", err)
	}

	tables, err := Decode(bytes.NewReader(data))
	if err != nil {
		return 0, err
	}

	for _, t := range tables {
		if err := Register(t); err != nil {
			return 0, fmt.Errorf("register %s: %w", path, err)
		}
	}
	return len(tables), nil
}
