// internal/rules/load.go
package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/solatis/scorekeeper/internal/types"
)

// Source is a decoded formula file.
type Source struct {
	Tree     any
	Checksum string // hex sha256 of the raw bytes
}

// Decode parses YAML or JSON formula configuration.
func Decode(data []byte) (*Source, error) {
	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, &types.ConfigError{Problems: []string{fmt.Sprintf("parse configuration: %v", err)}}
	}
	sum := sha256.Sum256(data)
	return &Source{Tree: tree, Checksum: hex.EncodeToString(sum[:])}, nil
}

// Load reads and compiles formula configuration from r.
func Load(r io.Reader) ([]Formula, *Source, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read configuration: %w", err)
	}
	src, err := Decode(data)
	if err != nil {
		return nil, nil, err
	}
	formulas, err := Compile(src.Tree)
	if err != nil {
		return nil, src, err
	}
	return formulas, src, nil
}

// LoadFile reads and compiles the formula file at path.
func LoadFile(path string) ([]Formula, *Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open configuration: %w", err)
	}
	defer f.Close()
	return Load(f)
}
