package infrastructure

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"attributiongo/internal/domain"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// spendFixture is the document shape shared by every fixture format
type spendFixture struct {
	Records []domain.RawSpendRecord `json:"records" yaml:"records" toml:"records"`
}

// LoadSpendFixture reads raw spend records from a TOML, YAML or JSON file
func LoadSpendFixture(path string) ([]domain.RawSpendRecord, error) {
	ext := strings.ToLower(filepath.Ext(path))

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing fixture file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, not a file", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading fixture file: %w", err)
	}

	var fixture spendFixture

	switch ext {
	case ".toml":
		if err := toml.Unmarshal(data, &fixture); err != nil {
			return nil, fmt.Errorf("error parsing TOML fixture: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fixture); err != nil {
			return nil, fmt.Errorf("error parsing YAML fixture: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &fixture); err != nil {
			return nil, fmt.Errorf("error parsing JSON fixture: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported fixture format: %s", ext)
	}

	return fixture.Records, nil
}
