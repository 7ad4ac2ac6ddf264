// Package bookmarkfile imports links in bulk from a YAML file, the escape
// hatch for migrating an existing bookmark collection into the pipeline.
package bookmarkfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader handles loading and parsing of a link import file.
type Loader struct {
	filePath string
}

// NewLoader creates a new import-file loader.
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads and parses the import file.
func (l *Loader) Load() (*ImportFile, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}

	var file ImportFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse import yaml: %w", err)
	}

	if len(file.Links) == 0 {
		return nil, fmt.Errorf("no links found in import file")
	}

	return &file, nil
}
