package contracts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config lists optional contract files or directories merged over the built-in contracts
type Config struct {
	Paths []string `yaml:"paths"`
}

// contractDocument is the on-disk form of a contract file
type contractDocument struct {
	Datasets []contractEntry `yaml:"datasets"`
}

type contractEntry struct {
	Name            string   `yaml:"name"`
	Kind            Kind     `yaml:"kind"`
	Location        string   `yaml:"location"`
	Schema          []Column `yaml:"schema"`
	FlatColumns     []string `yaml:"flat_columns"`
	AllowNewColumns *bool    `yaml:"allow_new_columns"`
}

func (e *contractEntry) toContract(rawDir string) Contract {
	allow := true
	if e.AllowNewColumns != nil {
		allow = *e.AllowNewColumns
	}

	return Contract{
		Name:            e.Name,
		Kind:            e.Kind,
		Location:        ResolveLocation(rawDir, e.Location),
		Schema:          e.Schema,
		FlatColumns:     e.FlatColumns,
		AllowNewColumns: allow,
	}
}

// Load builds the run registry: built-in contracts first, then every contract found under
// cfg.Paths, replacing built-ins of the same name and appending new ones.
func Load(cfg Config, rawDir string) (*Registry, error) {
	merged := Defaults(rawDir)

	files, err := discover(cfg.Paths)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		parsed, err := parseFile(file, rawDir)
		if err != nil {
			return nil, err
		}

		merged = mergeContracts(merged, parsed)
	}

	return NewRegistry(merged...)
}

// Parse decodes a contract document
func Parse(content []byte, rawDir string) ([]Contract, error) {
	var doc contractDocument
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, err
	}

	out := make([]Contract, 0, len(doc.Datasets))
	for i := range doc.Datasets {
		out = append(out, doc.Datasets[i].toContract(rawDir))
	}

	return out, nil
}

func parseFile(path, rawDir string) ([]Contract, error) {
	content, err := os.ReadFile(path) //nolint:gosec // User-provided contract path
	if err != nil {
		return nil, fmt.Errorf("failed to read contract file %s: %w", path, err)
	}

	out, err := Parse(content, rawDir)
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract file %s: %w", path, err)
	}

	return out, nil
}

func mergeContracts(base, overrides []Contract) []Contract {
	for _, o := range overrides {
		replaced := false

		for i := range base {
			if base[i].Name == o.Name {
				base[i] = o
				replaced = true

				break
			}
		}

		if !replaced {
			base = append(base, o)
		}
	}

	return base
}

func discover(paths []string) ([]string, error) {
	var files []string

	for _, basePath := range paths {
		err := filepath.Walk(basePath, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}

			if info.IsDir() {
				return nil
			}

			ext := strings.ToLower(filepath.Ext(path))
			if ext == ".yaml" || ext == ".yml" {
				files = append(files, path)
			}

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to discover contracts in %s: %w", basePath, err)
		}
	}

	return files, nil
}
