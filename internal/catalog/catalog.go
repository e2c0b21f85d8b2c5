// Package catalog loads wave files: ordered mappings of image file name to
// source (direct URL, article title, or list of alternative titles).
package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"carimages/internal/fetch"

	"gopkg.in/yaml.v3"
)

var (
	ErrNoImages      = errors.New("catalog has no images")
	ErrNotFound      = errors.New("catalog not found")
	ErrDuplicateFile = errors.New("duplicate file name")
)

// Entry is one image of a catalog.
type Entry struct {
	File   string
	Source fetch.Source
}

// Entries keeps the order in which images appear in the file.
type Entries []Entry

// Catalog is one wave file.
type Catalog struct {
	Name        string  `yaml:"-"`
	Description string  `yaml:"description"`
	MinBytes    *int64  `yaml:"min_bytes"`
	Images      Entries `yaml:"images"`
}

// UnmarshalYAML decodes the images mapping without losing key order.
func (e *Entries) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: images must be a mapping of file name to source", node.Line)
	}
	entries := make(Entries, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		var file string
		if err := keyNode.Decode(&file); err != nil {
			return fmt.Errorf("line %d: file name: %w", keyNode.Line, err)
		}
		source, err := decodeSource(valueNode)
		if err != nil {
			return fmt.Errorf("line %d: %s: %w", valueNode.Line, file, err)
		}
		entries = append(entries, Entry{File: file, Source: source})
	}
	*e = entries
	return nil
}

func decodeSource(node *yaml.Node) (fetch.Source, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		value := strings.TrimSpace(node.Value)
		if value == "" {
			return fetch.Source{}, errors.New("empty source")
		}
		if isURL(value) {
			return fetch.DirectSource(value), nil
		}
		return fetch.TopicSource(value), nil
	case yaml.SequenceNode:
		var topics []string
		if err := node.Decode(&topics); err != nil {
			return fetch.Source{}, fmt.Errorf("topics: %w", err)
		}
		cleaned := make([]string, 0, len(topics))
		for _, topic := range topics {
			if topic = strings.TrimSpace(topic); topic != "" {
				cleaned = append(cleaned, topic)
			}
		}
		if len(cleaned) == 0 {
			return fetch.Source{}, errors.New("empty topic list")
		}
		return fetch.TopicSource(cleaned...), nil
	default:
		return fetch.Source{}, errors.New("source must be a URL, a topic or a list of topics")
	}
}

func isURL(value string) bool {
	lower := strings.ToLower(value)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Parse decodes and validates one catalog. allowedExt lists the accepted
// file extensions (lower case, with dot); empty accepts any.
func Parse(name string, data []byte, allowedExt []string) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog %s: %w", name, err)
	}
	c.Name = name
	if err := c.validate(allowedExt); err != nil {
		return Catalog{}, fmt.Errorf("catalog %s: %w", name, err)
	}
	return c, nil
}

// Load reads a catalog file; its name is the file name without extension.
func Load(path string, allowedExt []string) (Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // catalog path is operator supplied
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(nameFromPath(path), data, allowedExt)
}

// LoadDir loads every *.yml / *.yaml file in dir, sorted by name.
func LoadDir(dir string, allowedExt []string) ([]Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog dir: %w", err)
	}
	catalogs := make([]Catalog, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isCatalogFile(entry.Name()) {
			continue
		}
		c, err := Load(filepath.Join(dir, entry.Name()), allowedExt)
		if err != nil {
			return nil, err
		}
		catalogs = append(catalogs, c)
	}
	sort.Slice(catalogs, func(i, j int) bool { return catalogs[i].Name < catalogs[j].Name })
	return catalogs, nil
}

// Select returns the named catalogs in the requested order.
func Select(all []Catalog, names []string) ([]Catalog, error) {
	byName := make(map[string]Catalog, len(all))
	for _, c := range all {
		byName[c.Name] = c
	}
	selected := make([]Catalog, 0, len(names))
	for _, name := range names {
		c, ok := byName[nameFromPath(name)]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		selected = append(selected, c)
	}
	return selected, nil
}

// Tasks turns the catalog into fetch tasks under outputDir.
func (c Catalog) Tasks(outputDir string) []fetch.Task {
	tasks := make([]fetch.Task, 0, len(c.Images))
	for _, e := range c.Images {
		tasks = append(tasks, fetch.Task{
			Target: filepath.Join(outputDir, e.File),
			Source: e.Source,
		})
	}
	return tasks
}

// EffectiveMinBytes returns the catalog override or fallback.
func (c Catalog) EffectiveMinBytes(fallback int64) int64 {
	if c.MinBytes != nil {
		return *c.MinBytes
	}
	return fallback
}

// Coverage counts images already present above the size gate and lists the
// missing file names, in catalog order. It makes no network calls.
func (c Catalog) Coverage(outputDir string, fallbackMinBytes int64) (present int, missing []string) {
	minBytes := c.EffectiveMinBytes(fallbackMinBytes)
	for _, e := range c.Images {
		if fetch.IsSatisfied(filepath.Join(outputDir, e.File), minBytes) {
			present++
			continue
		}
		missing = append(missing, e.File)
	}
	return present, missing
}

func (c Catalog) validate(allowedExt []string) error {
	if len(c.Images) == 0 {
		return ErrNoImages
	}
	if c.MinBytes != nil && *c.MinBytes < 0 {
		return fmt.Errorf("invalid min_bytes: %d", *c.MinBytes)
	}
	seen := make(map[string]struct{}, len(c.Images))
	for _, e := range c.Images {
		if err := validateFileName(e.File, allowedExt); err != nil {
			return err
		}
		key := strings.ToLower(e.File)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateFile, e.File)
		}
		seen[key] = struct{}{}
		if !e.Source.IsLookup() {
			if err := validateURL(e.Source.URL); err != nil {
				return fmt.Errorf("%s: %w", e.File, err)
			}
		}
	}
	return nil
}

func validateFileName(name string, allowedExt []string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("empty file name")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return fmt.Errorf("invalid file name %q: must be a plain file name", name)
	}
	if len(allowedExt) == 0 {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range allowedExt {
		if ext == allowed {
			return nil
		}
	}
	return fmt.Errorf("extension not allowed: %q (%s)", ext, name)
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid url %q: need http(s) scheme and host", raw)
	}
	return nil
}

func isCatalogFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yml" || ext == ".yaml"
}

func nameFromPath(path string) string {
	base := filepath.Base(path)
	if isCatalogFile(base) {
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return base
}
