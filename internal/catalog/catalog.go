// Package catalog describes what a run produces: the source files, the
// named intermediate series, and one entry per output artifact with the
// transform chain that builds it.
//
// The catalog is data, not code. A default catalog is embedded in the
// binary; CATALOG_FILE points at a replacement with the same schema.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/covidstat/internal/cube"
	"github.com/JonMunkholm/covidstat/internal/output"
	"github.com/JonMunkholm/covidstat/internal/source"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var (
	// ErrInvalidCatalog: the document is malformed or inconsistent.
	ErrInvalidCatalog = errors.New("invalid catalog")
	// ErrUnknownOp: a step names an op nobody registered.
	ErrUnknownOp = errors.New("unknown op")
	// ErrInvalidStep: a step is missing a parameter its op needs.
	ErrInvalidStep = errors.New("invalid step")
	// ErrUnknownSeries: a reference names neither a source nor a series.
	ErrUnknownSeries = errors.New("unknown series")
	// ErrCycle: series reference each other in a loop.
	ErrCycle = errors.New("series cycle")
)

// Catalog is the parsed YAML document.
type Catalog struct {
	Metadata Metadata `yaml:"metadata"`
	// Units holds named unit presets; artifacts refer to them with YAML
	// anchors, so the map itself is only read by the YAML decoder.
	Units     map[string]cube.Unit `yaml:"units"`
	Sources   []Source             `yaml:"sources"`
	Series    map[string]Series    `yaml:"series"`
	Artifacts []Artifact           `yaml:"artifacts"`
}

// Metadata is attached to every dataset.
type Metadata struct {
	Source string `yaml:"source"`
}

// Source is one CSV file of the upstream repository.
type Source struct {
	Name    string   `yaml:"name"`
	File    string   `yaml:"file"`
	Columns []string `yaml:"columns"`
}

// Series is a reusable intermediate table derived from a source or from
// another series.
type Series struct {
	From  string `yaml:"from"`
	Steps []Step `yaml:"steps"`
}

// Artifact is one output file.
type Artifact struct {
	Output     string               `yaml:"output"`
	Label      string               `yaml:"label"`
	From       string               `yaml:"from"`
	Steps      []Step               `yaml:"steps"`
	Dimensions []string             `yaml:"dimensions"`
	Metrics    []string             `yaml:"metrics"`
	Units      map[string]cube.Unit `yaml:"units"`
}

// Step is one transform in a chain. Which fields matter depends on Op.
type Step struct {
	Op      string            `yaml:"op"`
	Column  string            `yaml:"column,omitempty"`
	Columns []string          `yaml:"columns,omitempty"`
	Output  string            `yaml:"output,omitempty"`
	Value   string            `yaml:"value,omitempty"`
	From    string            `yaml:"from,omitempty"`
	To      string            `yaml:"to,omitempty"`
	Mapping map[string]string `yaml:"mapping,omitempty"`
	Series  []string          `yaml:"series,omitempty"`
	On      []string          `yaml:"on,omitempty"`
	Count   int               `yaml:"count,omitempty"`
	Places  int32             `yaml:"places,omitempty"`
}

// String renders the step compactly for error messages and logs.
func (s Step) String() string {
	var b strings.Builder
	b.WriteString(s.Op)
	if s.Column != "" {
		b.WriteString(" " + s.Column)
	}
	if len(s.Columns) > 0 {
		b.WriteString(" " + strings.Join(s.Columns, ","))
	}
	if len(s.Series) > 0 {
		b.WriteString(" " + strings.Join(s.Series, ","))
	}
	return b.String()
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads the catalog at path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a catalog document. Unknown keys are errors.
func Parse(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// SourceSpecs lists the files the loader must read.
func (c *Catalog) SourceSpecs() []source.Spec {
	out := make([]source.Spec, len(c.Sources))
	for i, s := range c.Sources {
		out[i] = source.Spec{Name: s.Name, File: s.File, Columns: slices.Clone(s.Columns)}
	}
	return out
}

// Outputs lists artifact file names in catalog order.
func (c *Catalog) Outputs() []string {
	out := make([]string, len(c.Artifacts))
	for i, a := range c.Artifacts {
		out[i] = a.Output
	}
	return out
}

// Validate checks the catalog without touching any data: names are unique,
// every reference resolves, every step compiles, and series form no cycle.
// All problems are reported together.
func (c *Catalog) Validate() error {
	var errs []error
	add := func(err error) { errs = append(errs, err) }

	known := make(map[string]bool)
	for i, s := range c.Sources {
		switch {
		case s.Name == "":
			add(fmt.Errorf("%w: source %d has no name", ErrInvalidCatalog, i))
		case s.File == "":
			add(fmt.Errorf("%w: source %s has no file", ErrInvalidCatalog, s.Name))
		case known[s.Name]:
			add(fmt.Errorf("%w: source %s declared twice", ErrInvalidCatalog, s.Name))
		}
		known[s.Name] = true
	}
	for name := range c.Series {
		if known[name] {
			add(fmt.Errorf("%w: series %s shadows a source", ErrInvalidCatalog, name))
		}
	}
	exists := func(name string) bool {
		_, isSeries := c.Series[name]
		return known[name] || isSeries
	}

	checkChain := func(owner, from string, steps []Step) {
		if !exists(from) {
			add(fmt.Errorf("%s: %w: %q", owner, ErrUnknownSeries, from))
		}
		for i, s := range steps {
			if _, err := s.Compile(nil); err != nil {
				add(fmt.Errorf("%s step %d: %w", owner, i+1, err))
			}
			for _, ref := range s.Series {
				if !exists(ref) {
					add(fmt.Errorf("%s step %d: %w: %q", owner, i+1, ErrUnknownSeries, ref))
				}
			}
		}
	}

	for _, name := range sortedKeys(c.Series) {
		checkChain("series "+name, c.Series[name].From, c.Series[name].Steps)
	}

	outputs := make(map[string]bool)
	for i, a := range c.Artifacts {
		owner := fmt.Sprintf("artifact %d (%s)", i+1, a.Output)
		switch {
		case a.Output == "":
			add(fmt.Errorf("%w: %s has no output name", ErrInvalidCatalog, owner))
		case !strings.HasSuffix(a.Output, output.Extension) || strings.ContainsAny(a.Output, `/\`):
			add(fmt.Errorf("%w: %s: output must be a file name ending in %s", ErrInvalidCatalog, owner, output.Extension))
		case outputs[a.Output]:
			add(fmt.Errorf("%w: %s written twice", ErrInvalidCatalog, a.Output))
		}
		outputs[a.Output] = true

		if len(a.Dimensions) == 0 || len(a.Metrics) == 0 {
			add(fmt.Errorf("%w: %s needs dimensions and metrics", ErrInvalidCatalog, owner))
		}
		for unit := range a.Units {
			if !slices.Contains(a.Metrics, unit) {
				add(fmt.Errorf("%w: %s has a unit for %q, which is not one of its metrics", ErrInvalidCatalog, owner, unit))
			}
		}
		checkChain(owner, a.From, a.Steps)
	}

	if err := c.checkCycles(); err != nil {
		add(err)
	}
	return errors.Join(errs...)
}

// checkCycles walks the series dependency graph depth first.
func (c *Catalog) checkCycles() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int)

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		s, ok := c.Series[name]
		if !ok {
			return nil
		}
		switch state[name] {
		case visiting:
			return fmt.Errorf("%w: %s", ErrCycle, strings.Join(append(path, name), " -> "))
		case done:
			return nil
		}
		state[name] = visiting
		for _, dep := range s.deps() {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for _, name := range sortedKeys(c.Series) {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s Series) deps() []string {
	out := []string{s.From}
	for _, st := range s.Steps {
		out = append(out, st.Series...)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
