package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// file is the on-disk shape shared by the YAML and CUE formats.
//
//	breaks:
//	  cf+2: {name: Lunch, duration: 30, daily_limit: 1}
//	keywords:
//	  back: [back, b]
//	  cancel: [c, cancel, reset]
type file struct {
	Breaks   map[string]breakSpec `yaml:"breaks" json:"breaks"`
	Keywords *keywordSpec         `yaml:"keywords,omitempty" json:"keywords,omitempty"`
}

type breakSpec struct {
	Name       string `yaml:"name" json:"name"`
	Duration   int    `yaml:"duration" json:"duration"`
	DailyLimit int    `yaml:"daily_limit" json:"daily_limit"`
}

type keywordSpec struct {
	Back   []string `yaml:"back,omitempty" json:"back,omitempty"`
	Cancel []string `yaml:"cancel,omitempty" json:"cancel,omitempty"`
}

// Load reads a catalog file. The format is chosen by extension:
// .yaml/.yml are decoded strictly, .cue is validated against the
// embedded #Catalog schema before decoding.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".cue":
		return ParseCUE(data, path)
	default:
		return nil, fmt.Errorf("%w: unsupported catalog format %q", ErrInvalid, filepath.Ext(path))
	}
}

// ParseYAML decodes a YAML catalog, rejecting unknown fields.
func ParseYAML(data []byte) (*Catalog, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: parse yaml: %v", ErrInvalid, err)
	}
	return f.build()
}

// ParseCUE compiles a CUE catalog, unifies it with the schema and decodes it.
func ParseCUE(data []byte, filename string) (*Catalog, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile catalog schema: %s", cueerrors.Details(err, nil))
	}

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, cueerrors.Details(err, nil))
	}

	unified := schema.LookupPath(cue.ParsePath("#Catalog")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, cueerrors.Details(err, nil))
	}

	var f file
	if err := unified.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: decode: %s", ErrInvalid, cueerrors.Details(err, nil))
	}
	return f.build()
}

func (f file) build() (*Catalog, error) {
	defs := make([]Definition, 0, len(f.Breaks))
	for code, b := range f.Breaks {
		defs = append(defs, Definition{
			Code:            code,
			Name:            b.Name,
			DurationMinutes: b.Duration,
			DailyLimit:      b.DailyLimit,
		})
	}

	var back, cancel []string
	if f.Keywords != nil {
		back = f.Keywords.Back
		cancel = f.Keywords.Cancel
	}
	return New(defs, back, cancel)
}
