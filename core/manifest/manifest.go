// Package manifest loads model definition files. A manifest is YAML (or
// JSON) validated against an embedded JSON schema and turned into a
// model.Model plus the composition options it names.
package manifest

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/davidahmann/gwdeck/core/calendar"
	coreerrors "github.com/davidahmann/gwdeck/core/errors"
	"github.com/davidahmann/gwdeck/core/jcs"
	"github.com/davidahmann/gwdeck/core/model"
	"github.com/goccy/go-yaml"
	"github.com/kaptinlin/jsonschema"
)

//go:embed manifest.schema.json
var schemaJSON []byte

var (
	ErrSchema        = errors.New("manifest does not match the schema")
	ErrValueCount    = errors.New("manifest values do not match the grid shape")
	ErrInlineAndFile = errors.New("manifest package mixes inline data with sources")
)

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

// Document is the decoded manifest as written on disk.
type Document struct {
	Name     string         `json:"name" yaml:"name"`
	Seawat   bool           `json:"seawat,omitempty" yaml:"seawat,omitempty"`
	EndTime  string         `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	Settings map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
	Packages []Package      `json:"packages" yaml:"packages"`
}

// Package is one entry of a manifest. Arrays carry inline values, a constant
// fill or IDF sources; tables carry inline rows or an IPF source.
type Package struct {
	Key        string          `json:"key" yaml:"key"`
	Kind       string          `json:"kind" yaml:"kind"`
	Layers     []int           `json:"layers,omitempty" yaml:"layers,omitempty"`
	Times      []string        `json:"times,omitempty" yaml:"times,omitempty"`
	X          []float64       `json:"x,omitempty" yaml:"x,omitempty"`
	Y          []float64       `json:"y,omitempty" yaml:"y,omitempty"`
	DX         float64         `json:"dx,omitempty" yaml:"dx,omitempty"`
	DY         float64         `json:"dy,omitempty" yaml:"dy,omitempty"`
	Values     []*float64      `json:"values,omitempty" yaml:"values,omitempty"`
	Fill       json.RawMessage `json:"fill,omitempty" yaml:"-"`
	Sources    []string        `json:"sources,omitempty" yaml:"sources,omitempty"`
	Source     string          `json:"source,omitempty" yaml:"source,omitempty"`
	Layer      *int            `json:"layer,omitempty" yaml:"layer,omitempty"`
	Time       string          `json:"time,omitempty" yaml:"time,omitempty"`
	Rows       []Row           `json:"rows,omitempty" yaml:"rows,omitempty"`
	TopLayer   bool            `json:"top_layer,omitempty" yaml:"top_layer,omitempty"`
	SaveBudget bool            `json:"save_budget,omitempty" yaml:"save_budget,omitempty"`
}

type Row struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Rate   float64 `json:"rate" yaml:"rate"`
	IDName string  `json:"id_name" yaml:"id_name"`
	Layer  *int    `json:"layer,omitempty" yaml:"layer,omitempty"`
	Time   string  `json:"time,omitempty" yaml:"time,omitempty"`
}

// Manifest is a loaded model definition.
type Manifest struct {
	Path     string
	Model    *model.Model
	Seawat   bool
	EndTime  *time.Time
	Settings map[string]any
	// Digest is the canonical JSON digest of the document.
	Digest string
	// Sources lists the IDF and IPF files the packages were read from.
	Sources []string
}

// Load reads and builds the manifest at path. Relative source paths resolve
// against the manifest's directory.
func Load(path string) (*Manifest, error) {
	content, err := os.ReadFile(path) // #nosec G304 -- manifest path is explicit user input.
	if err != nil {
		code := "manifest_read_failed"
		category := coreerrors.CategoryIOFailure
		if os.IsNotExist(err) {
			category = coreerrors.CategoryInvalidInput
			code = "manifest_not_found"
		}
		return nil, coreerrors.Wrap(fmt.Errorf("read manifest: %w", err), category, code, "", false)
	}
	loaded, err := Parse(content, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	loaded.Path = path
	return loaded, nil
}

// Parse builds a manifest from YAML or JSON content.
func Parse(content []byte, baseDir string) (*Manifest, error) {
	document, encoded, err := decode(content)
	if err != nil {
		return nil, err
	}
	digest, err := jcs.DigestJCS(encoded)
	if err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("digest manifest: %w", err), coreerrors.CategoryInternalFailure, "manifest_digest", "", false)
	}

	out := &Manifest{
		Model:    model.New(document.Name),
		Seawat:   document.Seawat,
		Settings: document.Settings,
		Digest:   digest,
	}
	if document.EndTime != "" {
		end, err := calendar.Parse(document.EndTime)
		if err != nil {
			return nil, err
		}
		out.EndTime = &end
	}
	for i, pkg := range document.Packages {
		entry, err := buildEntry(pkg, baseDir)
		if err != nil {
			return nil, fmt.Errorf("package %d (%s): %w", i+1, pkg.Key, err)
		}
		if err := out.Model.Add(entry); err != nil {
			return nil, fmt.Errorf("package %d (%s): %w", i+1, pkg.Key, err)
		}
		out.Sources = append(out.Sources, pkg.sourcePaths(baseDir)...)
	}
	return out, nil
}

// Validate checks content against the manifest schema without building the
// model.
func Validate(content []byte) error {
	_, _, err := decode(content)
	return err
}

func decode(content []byte) (Document, []byte, error) {
	encoded, err := yaml.YAMLToJSON(content)
	if err != nil {
		return Document{}, nil, coreerrors.Invalid(fmt.Errorf("parse manifest: %w", err), "manifest_parse_failed", "")
	}
	schema, err := loadSchema()
	if err != nil {
		return Document{}, nil, err
	}
	result := schema.ValidateJSON(encoded)
	if !result.IsValid() {
		return Document{}, nil, coreerrors.Invalid(
			fmt.Errorf("%w: %v", ErrSchema, result.Errors),
			"manifest_schema_invalid",
			"see core/manifest/manifest.schema.json",
		)
	}
	var document Document
	if err := json.Unmarshal(encoded, &document); err != nil {
		return Document{}, nil, coreerrors.Invalid(fmt.Errorf("decode manifest: %w", err), "manifest_parse_failed", "")
	}
	return document, encoded, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		compiledSchema, compileErr = compiler.Compile(schemaJSON)
	})
	if compileErr != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("compile manifest schema: %w", compileErr), coreerrors.CategoryInternalFailure, "manifest_schema_compile", "", false)
	}
	return compiledSchema, nil
}

func buildEntry(pkg Package, baseDir string) (model.Entry, error) {
	var entry model.Entry
	switch pkg.Kind {
	case "table":
		table, err := buildTable(pkg, baseDir)
		if err != nil {
			return model.Entry{}, err
		}
		entry = model.TableEntry(pkg.Key, table)
	default:
		array, err := buildArray(pkg, baseDir)
		if err != nil {
			return model.Entry{}, err
		}
		entry = model.ArrayEntry(pkg.Key, array)
	}
	entry.TopLayer = pkg.TopLayer
	entry.SaveBudget = pkg.SaveBudget
	return entry, nil
}

func buildArray(pkg Package, baseDir string) (*model.Array, error) {
	if len(pkg.Sources) > 0 {
		if len(pkg.Layers) > 0 || len(pkg.Times) > 0 || len(pkg.X) > 0 || len(pkg.Y) > 0 {
			return nil, coreerrors.Invalid(ErrInlineAndFile, "manifest_inline_and_file", "drop layers, times and coordinates when using sources")
		}
		return readRasters(pkg.Sources, baseDir)
	}
	times, err := parseTimes(pkg.Times)
	if err != nil {
		return nil, err
	}
	array := &model.Array{
		Times:  times,
		Layers: append([]int{}, pkg.Layers...),
		Y:      append([]float64{}, pkg.Y...),
		X:      append([]float64{}, pkg.X...),
		DX:     pkg.DX,
		DY:     pkg.DY,
	}
	count := len(array.Layers) * len(array.Y) * len(array.X)
	if len(times) > 0 {
		count *= len(times)
	}
	if len(pkg.Fill) > 0 {
		fill := math.NaN()
		if string(pkg.Fill) != "null" {
			if err := json.Unmarshal(pkg.Fill, &fill); err != nil {
				return nil, coreerrors.Invalid(fmt.Errorf("fill: %w", err), "manifest_parse_failed", "")
			}
		}
		array.Values = make([]float64, count)
		for i := range array.Values {
			array.Values[i] = fill
		}
		return array, nil
	}
	if len(pkg.Values) != count {
		return nil, coreerrors.Invalid(fmt.Errorf("%w: %d values for %d cells", ErrValueCount, len(pkg.Values), count), "manifest_value_count", "")
	}
	array.Values = make([]float64, count)
	for i, value := range pkg.Values {
		if value == nil {
			array.Values[i] = math.NaN()
			continue
		}
		array.Values[i] = *value
	}
	return array, nil
}

func buildTable(pkg Package, baseDir string) (*model.Table, error) {
	if pkg.Source != "" {
		return readPoints(pkg, baseDir)
	}
	table := &model.Table{}
	withLayer := pkg.Rows[0].Layer != nil
	withTime := pkg.Rows[0].Time != ""
	for i, row := range pkg.Rows {
		if (row.Layer != nil) != withLayer || (row.Time != "") != withTime {
			return nil, coreerrors.Invalid(
				fmt.Errorf("%w: row %d differs from row 1 in its layer or time column", model.ErrColumnMismatch, i+1),
				"column_mismatch",
				"give every row a layer and time, or none",
			)
		}
		table.X = append(table.X, row.X)
		table.Y = append(table.Y, row.Y)
		table.Rate = append(table.Rate, row.Rate)
		table.IDName = append(table.IDName, row.IDName)
		if withLayer {
			table.Layer = append(table.Layer, *row.Layer)
		}
		if withTime {
			at, err := calendar.Parse(row.Time)
			if err != nil {
				return nil, err
			}
			table.Time = append(table.Time, at)
		}
	}
	return table, nil
}

func parseTimes(literals []string) ([]time.Time, error) {
	if len(literals) == 0 {
		return nil, nil
	}
	out := make([]time.Time, 0, len(literals))
	for _, literal := range literals {
		parsed, err := calendar.Parse(literal)
		if err != nil {
			return nil, err
		}
		out = append(out, parsed)
	}
	return out, nil
}

func (p Package) sourcePaths(baseDir string) []string {
	paths := make([]string, 0, len(p.Sources)+1)
	for _, source := range p.Sources {
		paths = append(paths, resolve(baseDir, source))
	}
	if p.Source != "" {
		paths = append(paths, resolve(baseDir, p.Source))
	}
	return paths
}

func resolve(baseDir, path string) string {
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

// CompileSchema reports whether the embedded schema compiles.
func CompileSchema() error {
	_, err := loadSchema()
	return err
}
