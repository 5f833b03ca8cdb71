package runfile

import (
	"bytes"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	coreerrors "github.com/davidahmann/gwdeck/core/errors"
	"github.com/davidahmann/gwdeck/core/expand"
	"github.com/davidahmann/gwdeck/core/schema"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(
	template.New("runfile").
		Option("missingkey=error").
		Funcs(template.FuncMap{
			"value":     FormatValue,
			"num":       formatFloat,
			"ints":      joinInts,
			"fieldName": fieldName,
			"inc":       func(i int) int { return i + 1 },
		}).
		ParseFS(templateFS, "templates/*.tmpl"),
)

// packageSections are written next to their package block rather than with
// the general settings.
var packageSections = map[string]bool{
	"drn": true, "chd": true, "ghb": true, "riv": true, "rch": true, "wel": true, "ssm": true,
}

// GeneralSections returns the settings sections that do not belong to a
// package block.
func (c *Context) GeneralSections() []Section {
	out := make([]Section, 0, len(c.Sections))
	for _, section := range c.Sections {
		if packageSections[section.Name] {
			continue
		}
		out = append(out, section)
	}
	return out
}

// SectionSettings returns the settings of one section, or nil.
func (c *Context) SectionSettings(name string) []Setting {
	for _, section := range c.Sections {
		if section.Name == name {
			return section.Settings
		}
	}
	return nil
}

// StaticPackage returns the expanded static package with the given name, or
// nil.
func (c *Context) StaticPackage(name string) *expand.StaticPackage {
	for i := range c.Packages {
		if c.Packages[i].Name == name {
			return &c.Packages[i]
		}
	}
	return nil
}

// StandalonePackages returns the static packages that do not share a name
// with a general settings section.
func (c *Context) StandalonePackages() []expand.StaticPackage {
	sections := map[string]bool{}
	for _, section := range c.GeneralSections() {
		sections[section.Name] = true
	}
	var out []expand.StaticPackage
	for _, pkg := range c.Packages {
		if !sections[pkg.Name] {
			out = append(out, pkg)
		}
	}
	return out
}

// BlockSettings returns the settings written under an ungrouped package
// header. Grouped packages carry their counts in the header itself.
func (c *Context) BlockSettings(block PeriodBlock) []Setting {
	if block.Grouped {
		return nil
	}
	return c.SectionSettings(block.Name)
}

// Render fills the flavor's run file template with c.
func Render(c *Context) (string, error) {
	name := "imodflow.run.tmpl"
	if c.Seawat {
		name = "seawat.run.tmpl"
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, c); err != nil {
		return "", coreerrors.Wrap(fmt.Errorf("render run file: %w", err), coreerrors.CategoryInternalFailure, "render_failed", "", false)
	}
	return strings.Trim(buf.String(), "\n") + "\n", nil
}

func joinInts(values []int) string {
	parts := make([]string, 0, len(values))
	for _, value := range values {
		parts = append(parts, strconv.Itoa(value))
	}
	return strings.Join(parts, ",")
}

func fieldName(pkg, field string) string {
	if field == schema.ImplicitField {
		return pkg
	}
	return field
}
