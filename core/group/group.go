// Package group collects the systems of one multi-system package, orders
// them and renders the control block the run file needs for them.
package group

import (
	"errors"
	"fmt"
	"strings"

	coreerrors "github.com/davidahmann/gwdeck/core/errors"
	"github.com/davidahmann/gwdeck/core/expand"
	"github.com/davidahmann/gwdeck/core/model"
	"github.com/davidahmann/gwdeck/core/schema"
)

// ConcentrationField is the field name that marks a system as carrying
// transport concentrations.
const ConcentrationField = "conc"

var (
	ErrMultipleConcentrationSystems = errors.New("only one system with concentrations allowed per package")
	ErrNotGroupable                 = errors.New("package does not support system grouping")
)

// Strategy is the aggregation recipe of one package kind. An empty BudgetKey
// means the section has no budget flag.
type Strategy struct {
	Section        string
	SystemsKey     string
	MaxActiveKey   string
	BudgetKey      string
	CellCountField string
}

var strategies = map[string]Strategy{
	"chd": {Section: "chd", SystemsKey: "mchdsys", MaxActiveKey: "mxactc", CellCountField: "head"},
	"drn": {Section: "drn", SystemsKey: "mdrnsys", MaxActiveKey: "mxactd", BudgetKey: "idrncb", CellCountField: "bot"},
	"ghb": {Section: "ghb", SystemsKey: "mghbsys", MaxActiveKey: "mxactb", BudgetKey: "ighbcb", CellCountField: "head"},
	"riv": {Section: "riv", SystemsKey: "mrivsys", MaxActiveKey: "mxactr", BudgetKey: "irivcb", CellCountField: "stage"},
	"wel": {Section: "wel", SystemsKey: "mwelsys", MaxActiveKey: "mxactw", BudgetKey: "iwelcb"},
}

// StrategyFor returns the strategy registered for a package name.
func StrategyFor(name string) (Strategy, bool) {
	strategy, ok := strategies[name]
	return strategy, ok
}

// System is the set of items sharing one system label.
type System struct {
	Label string
	Items []expand.Item
}

func (s System) hasConcentration() bool {
	for _, item := range s.Items {
		if item.Key.Field == ConcentrationField {
			return true
		}
	}
	return false
}

// PackageGroup lists the systems of one package in render order.
type PackageGroup struct {
	Name     string
	Strategy Strategy
	Systems  []System
	KeyOrder []string
	FirstKey string
}

// System returns the system with the given label.
func (g PackageGroup) System(label string) (System, bool) {
	for _, system := range g.Systems {
		if system.Label == label {
			return system, true
		}
	}
	return System{}, false
}

// Group gathers items by system label in order of first appearance and
// moves the single system carrying concentrations to the front.
func Group(name string, items []expand.Item) (PackageGroup, error) {
	strategy, ok := strategies[name]
	if !ok {
		return PackageGroup{}, coreerrors.Invalid(fmt.Errorf("%w: %s", ErrNotGroupable, name), "not_groupable", "")
	}
	out := PackageGroup{Name: name, Strategy: strategy}
	position := map[string]int{}
	for _, item := range items {
		label := item.Key.SystemOrDefault()
		index, seen := position[label]
		if !seen {
			index = len(out.Systems)
			position[label] = index
			out.Systems = append(out.Systems, System{Label: label})
		}
		out.Systems[index].Items = append(out.Systems[index].Items, item)
	}

	var concentration []string
	rest := make([]string, 0, len(out.Systems))
	for _, system := range out.Systems {
		if system.hasConcentration() {
			concentration = append(concentration, system.Label)
			continue
		}
		rest = append(rest, system.Label)
	}
	if len(concentration) > 1 {
		return PackageGroup{}, coreerrors.Invalid(
			fmt.Errorf("%w: %s systems %s", ErrMultipleConcentrationSystems, name, strings.Join(concentration, ",")),
			"multiple_concentration_systems",
			"",
		)
	}
	out.KeyOrder = append(concentration, rest...)
	if len(out.KeyOrder) > 0 {
		out.FirstKey = out.KeyOrder[0]
	}
	return out, nil
}

// Rendered is the control-block data of one group. SSM holds the source and
// sink mixing lines of the concentration system, if any.
type Rendered struct {
	NSystems   int
	NMaxActive int
	SaveBudget int
	Header     string
	Blocks     []string
	SSM        string
}

// Text joins the header and the system blocks.
func (r Rendered) Text() string {
	parts := append([]string{r.Header}, r.Blocks...)
	return strings.Join(parts, "\n")
}

// Render computes the aggregate counts and writes one block per system in
// key order. tree must be the expanded stress-period tree of the same
// package.
func Render(group PackageGroup, tree expand.PeriodPackage, nlayer int) (Rendered, error) {
	out := Rendered{NSystems: len(group.KeyOrder)}
	for _, label := range group.KeyOrder {
		system, _ := group.System(label)
		active, err := maxActive(group.Strategy, system, nlayer)
		if err != nil {
			return Rendered{}, err
		}
		out.NMaxActive += active
		for _, item := range system.Items {
			if item.Entry.SaveBudget {
				out.SaveBudget = 1
			}
		}
	}

	header := []string{
		"[" + group.Strategy.Section + "]",
		fmt.Sprintf("    %s = %d", group.Strategy.SystemsKey, out.NSystems),
		fmt.Sprintf("    %s = %d", group.Strategy.MaxActiveKey, out.NMaxActive),
	}
	if group.Strategy.BudgetKey != "" {
		header = append(header, fmt.Sprintf("    %s = %d", group.Strategy.BudgetKey, out.SaveBudget))
	}
	out.Header = strings.Join(header, "\n")

	for index, label := range group.KeyOrder {
		var lines []string
		for _, field := range tree.Fields {
			if field.Field == ConcentrationField {
				continue
			}
			lines = append(lines, fieldLines(group.Name, field, label, index+1)...)
		}
		out.Blocks = append(out.Blocks, strings.Join(lines, "\n"))
	}

	if concentration, ok := tree.Field(ConcentrationField); ok && group.FirstKey != "" {
		out.SSM = ssmLines(group.Name, concentration, group.FirstKey)
	}
	return out, nil
}

// RenderPlain renders a stress-period package that has no grouping
// strategy. Systems are numbered in order of appearance.
func RenderPlain(tree expand.PeriodPackage) Rendered {
	var labels []string
	seen := map[string]bool{}
	for _, field := range tree.Fields {
		for _, system := range field.Systems {
			if !seen[system.System] {
				seen[system.System] = true
				labels = append(labels, system.System)
			}
		}
	}
	out := Rendered{NSystems: len(labels), Header: "[" + tree.Name + "]"}
	var lines []string
	for index, label := range labels {
		for _, field := range tree.Fields {
			if field.Field == ConcentrationField {
				continue
			}
			lines = append(lines, fieldLines(tree.Name, field, label, index+1)...)
		}
	}
	out.Blocks = []string{strings.Join(lines, "\n")}
	if concentration, ok := tree.Field(ConcentrationField); ok && len(concentration.Systems) > 0 {
		out.SSM = ssmLines(tree.Name, concentration, concentration.Systems[0].System)
	}
	return out
}

func ssmLines(name string, concentration expand.PeriodField, label string) string {
	var lines []string
	for _, system := range concentration.Systems {
		if system.System != label {
			continue
		}
		for _, layer := range system.Layers {
			for i, path := range layer.Paths {
				lines = append(lines, fmt.Sprintf("    c%s_t1_p%s_l%s = %s", name, layer.Periods[i], layerLabel(layer.Layer), path))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func fieldLines(name string, field expand.PeriodField, label string, systemIndex int) []string {
	prefix := field.Field
	if prefix == schema.ImplicitField {
		prefix = name
	}
	var lines []string
	for _, system := range field.Systems {
		if system.System != label {
			continue
		}
		for _, layer := range system.Layers {
			for i, path := range layer.Paths {
				lines = append(lines, fmt.Sprintf("    %s_p%s_s%d_l%s = %s", prefix, layer.Periods[i], systemIndex, layerLabel(layer.Layer), path))
			}
		}
	}
	return lines
}

// Layer 0 is a table without a layer column, which applies to every layer.
func layerLabel(layer int) string {
	if layer == 0 {
		return "?"
	}
	return fmt.Sprintf("%d", layer)
}

// maxActive picks the item whose field counts the active cells, falling
// back to the first item of the system.
func maxActive(strategy Strategy, system System, nlayer int) (int, error) {
	if len(system.Items) == 0 {
		return 0, nil
	}
	chosen := system.Items[0]
	for _, item := range system.Items {
		if item.Key.FieldOrImplicit() == strategy.CellCountField {
			chosen = item
			break
		}
	}
	switch chosen.Entry.Kind {
	case model.KindArray:
		return chosen.Entry.Array.MaxActive(), nil
	case model.KindTable:
		return chosen.Entry.Table.MaxActive(nlayer), nil
	default:
		return 0, coreerrors.Wrap(fmt.Errorf("entry %s has no payload", chosen.Key), coreerrors.CategoryInternalFailure, "payload_missing", "", false)
	}
}
