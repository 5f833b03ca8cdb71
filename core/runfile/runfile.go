// Package runfile composes a model into the complete context of a run file:
// settings, grid bounds, stress periods, expanded path trees and system
// groups. Composition never touches the filesystem.
package runfile

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/davidahmann/gwdeck/core/bounds"
	"github.com/davidahmann/gwdeck/core/calendar"
	coreerrors "github.com/davidahmann/gwdeck/core/errors"
	"github.com/davidahmann/gwdeck/core/expand"
	"github.com/davidahmann/gwdeck/core/group"
	"github.com/davidahmann/gwdeck/core/model"
	"github.com/davidahmann/gwdeck/core/schema"
	"github.com/davidahmann/gwdeck/core/timedisc"
	"github.com/davidahmann/gwdeck/internal/ctxlog"
)

var (
	ErrIncompleteConsumption = errors.New("model could not be completely consumed")
	ErrPayloadKind           = errors.New("entry has the wrong payload kind")
	ErrEndTimeNotAfterData   = errors.New("end time must be later than every data time")
	ErrMissingEndTime        = errors.New("a single time point needs an end time")
	ErrSeawatRequiresTime    = errors.New("no time dependent data in model")
	ErrStaticWithTime        = errors.New("static package entry carries a time coordinate")
)

// Options selects the flavor and destination of a composition.
type Options struct {
	// Directory is where the deck will be written. Paths in the run file are
	// absolute.
	Directory string
	Seawat    bool
	// EndTime closes the final stress period. It must be later than every
	// time in the model.
	EndTime   *time.Time
	Overrides map[string]any
}

// PeriodBlock is the rendered text of one stress-period package.
type PeriodBlock struct {
	Name     string
	Header   string
	Body     string
	Grouped  bool
	NSystems int
}

// Context is everything a run file template needs. It is a fresh value per
// composition.
type Context struct {
	Flavor        string
	Seawat        bool
	Directory     string
	Sections      []Section
	Bounds        bounds.Bounds
	Mode          calendar.Mode
	Packages      []expand.StaticPackage
	StressPeriods []expand.PeriodPackage
	Periods       []timedisc.Period
	// TimeDiscretisation is label to duration; a steady-state model has the
	// single entry steady-state = 0.
	TimeDiscretisation []Setting
	SteadyState        bool
	OutputLayers       []int
	Blocks             []PeriodBlock
	SSM                []string
	MXSS               int
	NComp              int
	StartDate          string
	Files              []expand.File
}

// Setting returns the value of a named setting.
func (c *Context) Setting(name string) (any, bool) {
	for _, section := range c.Sections {
		for _, setting := range section.Settings {
			if setting.Name == name {
				return setting.Value, true
			}
		}
	}
	return nil, false
}

// ModelName is the value of the modelname setting.
func (c *Context) ModelName() string {
	value, _ := c.Setting("modelname")
	name, _ := value.(string)
	return name
}

// Compose runs the full composition pipeline over m.
func Compose(ctx context.Context, m *model.Model, opts Options) (*Context, error) {
	logger := ctxlog.FromContext(ctx)
	registry := schema.For(opts.Seawat)
	entries := m.Entries()
	if err := checkInput(entries, registry, opts.Seawat); err != nil {
		return nil, err
	}

	grid, err := bounds.Compute(entries, bounds.Options{Seawat: opts.Seawat})
	if err != nil {
		return nil, err
	}
	if opts.EndTime != nil {
		end := opts.EndTime.UTC()
		if len(grid.Times) > 0 && !end.After(grid.Times[len(grid.Times)-1]) {
			return nil, coreerrors.Invalid(
				fmt.Errorf("%w: %s", ErrEndTimeNotAfterData, end.Format(time.RFC3339)),
				"end_time_not_after_data",
				"last data time is "+grid.Times[len(grid.Times)-1].Format(time.RFC3339),
			)
		}
		if len(grid.Times) > 0 {
			grid = grid.WithEndTime(end)
		}
	}
	if len(grid.Times) == 1 {
		return nil, coreerrors.Invalid(ErrMissingEndTime, "missing_end_time", "pass an end time to close the only stress period")
	}
	if opts.Seawat && grid.Steady() {
		return nil, coreerrors.Invalid(ErrSeawatRequiresTime, "seawat_requires_time", "")
	}

	axis := timedisc.NewAxis(ctx, grid.Times)
	grid.Times = axis.Times
	periods := timedisc.Discretize(axis)
	starts := axis.Starts()

	overrides := opts.Overrides
	if _, set := overrides["modelname"]; !set && m.Name != "" {
		overrides = withModelName(overrides, m.Name)
	}
	sections, err := buildSections(opts.Seawat, overrides)
	if err != nil {
		return nil, err
	}

	directory, err := filepath.Abs(opts.Directory)
	if err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("resolve deck directory: %w", err), coreerrors.CategoryIOFailure, "directory_invalid", "", false)
	}

	out := &Context{
		Flavor:       registry.Flavor(),
		Seawat:       opts.Seawat,
		Directory:    directory,
		Sections:     sections,
		Bounds:       grid,
		Mode:         axis.Mode,
		Periods:      periods,
		SteadyState:  grid.Steady(),
		OutputLayers: grid.Layers(),
		NComp:        1,
	}
	if out.SteadyState {
		out.TimeDiscretisation = []Setting{{Name: "steady-state", Value: 0}}
	} else {
		out.StartDate = calendar.Format(axis.Mode, axis.Times[0])
		for _, period := range periods {
			out.TimeDiscretisation = append(out.TimeDiscretisation, Setting{Name: period.Label, Value: period.Duration})
		}
	}

	remaining := entries
	for _, name := range registry.Names() {
		var popped []model.Entry
		popped, remaining = popPackage(remaining, name)
		if len(popped) == 0 {
			continue
		}
		items := make([]expand.Item, 0, len(popped))
		for _, entry := range popped {
			key, err := schema.Parse(entry.Key, registry)
			if err != nil {
				return nil, err
			}
			items = append(items, expand.Item{Key: key, Entry: entry})
		}
		schemaEntry, family, _ := registry.Lookup(name)
		dir := filepath.Join(directory, name)
		for _, item := range items {
			out.Files = append(out.Files, expand.Files(item, axis.Mode, dir)...)
		}

		if family == schema.Static {
			tree, err := expand.Static(name, items, schemaEntry, axis.Mode, dir)
			if err != nil {
				return nil, err
			}
			out.Packages = append(out.Packages, tree)
			continue
		}

		tree, err := expand.Period(name, items, schemaEntry, starts, axis.Mode, dir)
		if err != nil {
			return nil, err
		}
		out.StressPeriods = append(out.StressPeriods, tree)
		block, err := renderBlock(name, items, tree, grid.NLay)
		if err != nil {
			return nil, err
		}
		out.Blocks = append(out.Blocks, block.PeriodBlock)
		if block.ssm != "" {
			out.SSM = append(out.SSM, block.ssm)
		}
		if block.Grouped {
			out.MXSS += block.maxActive
			if opts.Seawat {
				setSetting(out.Sections, block.strategy.MaxActiveKey, block.maxActive)
				if block.strategy.BudgetKey != "" {
					setSetting(out.Sections, block.strategy.BudgetKey, block.saveBudget)
				}
			}
		}
		if field, ok := tree.Field(group.ConcentrationField); ok && len(field.Systems) > out.NComp {
			out.NComp = len(field.Systems)
		}
	}

	if len(remaining) > 0 {
		keys := make([]string, 0, len(remaining))
		for _, entry := range remaining {
			keys = append(keys, entry.Key)
		}
		return nil, coreerrors.Invalid(
			fmt.Errorf("%w: leftover keys %s", ErrIncompleteConsumption, strings.Join(keys, ",")),
			"incomplete_consumption",
			fmt.Sprintf("supported %s packages: %s", registry.Flavor(), strings.Join(registry.Names(), ",")),
		)
	}
	if opts.Seawat {
		setSetting(out.Sections, "ncomp", out.NComp)
		if out.MXSS > 0 {
			setSetting(out.Sections, "mxss", out.MXSS)
		}
	}

	sort.SliceStable(out.Files, func(i, j int) bool { return out.Files[i].Path < out.Files[j].Path })
	logger.Debug("composed run file context",
		"flavor", out.Flavor,
		"packages", len(out.Packages),
		"stress_period_packages", len(out.StressPeriods),
		"periods", len(out.Periods),
		"files", len(out.Files),
		"calendar", out.Mode.String(),
	)
	return out, nil
}

type renderedBlock struct {
	PeriodBlock
	ssm        string
	maxActive  int
	saveBudget int
	strategy   group.Strategy
}

func renderBlock(name string, items []expand.Item, tree expand.PeriodPackage, nlayer int) (renderedBlock, error) {
	strategy, ok := group.StrategyFor(name)
	if !ok {
		rendered := group.RenderPlain(tree)
		return renderedBlock{
			PeriodBlock: PeriodBlock{Name: name, Header: rendered.Header, Body: strings.Join(rendered.Blocks, "\n"), NSystems: rendered.NSystems},
			ssm:         rendered.SSM,
		}, nil
	}
	packageGroup, err := group.Group(name, items)
	if err != nil {
		return renderedBlock{}, err
	}
	rendered, err := group.Render(packageGroup, tree, nlayer)
	if err != nil {
		return renderedBlock{}, err
	}
	return renderedBlock{
		PeriodBlock: PeriodBlock{
			Name:     name,
			Header:   rendered.Header,
			Body:     strings.Join(rendered.Blocks, "\n"),
			Grouped:  true,
			NSystems: rendered.NSystems,
		},
		ssm:        rendered.SSM,
		maxActive:  rendered.NMaxActive,
		saveBudget: rendered.SaveBudget,
		strategy:   strategy,
	}, nil
}

// checkInput enforces which keys carry point tables: wel in iMODFLOW and
// wel-rate in SEAWAT. Every other entry must be an array, and arrays of
// static packages must not carry time.
func checkInput(entries []model.Entry, registry *schema.Registry, seawat bool) error {
	for _, entry := range entries {
		wantTable := false
		switch {
		case !seawat && schema.PackageName(entry.Key) == "wel":
			wantTable = true
		case seawat && entry.Key == "wel-rate":
			wantTable = true
		}
		if wantTable && entry.Kind != model.KindTable {
			return coreerrors.Invalid(fmt.Errorf("%w: %s must be a point table", ErrPayloadKind, entry.Key), "payload_kind", "")
		}
		if !wantTable && entry.Kind != model.KindArray {
			return coreerrors.Invalid(fmt.Errorf("%w: %s must be an array", ErrPayloadKind, entry.Key), "payload_kind", "")
		}
		if entry.Kind == model.KindArray && entry.Array.HasTime() {
			if _, family, ok := registry.Lookup(schema.PackageName(entry.Key)); ok && family == schema.Static {
				return coreerrors.Invalid(
					fmt.Errorf("%w: %s", ErrStaticWithTime, entry.Key),
					"static_with_time",
					"drop the time coordinate of "+entry.Key+" or select a single time",
				)
			}
		}
	}
	return nil
}

func popPackage(entries []model.Entry, name string) ([]model.Entry, []model.Entry) {
	var popped, rest []model.Entry
	for _, entry := range entries {
		if schema.PackageName(entry.Key) == name {
			popped = append(popped, entry)
			continue
		}
		rest = append(rest, entry)
	}
	return popped, rest
}

func withModelName(overrides map[string]any, name string) map[string]any {
	out := make(map[string]any, len(overrides)+1)
	for key, value := range overrides {
		out[key] = value
	}
	out["modelname"] = name
	return out
}

func setSetting(sections []Section, name string, value any) {
	for si := range sections {
		for i := range sections[si].Settings {
			if sections[si].Settings[i].Name == name {
				sections[si].Settings[i].Value = value
				return
			}
		}
	}
}
