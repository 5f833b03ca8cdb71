package runfile

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	coreerrors "github.com/davidahmann/gwdeck/core/errors"
)

var (
	ErrUnknownSetting = errors.New("unknown run file setting")
	ErrInvalidSetting = errors.New("invalid run file setting value")
)

// Setting is one named run file value. Value is an int, float64, bool or
// string.
type Setting struct {
	Name  string
	Value any
}

// Section is an ordered group of settings written under one [header].
type Section struct {
	Name     string
	Settings []Setting
}

type settingDef struct {
	section string
	name    string
	value   any
}

var flowDefaults = []settingDef{
	{"gen", "modelname", "results"},
	{"gen", "sdate", 0},
	{"gen", "nscl", 0},
	{"gen", "iconchk", 0},
	{"gen", "iipf", 0},
	{"gen", "iarmwp", 0},
	{"gen", "nmult", 0},
	{"gen", "idebug", 0},
	{"gen", "iexport", 0},
	{"gen", "iposwel", 0},
	{"gen", "iscen", 0},
	{"solver", "outer", 150},
	{"solver", "inner", 30},
	{"solver", "hclose", 0.001},
	{"solver", "qclose", 100.0},
	{"solver", "relax", 0.98},
	{"solver", "buffer", 0.0},
}

var seawatDefaults = []settingDef{
	{"gen", "modelname", "results"},
	{"gen", "writehelp", true},
	{"dis", "nstp", 1},
	{"dis", "sstr", "tr"},
	{"dis", "laycbd", 0},
	{"bas6", "hnoflo", -9999.0},
	{"oc", "savehead", true},
	{"oc", "saveconclayer", true},
	{"oc", "savebudget", false},
	{"oc", "saveheadtec", false},
	{"oc", "saveconctec", false},
	{"oc", "savevxtec", false},
	{"oc", "savevytec", false},
	{"oc", "savevztec", false},
	{"lpf", "ilpfcb", 1},
	{"lpf", "hdry", 1.0e30},
	{"lpf", "nplpf", 0},
	{"lpf", "laytyp", 0},
	{"lpf", "layavg", 0},
	{"lpf", "chani", 1.0},
	{"lpf", "layvka", 0},
	{"pcg", "mxiter", 100},
	{"pcg", "iter1", 30},
	{"pcg", "hclose", 0.0001},
	{"pcg", "rclose", 1.0},
	{"pcg", "relax", 0.98},
	{"pcg", "nbpol", 0},
	{"pcg", "iprpcg", 1},
	{"pcg", "mutpcg", 1},
	{"pksf", "pksf", false},
	{"pksf", "mxiterpks", 1000},
	{"pksf", "inneritpks", 30},
	{"pksf", "hclosepks", 0.0001},
	{"pksf", "rclosepks", 1.0},
	{"pksf", "npc", 2},
	{"pksf", "partopt", 0},
	{"pksf", "pressakey", false},
	{"btn", "ncomp", 1},
	{"btn", "cinact", -9999.0},
	{"btn", "thkmin", 0.01},
	{"btn", "nprs", 0},
	{"btn", "ifmtcn", -1},
	{"btn", "chkmas", true},
	{"btn", "nprmas", 10},
	{"btn", "nprobs", 1},
	{"btn", "tsmult", 1.0},
	{"btn", "dt0", 0.0},
	{"btn", "mxstrn", 10000.0},
	{"btn", "ttsmult", 1.0},
	{"btn", "ttsmax", 0.0},
	{"adv", "mixelm", -1},
	{"adv", "percel", 1.0},
	{"adv", "mxpart", 100000},
	{"adv", "itrack", 1},
	{"adv", "wd", 0.5},
	{"adv", "dceps", 0.0001},
	{"adv", "nplane", 2},
	{"adv", "npl", 0},
	{"adv", "nph", 8},
	{"adv", "npmin", 0},
	{"adv", "npmax", 16},
	{"adv", "interp", 1},
	{"adv", "nlsink", 2},
	{"adv", "npsink", 8},
	{"adv", "dchmoc", 0.001},
	{"dsp", "trpt", 1.0},
	{"dsp", "trpv", 1.0},
	{"dsp", "dmcoef", 0.0001},
	{"gcg", "mt3d_mxiter", 1000},
	{"gcg", "mt3d_iter1", 300},
	{"gcg", "mt3d_isolve", 2},
	{"vdf", "mtdnconc", 1},
	{"vdf", "mfnadvfd", 2},
	{"vdf", "nswtcpl", 1},
	{"vdf", "iwtable", 0},
	{"vdf", "densemin", 1000.0},
	{"vdf", "densemax", 1025.0},
	{"vdf", "denseref", 1000.0},
	{"vdf", "denseslp", 0.7143},
	{"drn", "mxactd", 1.0e6},
	{"drn", "idrncb", 0},
	{"chd", "mxactc", 1.0e6},
	{"ghb", "mxactb", 1.0e6},
	{"ghb", "ighbcb", 0},
	{"riv", "mxactr", 1.0e6},
	{"riv", "irivcb", 0},
	{"rch", "nrchop", 3},
	{"rch", "irchcb", 0},
	{"wel", "mxactw", 1.0e6},
	{"wel", "iwelcb", 0},
	{"ssm", "mxss", 1.0e6},
}

// SettingNames lists the setting names of a flavor in declared order.
func SettingNames(seawat bool) []string {
	defs := defaultsFor(seawat)
	out := make([]string, 0, len(defs))
	for _, def := range defs {
		out = append(out, def.name)
	}
	return out
}

func defaultsFor(seawat bool) []settingDef {
	if seawat {
		return seawatDefaults
	}
	return flowDefaults
}

// buildSections merges overrides into the flavor defaults. Every override
// key must name a default, and its value must convert to the default's type.
func buildSections(seawat bool, overrides map[string]any) ([]Section, error) {
	defs := defaultsFor(seawat)
	known := make(map[string]settingDef, len(defs))
	for _, def := range defs {
		known[def.name] = def
	}
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	converted := make(map[string]any, len(overrides))
	for _, name := range names {
		def, ok := known[name]
		if !ok {
			return nil, coreerrors.Invalid(
				fmt.Errorf("%w: %s", ErrUnknownSetting, name),
				"unknown_setting",
				"see `gwdeck compose --help` for the settings of each flavor",
			)
		}
		value, err := convert(def.value, overrides[name])
		if err != nil {
			return nil, coreerrors.Invalid(fmt.Errorf("%w: %s: %v", ErrInvalidSetting, name, err), "invalid_setting", "")
		}
		converted[name] = value
	}

	var sections []Section
	for _, def := range defs {
		value := def.value
		if override, ok := converted[def.name]; ok {
			value = override
		}
		if len(sections) == 0 || sections[len(sections)-1].Name != def.section {
			sections = append(sections, Section{Name: def.section})
		}
		last := &sections[len(sections)-1]
		last.Settings = append(last.Settings, Setting{Name: def.name, Value: value})
	}
	return sections, nil
}

// convert coerces a decoded override to the type of the default. Config and
// manifest decoders hand numbers over as int64, uint64 or float64.
func convert(def, value any) (any, error) {
	switch def.(type) {
	case string:
		if text, ok := value.(string); ok {
			return text, nil
		}
	case bool:
		if flag, ok := value.(bool); ok {
			return flag, nil
		}
	case int:
		switch number := value.(type) {
		case int:
			return number, nil
		case int64:
			return int(number), nil
		case uint64:
			return int(number), nil
		case float64:
			if number == math.Trunc(number) {
				return int(number), nil
			}
		}
	case float64:
		switch number := value.(type) {
		case float64:
			return number, nil
		case int:
			return float64(number), nil
		case int64:
			return float64(number), nil
		case uint64:
			return float64(number), nil
		}
	}
	return nil, fmt.Errorf("cannot use %v (%T) where %T is expected", value, value, def)
}

// FormatValue renders a setting value the way the run file expects it.
func FormatValue(value any) string {
	switch typed := value.(type) {
	case bool:
		if typed {
			return "True"
		}
		return "False"
	case float64:
		return formatFloat(typed)
	case int:
		return strconv.Itoa(typed)
	case string:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}

func formatFloat(value float64) string {
	text := strconv.FormatFloat(value, 'g', -1, 64)
	if !strings.ContainsAny(text, ".eEnN") {
		text += ".0"
	}
	return text
}
