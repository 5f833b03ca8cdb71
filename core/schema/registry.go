// Package schema declares which packages a deck may contain, how their entry
// keys are structured and in which order their fields are written.
package schema

// Family separates packages written once from packages written per stress period.
type Family int

const (
	Static Family = iota
	StressPeriod
)

func (f Family) String() string {
	if f == StressPeriod {
		return "stress_period"
	}
	return "static"
}

// Entry describes one package name. A nil FieldOrder means the package holds a
// single implicit field.
type Entry struct {
	Name            string
	SupportsSystems bool
	FieldOrder      []string
}

// HasFields reports whether keys for this package must name a field.
func (e Entry) HasFields() bool {
	return len(e.FieldOrder) > 0
}

// Fields returns the declared field order, or the implicit field.
func (e Entry) Fields() []string {
	if len(e.FieldOrder) == 0 {
		return []string{ImplicitField}
	}
	out := make([]string, len(e.FieldOrder))
	copy(out, e.FieldOrder)
	return out
}

func (e Entry) hasField(field string) bool {
	for _, candidate := range e.FieldOrder {
		if candidate == field {
			return true
		}
	}
	return false
}

// Registry is an immutable pair of lookup tables. A name appears in at most
// one family.
type Registry struct {
	flavor  string
	order   []string
	entries map[string]Entry
	family  map[string]Family
}

func newRegistry(flavor string, static, period []Entry) *Registry {
	registry := &Registry{
		flavor:  flavor,
		entries: make(map[string]Entry, len(static)+len(period)),
		family:  make(map[string]Family, len(static)+len(period)),
	}
	add := func(entries []Entry, family Family) {
		for _, entry := range entries {
			if _, exists := registry.entries[entry.Name]; exists {
				panic("schema: duplicate package name " + entry.Name)
			}
			registry.order = append(registry.order, entry.Name)
			registry.entries[entry.Name] = entry
			registry.family[entry.Name] = family
		}
	}
	add(static, Static)
	add(period, StressPeriod)
	return registry
}

// Flavor names the simulator the registry describes.
func (r *Registry) Flavor() string {
	return r.flavor
}

// Lookup returns the entry and family for name.
func (r *Registry) Lookup(name string) (Entry, Family, bool) {
	entry, ok := r.entries[name]
	if !ok {
		return Entry{}, Static, false
	}
	return entry, r.family[name], true
}

// Names lists every package name, static packages first, in declared order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

var flowRegistry = newRegistry("imodflow",
	[]Entry{
		{Name: "bnd"},
		{Name: "shd"},
		{Name: "kdw"},
		{Name: "vcw"},
		{Name: "khv"},
		{Name: "kva"},
		{Name: "kvv"},
		{Name: "sto"},
		{Name: "ssc"},
		{Name: "top"},
		{Name: "bot"},
		{Name: "pwt"},
		{Name: "ani", FieldOrder: []string{"angle", "factor"}},
		{Name: "hfb", FieldOrder: []string{"factor", "resistance"}},
	},
	[]Entry{
		{Name: "wel", SupportsSystems: true},
		{Name: "drn", SupportsSystems: true, FieldOrder: []string{"cond", "bot"}},
		{Name: "riv", SupportsSystems: true, FieldOrder: []string{"cond", "stage", "bot", "inff"}},
		{Name: "ghb", SupportsSystems: true, FieldOrder: []string{"cond", "head"}},
		{Name: "rch"},
		{Name: "chd"},
	},
)

var seawatRegistry = newRegistry("seawat",
	[]Entry{
		{Name: "bnd"},
		{Name: "icbund"},
		{Name: "top"},
		{Name: "bot"},
		{Name: "thickness"},
		{Name: "shd"},
		{Name: "sconc"},
		{Name: "khv"},
		{Name: "kva"},
		{Name: "sto"},
		{Name: "por"},
		{Name: "dsp", FieldOrder: []string{"al"}},
	},
	[]Entry{
		{Name: "wel", SupportsSystems: true, FieldOrder: []string{"rate", "conc"}},
		{Name: "drn", SupportsSystems: true, FieldOrder: []string{"bot", "cond", "conc"}},
		{Name: "riv", SupportsSystems: true, FieldOrder: []string{"stage", "cond", "bot", "dens", "conc"}},
		{Name: "ghb", SupportsSystems: true, FieldOrder: []string{"head", "cond", "dens", "conc"}},
		{Name: "rch", SupportsSystems: true, FieldOrder: []string{"rate", "conc"}},
		{Name: "chd", SupportsSystems: true, FieldOrder: []string{"head", "conc"}},
	},
)

// Flow returns the iMODFLOW registry.
func Flow() *Registry {
	return flowRegistry
}

// Seawat returns the iMOD-SEAWAT registry.
func Seawat() *Registry {
	return seawatRegistry
}

// For picks the registry for the requested simulator.
func For(seawat bool) *Registry {
	if seawat {
		return seawatRegistry
	}
	return flowRegistry
}
