package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	entry, family, ok := Flow().Lookup("riv")
	require.True(t, ok)
	assert.Equal(t, StressPeriod, family)
	assert.True(t, entry.SupportsSystems)
	assert.Equal(t, []string{"cond", "stage", "bot", "inff"}, entry.FieldOrder)

	entry, family, ok = Flow().Lookup("khv")
	require.True(t, ok)
	assert.Equal(t, Static, family)
	assert.False(t, entry.HasFields())
	assert.Equal(t, []string{ImplicitField}, entry.Fields())

	_, _, ok = Flow().Lookup("icbund")
	assert.False(t, ok, "icbund is a seawat-only package")

	entry, _, ok = Seawat().Lookup("riv")
	require.True(t, ok)
	assert.Equal(t, []string{"stage", "cond", "bot", "dens", "conc"}, entry.FieldOrder)
}

func TestNamesAreUniqueAcrossFamilies(t *testing.T) {
	for _, registry := range []*Registry{Flow(), Seawat()} {
		seen := map[string]bool{}
		for _, name := range registry.Names() {
			assert.False(t, seen[name], "%s listed twice in %s", name, registry.Flavor())
			seen[name] = true
		}
		assert.Equal(t, "bnd", registry.Names()[0])
	}
}

func TestFieldsReturnsCopy(t *testing.T) {
	entry, _, _ := Flow().Lookup("ani")
	fields := entry.Fields()
	fields[0] = "mutated"
	again, _, _ := Flow().Lookup("ani")
	assert.Equal(t, "angle", again.FieldOrder[0])
}

func TestFor(t *testing.T) {
	assert.Same(t, Seawat(), For(true))
	assert.Same(t, Flow(), For(false))
	assert.Equal(t, "stress_period", StressPeriod.String())
	assert.Equal(t, "static", Static.String())
}
