package schema

import (
	"errors"
	"fmt"
	"strings"

	coreerrors "github.com/davidahmann/gwdeck/core/errors"
)

const (
	// ImplicitField labels the single field of packages without a field order.
	ImplicitField = "value"
	// DefaultSystem labels the system of an entry that names none.
	DefaultSystem = "default_system"

	keySeparator = "-"
)

var (
	ErrUnknownPackage = errors.New("unknown package")
	ErrMissingField   = errors.New("missing field")
	ErrInvalidField   = errors.New("invalid field")
	ErrMalformedKey   = errors.New("malformed key")
)

// Key is the structured form of an entry key such as "riv-stage-sys1".
// Field and System are empty when the key does not carry them.
type Key struct {
	Name   string
	Field  string
	System string
}

// FieldOrImplicit returns Field, or the implicit field name when unset.
func (k Key) FieldOrImplicit() string {
	if k.Field == "" {
		return ImplicitField
	}
	return k.Field
}

// SystemOrDefault returns System, or the default system label when unset.
func (k Key) SystemOrDefault() string {
	if k.System == "" {
		return DefaultSystem
	}
	return k.System
}

// String composes the wire form of the key.
func (k Key) String() string {
	segments := []string{k.Name}
	if k.Field != "" {
		segments = append(segments, k.Field)
	}
	if k.System != "" {
		segments = append(segments, k.System)
	}
	return strings.Join(segments, keySeparator)
}

// PackageName returns the first segment of a raw key without validating it.
func PackageName(raw string) string {
	name, _, _ := strings.Cut(raw, keySeparator)
	return name
}

// Parse decomposes raw against registry. Every segment must be consumed.
func Parse(raw string, registry *Registry) (Key, error) {
	segments := strings.Split(raw, keySeparator)
	name := segments[0]
	segments = segments[1:]

	entry, _, ok := registry.Lookup(name)
	if !ok {
		return Key{}, coreerrors.Invalid(
			fmt.Errorf("%w: %q in key %q", ErrUnknownPackage, name, raw),
			"unknown_package",
			fmt.Sprintf("supported %s packages: %s", registry.Flavor(), strings.Join(registry.Names(), ",")),
		)
	}
	for _, segment := range segments {
		if segment == "" {
			return Key{}, coreerrors.Invalid(
				fmt.Errorf("%w: key %q has an empty segment", ErrMalformedKey, raw),
				"malformed_key",
				"",
			)
		}
	}
	key := Key{Name: name}

	if entry.HasFields() {
		if len(segments) == 0 {
			return Key{}, coreerrors.Invalid(
				fmt.Errorf("%w: key %q, required fields are %s", ErrMissingField, raw, strings.Join(entry.FieldOrder, ",")),
				"missing_field",
				"append a field to the key, e.g. "+name+"-"+entry.FieldOrder[0],
			)
		}
		field := segments[0]
		segments = segments[1:]
		if !entry.hasField(field) {
			return Key{}, coreerrors.Invalid(
				fmt.Errorf("%w: %q in key %q is not a field of %s, possible values are %s", ErrInvalidField, field, raw, name, strings.Join(entry.FieldOrder, ",")),
				"invalid_field",
				"",
			)
		}
		key.Field = field
	}

	if entry.SupportsSystems && len(segments) > 0 {
		key.System = segments[0]
		segments = segments[1:]
	}

	if len(segments) > 0 {
		reason := "segments %q cannot be parsed as part of %s"
		if !entry.SupportsSystems {
			reason = "segments %q remain and %s does not support systems"
		}
		return Key{}, coreerrors.Invalid(
			fmt.Errorf("%w: key %q: "+reason, ErrMalformedKey, raw, strings.Join(segments, keySeparator), name),
			"malformed_key",
			"system labels may not contain '-'",
		)
	}
	return key, nil
}
