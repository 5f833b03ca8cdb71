// Package model holds the in-memory form of a deck: an ordered set of package
// entries, each carrying either a gridded array or a point table.
package model

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"math"
	"strings"

	coreerrors "github.com/davidahmann/gwdeck/core/errors"
)

type Kind int

const (
	KindArray Kind = iota + 1
	KindTable
)

func (k Kind) String() string {
	switch k {
	case KindArray:
		return "array"
	case KindTable:
		return "table"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	ErrEmptyKey       = errors.New("entry key is empty")
	ErrDuplicateKey   = errors.New("duplicate entry key")
	ErrPayloadMissing = errors.New("entry payload does not match its kind")
)

// Entry is one named contribution to a model. Exactly one of Array and Table
// is set, as selected by Kind.
type Entry struct {
	Key   string
	Kind  Kind
	Array *Array
	Table *Table
	// TopLayer allows layer -1, meaning the uppermost active layer, in
	// iMODFLOW decks.
	TopLayer   bool
	SaveBudget bool
}

// ArrayEntry builds an array entry.
func ArrayEntry(key string, array *Array) Entry {
	return Entry{Key: key, Kind: KindArray, Array: array}
}

// TableEntry builds a point table entry.
func TableEntry(key string, table *Table) Entry {
	return Entry{Key: key, Kind: KindTable, Table: table}
}

// Validate checks the discriminant against the payload and the payload
// itself.
func (e Entry) Validate() error {
	switch {
	case e.Kind == KindArray && e.Array != nil && e.Table == nil:
		if err := e.Array.Validate(); err != nil {
			return fmt.Errorf("%s: %w", e.Key, err)
		}
	case e.Kind == KindTable && e.Table != nil && e.Array == nil:
		if err := e.Table.Validate(); err != nil {
			return fmt.Errorf("%s: %w", e.Key, err)
		}
	default:
		return coreerrors.Invalid(fmt.Errorf("%w: %s declared %s", ErrPayloadMissing, e.Key, e.Kind), "payload_mismatch", "")
	}
	return nil
}

// Layers returns the layer values an entry covers. Tables without a layer
// column return nil.
func (e Entry) Layers() []int {
	if e.Kind == KindArray {
		return e.Array.Layers
	}
	if !e.Table.HasLayer() {
		return nil
	}
	return e.Table.UniqueLayers()
}

// Model is an insertion-ordered collection of entries keyed by their
// lower-cased key. A model is never mutated by composition.
type Model struct {
	Name    string
	entries []Entry
	index   map[string]int
}

func New(name string) *Model {
	return &Model{Name: name, index: map[string]int{}}
}

// Add validates entry and appends it. Keys are normalized to lower case.
func (m *Model) Add(entry Entry) error {
	entry.Key = strings.ToLower(strings.TrimSpace(entry.Key))
	if entry.Key == "" {
		return coreerrors.Invalid(ErrEmptyKey, "empty_key", "")
	}
	if _, exists := m.index[entry.Key]; exists {
		return coreerrors.Invalid(fmt.Errorf("%w: %s", ErrDuplicateKey, entry.Key), "duplicate_key", "")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	if m.index == nil {
		m.index = map[string]int{}
	}
	m.index[entry.Key] = len(m.entries)
	m.entries = append(m.entries, entry)
	return nil
}

// Get returns the entry stored under key.
func (m *Model) Get(key string) (Entry, bool) {
	position, ok := m.index[strings.ToLower(key)]
	if !ok {
		return Entry{}, false
	}
	return m.entries[position], true
}

// Entries returns the entries in insertion order.
func (m *Model) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *Model) Len() int {
	return len(m.entries)
}

// Digest hashes the full content of the model, entry order included. Two
// models with equal digests compose to equal decks.
func (m *Model) Digest() string {
	digest := sha256.New()
	writeString(digest, m.Name)
	for _, entry := range m.entries {
		writeString(digest, entry.Key)
		writeInt(digest, int64(entry.Kind))
		writeBool(digest, entry.TopLayer)
		writeBool(digest, entry.SaveBudget)
		switch entry.Kind {
		case KindArray:
			digestArray(digest, entry.Array)
		case KindTable:
			digestTable(digest, entry.Table)
		}
	}
	return hex.EncodeToString(digest.Sum(nil))
}

func digestArray(digest hash.Hash, array *Array) {
	writeInt(digest, int64(len(array.Times)))
	for _, at := range array.Times {
		writeInt(digest, at.Unix())
		writeInt(digest, int64(at.Nanosecond()))
	}
	writeInt(digest, int64(len(array.Layers)))
	for _, layer := range array.Layers {
		writeInt(digest, int64(layer))
	}
	writeFloats(digest, array.Y)
	writeFloats(digest, array.X)
	writeFloats(digest, []float64{array.DX, array.DY})
	writeFloats(digest, array.Values)
}

func digestTable(digest hash.Hash, table *Table) {
	writeFloats(digest, table.X)
	writeFloats(digest, table.Y)
	writeFloats(digest, table.Rate)
	writeInt(digest, int64(len(table.IDName)))
	for _, id := range table.IDName {
		writeString(digest, id)
	}
	writeBool(digest, table.HasLayer())
	for _, layer := range table.Layer {
		writeInt(digest, int64(layer))
	}
	writeBool(digest, table.HasTime())
	for _, at := range table.Time {
		writeInt(digest, at.Unix())
		writeInt(digest, int64(at.Nanosecond()))
	}
}

func writeString(digest hash.Hash, value string) {
	writeInt(digest, int64(len(value)))
	_, _ = digest.Write([]byte(value))
}

func writeInt(digest hash.Hash, value int64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(value))
	_, _ = digest.Write(buf[:])
}

func writeBool(digest hash.Hash, value bool) {
	if value {
		writeInt(digest, 1)
		return
	}
	writeInt(digest, 0)
}

// NaN payloads are canonicalized so every missing cell hashes alike.
func writeFloats(digest hash.Hash, values []float64) {
	writeInt(digest, int64(len(values)))
	var buf [8]byte
	for _, value := range values {
		bits := math.Float64bits(value)
		if math.IsNaN(value) {
			bits = math.Float64bits(math.NaN())
		}
		binary.LittleEndian.PutUint64(buf[:], bits)
		_, _ = digest.Write(buf[:])
	}
}
