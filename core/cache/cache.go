// Package cache remembers which decks have already been written for a model
// and a set of composition arguments, so unchanged decks are not rewritten.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	coreerrors "github.com/davidahmann/gwdeck/core/errors"
	"github.com/davidahmann/gwdeck/core/jcs"
)

var ErrEmptyKey = errors.New("cache key needs a content hash and an arguments hash")

// Store is the byte-level backend of a Cache.
type Store interface {
	Get(key []byte) ([]byte, bool, error)
	Set(key, value []byte) error
	DeletePrefix(prefix []byte) (int, error)
	Close() error
}

// Key identifies one composition: the model digest and the digest of the
// arguments it was composed with.
type Key struct {
	ContentHash string
	ArgsHash    string
}

func (k Key) bytes() []byte {
	return []byte(k.ContentHash + "/" + k.ArgsHash)
}

// Entry is what a cached composition produced.
type Entry struct {
	Directory     string    `json:"directory"`
	RunFile       string    `json:"run_file"`
	RunFileDigest string    `json:"run_file_digest"`
	Files         []string  `json:"files"`
	CreatedAt     time.Time `json:"created_at"`
}

// Cache maps composition keys to entries.
type Cache struct {
	store Store
}

func New(store Store) *Cache {
	return &Cache{store: store}
}

// ArgsHash digests composition arguments in canonical JSON form.
func ArgsHash(args any) (string, error) {
	digest, err := jcs.DigestValue(args)
	if err != nil {
		return "", coreerrors.Wrap(err, coreerrors.CategoryInternalFailure, "cache_args_hash", "", false)
	}
	return digest, nil
}

// Lookup returns the entry stored for key.
func (c *Cache) Lookup(key Key) (Entry, bool, error) {
	if err := key.validate(); err != nil {
		return Entry{}, false, err
	}
	raw, ok, err := c.store.Get(key.bytes())
	if err != nil {
		return Entry{}, false, storeError("lookup", err)
	}
	if !ok {
		return Entry{}, false, nil
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt record behaves like a miss and is overwritten on Put.
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Put stores entry under key.
func (c *Cache) Put(key Key, entry Entry) error {
	if err := key.validate(); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return coreerrors.Wrap(fmt.Errorf("encode cache entry: %w", err), coreerrors.CategoryInternalFailure, "cache_encode", "", false)
	}
	if err := c.store.Set(key.bytes(), raw); err != nil {
		return storeError("put", err)
	}
	return nil
}

// Invalidate drops every entry for contentHash and reports how many were
// removed.
func (c *Cache) Invalidate(contentHash string) (int, error) {
	if strings.TrimSpace(contentHash) == "" {
		return 0, coreerrors.Invalid(ErrEmptyKey, "cache_key_empty", "")
	}
	removed, err := c.store.DeletePrefix([]byte(contentHash + "/"))
	if err != nil {
		return 0, storeError("invalidate", err)
	}
	return removed, nil
}

func (c *Cache) Close() error {
	return c.store.Close()
}

func (k Key) validate() error {
	if strings.TrimSpace(k.ContentHash) == "" || strings.TrimSpace(k.ArgsHash) == "" {
		return coreerrors.Invalid(ErrEmptyKey, "cache_key_empty", "")
	}
	return nil
}

func storeError(op string, err error) error {
	return coreerrors.Wrap(fmt.Errorf("cache %s: %w", op, err), coreerrors.CategoryIOFailure, "cache_store_failed", "remove the cache directory or pass --no-cache", true)
}
