// Package deck writes a composed model to disk: one IDF per array slice, one
// IPF per point-table partition and the run file that references them.
package deck

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/davidahmann/gwdeck/core/cache"
	coreerrors "github.com/davidahmann/gwdeck/core/errors"
	"github.com/davidahmann/gwdeck/core/expand"
	"github.com/davidahmann/gwdeck/core/fsx"
	"github.com/davidahmann/gwdeck/core/idf"
	"github.com/davidahmann/gwdeck/core/ipf"
	"github.com/davidahmann/gwdeck/core/metrics"
	"github.com/davidahmann/gwdeck/core/model"
	"github.com/davidahmann/gwdeck/core/runfile"
	"github.com/davidahmann/gwdeck/internal/ctxlog"
	"golang.org/x/sync/errgroup"
)

const runFileMode = 0o600

type Options struct {
	Directory string
	Seawat    bool
	EndTime   *time.Time
	Overrides map[string]any
	// Workers bounds concurrent file writes; zero uses GOMAXPROCS.
	Workers int
	Cache   *cache.Cache
	Metrics *metrics.Recorder
}

// Result describes a written deck.
type Result struct {
	Directory     string   `json:"directory"`
	RunFile       string   `json:"run_file"`
	RunFileDigest string   `json:"run_file_digest"`
	Files         []string `json:"files"`
	Cached        bool     `json:"cached"`
}

// cacheArgs are the composition arguments that take part in the cache key.
type cacheArgs struct {
	Directory string         `json:"directory"`
	Seawat    bool           `json:"seawat"`
	EndTime   string         `json:"end_time,omitempty"`
	Overrides map[string]any `json:"overrides,omitempty"`
}

// Compose composes m and renders its run file without writing anything.
func Compose(ctx context.Context, m *model.Model, opts Options) (*runfile.Context, string, error) {
	start := time.Now()
	composed, err := runfile.Compose(ctx, m, runfile.Options{
		Directory: opts.Directory,
		Seawat:    opts.Seawat,
		EndTime:   opts.EndTime,
		Overrides: opts.Overrides,
	})
	if err != nil {
		return nil, "", err
	}
	text, err := runfile.Render(composed)
	if err != nil {
		return nil, "", err
	}
	opts.Metrics.ObserveCompose(composed.Flavor, time.Since(start))
	return composed, text, nil
}

// Write composes m completely before creating any file, so a model that fails
// validation leaves the directory untouched.
func Write(ctx context.Context, m *model.Model, opts Options) (Result, error) {
	logger := ctxlog.FromContext(ctx)
	composed, text, err := Compose(ctx, m, opts)
	if err != nil {
		return Result{}, err
	}
	result := Result{
		Directory:     composed.Directory,
		RunFile:       filepath.Join(composed.Directory, composed.ModelName()+".run"),
		RunFileDigest: digest(text),
		Files:         make([]string, 0, len(composed.Files)),
	}
	for _, file := range composed.Files {
		result.Files = append(result.Files, file.Path)
	}

	var key cache.Key
	if opts.Cache != nil {
		key, err = cacheKey(m, composed.Directory, opts)
		if err != nil {
			return Result{}, err
		}
		entry, ok, err := opts.Cache.Lookup(key)
		if err != nil {
			return Result{}, err
		}
		if ok && upToDate(entry, result) {
			opts.Metrics.CacheLookup(metrics.CacheHit)
			logger.Info("deck unchanged", "run_file", result.RunFile, "files", len(result.Files))
			result.Cached = true
			return result, nil
		}
		opts.Metrics.CacheLookup(metrics.CacheMiss)
	} else {
		opts.Metrics.CacheLookup(metrics.CacheDisabled)
	}

	if err := writeFiles(ctx, composed.Files, opts); err != nil {
		return Result{}, err
	}
	if err := fsx.WriteFileAtomic(result.RunFile, []byte(text), runFileMode); err != nil {
		return Result{}, coreerrors.Wrap(fmt.Errorf("write run file %s: %w", result.RunFile, err), coreerrors.CategoryIOFailure, "runfile_write_failed", "check that the deck directory is writable", true)
	}
	opts.Metrics.FileWritten(".run")

	if opts.Cache != nil {
		err := opts.Cache.Put(key, cache.Entry{
			Directory:     result.Directory,
			RunFile:       result.RunFile,
			RunFileDigest: result.RunFileDigest,
			Files:         result.Files,
		})
		if err != nil {
			return Result{}, err
		}
	}
	logger.Info("deck written",
		"flavor", composed.Flavor,
		"run_file", result.RunFile,
		"files", len(result.Files),
	)
	return result, nil
}

func writeFiles(ctx context.Context, files []expand.File, opts Options) error {
	references := map[*model.Array]model.Reference{}
	for _, file := range files {
		array := file.Entry.Array
		if array == nil {
			continue
		}
		if _, ok := references[array]; ok {
			continue
		}
		ref, err := model.SpatialReference(array)
		if err != nil {
			return err
		}
		references[array] = ref
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for _, file := range files {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			if err := writeFile(file, references); err != nil {
				return err
			}
			opts.Metrics.FileWritten(filepath.Ext(file.Path))
			return nil
		})
	}
	err := group.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return coreerrors.Wrap(err, coreerrors.CategoryInternalFailure, "write_cancelled", "", true)
	}
	return err
}

func writeFile(file expand.File, references map[*model.Array]model.Reference) error {
	if file.Entry.Kind == model.KindTable {
		return ipf.Write(file.Path, file.Entry.Table.Select(file.Time, file.Layer))
	}
	array := file.Entry.Array
	timeIndex := file.TimeIndex
	if timeIndex < 0 {
		timeIndex = 0
	}
	plane := array.Slice(timeIndex, file.LayerIndex)
	return idf.Write(file.Path, idf.FromGrid(references[array], len(array.Y), len(array.X), plane))
}

func cacheKey(m *model.Model, directory string, opts Options) (cache.Key, error) {
	args := cacheArgs{Directory: directory, Seawat: opts.Seawat, Overrides: opts.Overrides}
	if opts.EndTime != nil {
		args.EndTime = opts.EndTime.UTC().Format(time.RFC3339Nano)
	}
	argsHash, err := cache.ArgsHash(args)
	if err != nil {
		return cache.Key{}, err
	}
	return cache.Key{ContentHash: m.Digest(), ArgsHash: argsHash}, nil
}

// upToDate reports whether the deck the entry describes is still on disk
// unchanged.
func upToDate(entry cache.Entry, want Result) bool {
	if entry.RunFile != want.RunFile || entry.RunFileDigest != want.RunFileDigest || len(entry.Files) != len(want.Files) {
		return false
	}
	content, err := os.ReadFile(want.RunFile) // #nosec G304 -- run file path is derived from the deck directory.
	if err != nil || digest(string(content)) != want.RunFileDigest {
		return false
	}
	for _, path := range want.Files {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}

func digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
