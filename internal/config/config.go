// Package config holds the per-command option structs and their pflag
// bindings: plain structs with a BindFlags method rather than a
// struct-tag-driven flag library.
package config

import (
	"github.com/c2h5oh/datasize"
	"github.com/spf13/pflag"

	"github.com/erigontech/geodedupe/internal/insertpipe"
	"github.com/erigontech/geodedupe/internal/resolvepipe"
)

// InsertOptions binds the `geodedupe import` flags.
type InsertOptions struct {
	Source string
	Store  string
	Workers int
	QueueCapacity int
	CacheSize datasize.ByteSize
}

// DefaultInsertOptions matches insertpipe's own defaults plus a 64MiB
// LRU cache for a per-worker lookaside cache.
func DefaultInsertOptions() InsertOptions {
	return InsertOptions{
		Workers:       0,
		QueueCapacity: insertpipe.QueueCapacity,
		CacheSize:     64 * datasize.MB,
	}
}

// BindFlags registers the import command's flags onto fs.
func (o *InsertOptions) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Source, "source", o.Source, "path to the source address file to import")
	fs.StringVar(&o.Store, "store", o.Store, "path to the SQLite store")
	fs.IntVar(&o.Workers, "workers", o.Workers, "number of hashing workers (0 = auto)")
	fs.IntVar(&o.QueueCapacity, "queue-capacity", o.QueueCapacity, "bounded queue capacity between producer and workers")
	fs.Var(&byteSizeValue{&o.CacheSize}, "cache-size", "size of the per-worker lookaside cache (e.g. 64MiB)")
}

// ToPipelineOptions projects the CLI-facing options onto insertpipe.Options.
func (o InsertOptions) ToPipelineOptions() insertpipe.Options {
	return insertpipe.Options{
		Workers:       o.Workers,
		QueueCapacity: o.QueueCapacity,
		CacheBytes:    int(o.CacheSize),
	}
}

// ResolveOptions binds the `geodedupe duplicates` / `apply-clean` flags.
type ResolveOptions struct {
	Store            string
	Workers          int
	QueueCapacity    int
	MaxPackSize      int
	ApplyDeletions   bool
	SkipCleanup      bool
	VacuumAfterApply bool
}

// DefaultResolveOptions matches resolvepipe's own defaults.
func DefaultResolveOptions() ResolveOptions {
	return ResolveOptions{
		QueueCapacity: resolvepipe.QueueCapacity,
		MaxPackSize:   resolvepipe.MaxPackSize,
	}
}

// BindFlags registers the collision-resolution flags onto fs.
func (o *ResolveOptions) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Store, "store", o.Store, "path to the SQLite store")
	fs.IntVar(&o.Workers, "workers", o.Workers, "number of pack-resolution workers (0 = auto)")
	fs.IntVar(&o.QueueCapacity, "queue-capacity", o.QueueCapacity, "bounded queue capacity for packs and deletion ids")
	fs.IntVar(&o.MaxPackSize, "max-pack-size", o.MaxPackSize, "skip hash packs larger than this many addresses")
	fs.BoolVar(&o.ApplyDeletions, "apply", o.ApplyDeletions, "apply marked deletions and drop auxiliary tables")
	fs.BoolVar(&o.VacuumAfterApply, "vacuum", o.VacuumAfterApply, "run VACUUM after applying deletions")
}

// ToPipelineOptions projects the CLI-facing options onto resolvepipe.Options.
func (o ResolveOptions) ToPipelineOptions() resolvepipe.Options {
	return resolvepipe.Options{
		Workers:          o.Workers,
		QueueCapacity:    o.QueueCapacity,
		MaxPackSize:      o.MaxPackSize,
		ApplyDeletions:   o.ApplyDeletions,
		SkipCleanup:      o.SkipCleanup,
		VacuumAfterApply: o.VacuumAfterApply,
	}
}

// DumpOptions binds the `geodedupe dump` flags.
type DumpOptions struct {
	Store string
	Out   string
}

// BindFlags registers the dump command's flags onto fs.
func (o *DumpOptions) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Store, "store", o.Store, "path to the SQLite store")
	fs.StringVar(&o.Out, "out", o.Out, "path to write the gzip-compressed CSV dump")
}

// byteSizeValue adapts datasize.ByteSize to pflag.Value so --cache-size
// accepts human sizes like "64MiB" the way datasize.ByteSize.UnmarshalText does.
type byteSizeValue struct {
	v *datasize.ByteSize
}

func (b *byteSizeValue) String() string {
	if b.v == nil {
		return "0B"
	}
	return b.v.HumanReadable()
}

func (b *byteSizeValue) Set(s string) error {
	return b.v.UnmarshalText([]byte(s))
}

func (b *byteSizeValue) Type() string { return "byteSize" }
