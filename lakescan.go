// Package lakescan scans and aggregates partitioned Parquet datasets.
//
// A Dataset is a snapshot of a directory of Parquet files with one merged
// schema. Queries filter, project and aggregate it; filters prune whole
// files from their footer statistics before any data is read.
//
//	ds, err := lakescan.Open(ctx, "/data/profiles")
//	res, err := ds.Query().
//		Where("val", ">", 5).
//		GroupBy("lat").
//		Agg(lakescan.Mean("val")).
//		Run(ctx)
package lakescan

import (
	"context"
	"log/slog"
	"sync"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/lakescan/internal/catalog"
	"github.com/paveg/lakescan/internal/config"
	"github.com/paveg/lakescan/internal/engine"
	lserrors "github.com/paveg/lakescan/internal/errors"
	"github.com/paveg/lakescan/internal/monitoring"
	"github.com/paveg/lakescan/internal/schema"
	"github.com/spf13/afero"
)

// Re-exported types. They are defined in internal packages and shared with
// the CLI.
type (
	Schema         = schema.Schema
	Field          = schema.Field
	FileDescriptor = catalog.FileDescriptor
	Result         = engine.Result
	Stats          = engine.Stats
	Handle         = engine.Handle
	FileFailure    = lserrors.FileFailure
	PartialFailure = lserrors.PartialFailure
)

// Sentinels for errors.Is.
var (
	ErrSchemaConflict = lserrors.ErrSchemaConflict
	ErrSchemaMismatch = lserrors.ErrSchemaMismatch
	ErrRead           = lserrors.ErrRead
	ErrPartialFailure = lserrors.ErrPartialFailure
	ErrInvalidQuery   = lserrors.ErrInvalidQuery
	ErrHandleClosed   = lserrors.ErrHandleClosed
)

type options struct {
	schema  *schema.Schema
	fs      afero.Fs
	cfg     *config.Config
	logger  *slog.Logger
	mem     memory.Allocator
	metrics *monitoring.Collector
}

// Option configures Open.
type Option func(*options)

// WithSchema fixes the dataset schema instead of inferring it.
func WithSchema(s *Schema) Option { return func(o *options) { o.schema = s } }

// WithFS reads the dataset through fs instead of the OS filesystem.
func WithFS(fs afero.Fs) Option { return func(o *options) { o.fs = fs } }

// WithConfig replaces the global configuration.
func WithConfig(cfg config.Config) Option { return func(o *options) { o.cfg = &cfg } }

func WithLogger(l *slog.Logger) Option           { return func(o *options) { o.logger = l } }
func WithAllocator(mem memory.Allocator) Option  { return func(o *options) { o.mem = mem } }
func WithMetrics(c *monitoring.Collector) Option { return func(o *options) { o.metrics = c } }

// Dataset is an opened dataset root.
type Dataset struct {
	root   string
	opts   options
	cfg    config.Config
	engine *engine.Engine

	mu     sync.RWMutex
	cat    *catalog.Catalog
	schema *schema.Schema
}

// Open lists root, reads every file footer and resolves the schema. No
// column data is read.
func Open(ctx context.Context, root string, opts ...Option) (*Dataset, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := config.GetGlobalConfig()
	if o.cfg != nil {
		cfg = o.cfg.WithDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, lserrors.NewInvalidQueryError("Open", err.Error())
	}
	if o.fs == nil {
		o.fs = afero.NewOsFs()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.mem == nil {
		o.mem = memory.DefaultAllocator
	}
	if o.metrics == nil && cfg.MetricsCollection {
		if !monitoring.IsGlobalMonitoringEnabled() {
			monitoring.EnableGlobalMonitoring()
		}
		o.metrics = monitoring.GetGlobalCollector()
	}

	eng := engine.New(cfg.Workers(), o.mem, o.logger, o.metrics)
	eng.PreviewBatchSize = cfg.PreviewBatchSize
	d := &Dataset{root: root, opts: o, cfg: cfg, engine: eng}
	if err := d.Refresh(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Refresh re-lists the root and re-resolves the schema. Queries built
// before the refresh keep their snapshot.
func (d *Dataset) Refresh(ctx context.Context) error {
	metrics := monitoring.Resolve(d.opts.metrics)

	var cat *catalog.Catalog
	err := metrics.RecordOperation("list", func() (err error) {
		cat, err = catalog.List(ctx, d.opts.fs, d.root, catalog.Options{
			Extensions: d.cfg.FileExtensions,
			SkipErrors: d.cfg.OnError == "skip",
			Workers:    d.cfg.Workers(),
			Logger:     d.opts.logger,
		})
		return err
	})
	if err != nil {
		return err
	}

	s := d.opts.schema
	if s == nil {
		reg := schema.NewRegistry(d.opts.fs, d.opts.logger)
		reg.Sidecar = d.cfg.SidecarSchema
		err = metrics.RecordOperation("resolve_schema", func() (err error) {
			s, err = reg.Resolve(d.root, cat.Schemas())
			return err
		})
		if err != nil {
			return err
		}
	}
	d.opts.logger.Debug("dataset opened", "root", d.root, "files", cat.Len(), "columns", s.Len())

	d.mu.Lock()
	d.cat, d.schema = cat, s
	d.mu.Unlock()
	return nil
}

func (d *Dataset) snapshot() (*catalog.Catalog, *schema.Schema) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cat, d.schema
}

// Root returns the dataset directory.
func (d *Dataset) Root() string { return d.root }

// Schema returns the merged dataset schema.
func (d *Dataset) Schema() *Schema {
	_, s := d.snapshot()
	return s
}

// Files returns the data files in path order.
func (d *Dataset) Files() []FileDescriptor {
	cat, _ := d.snapshot()
	return cat.Files()
}

// Failures lists files skipped while listing because their footer could
// not be read. It is empty unless the configuration skips errors.
func (d *Dataset) Failures() []FileFailure {
	cat, _ := d.snapshot()
	return cat.Failures()
}
