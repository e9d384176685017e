// Package catalog enumerates the data files under a dataset root and keeps
// what their Parquet footers say about them: row counts, schema and
// per-column statistics. No data page is read while listing.
package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	lserrors "github.com/paveg/lakescan/internal/errors"
	"github.com/paveg/lakescan/internal/parallel"
	"github.com/paveg/lakescan/internal/schema"
	"github.com/spf13/afero"
)

// DefaultExtensions are the data file suffixes listed when none are given.
var DefaultExtensions = []string{".parquet", ".parq"}

// FileDescriptor describes one data file.
type FileDescriptor struct {
	Path         string
	Size         int64
	NumRows      int64
	NumRowGroups int
	Schema       *schema.Schema
	Stats        map[string]ColumnStats
	Unsupported  []string // columns present with a type the engine does not model
}

// HasColumn reports whether the file stores column name in any type.
func (fd FileDescriptor) HasColumn(name string) bool {
	if fd.Schema != nil && fd.Schema.Has(name) {
		return true
	}
	for _, u := range fd.Unsupported {
		if u == name {
			return true
		}
	}
	return false
}

// ColumnStats returns the statistics of column name. ok is false when the
// file lacks the column.
func (fd FileDescriptor) ColumnStats(name string) (ColumnStats, bool) {
	st, ok := fd.Stats[name]
	return st, ok
}

// Options controls listing.
type Options struct {
	Extensions []string
	SkipErrors bool // collect unreadable footers instead of failing
	Workers    int  // concurrent footer reads, 0 means NumCPU
	Logger     *slog.Logger
}

// Catalog is an immutable snapshot of a dataset root.
type Catalog struct {
	root     string
	files    []FileDescriptor
	failures []lserrors.FileFailure
}

func (c *Catalog) Root() string { return c.root }
func (c *Catalog) Len() int     { return len(c.files) }

// Files returns the descriptors sorted by path.
func (c *Catalog) Files() []FileDescriptor {
	return append([]FileDescriptor(nil), c.files...)
}

// Failures lists files whose footers could not be read when listing with
// SkipErrors.
func (c *Catalog) Failures() []lserrors.FileFailure {
	return append([]lserrors.FileFailure(nil), c.failures...)
}

// Schemas returns each file's schema in file order.
func (c *Catalog) Schemas() []*schema.Schema {
	out := make([]*schema.Schema, len(c.files))
	for i, f := range c.files {
		out[i] = f.Schema
	}
	return out
}

// TotalRows sums the row counts of all files.
func (c *Catalog) TotalRows() int64 {
	var n int64
	for _, f := range c.files {
		n += f.NumRows
	}
	return n
}

// New builds a catalog from descriptors that were obtained elsewhere.
func New(root string, files []FileDescriptor) *Catalog {
	files = append([]FileDescriptor(nil), files...)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return &Catalog{root: root, files: files}
}

// List walks root and reads the footer of every data file.
func List(ctx context.Context, fsys afero.Fs, root string, opts Options) (*Catalog, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	paths, err := walk(fsys, root, exts)
	if err != nil {
		return nil, err
	}
	logger.Debug("listed data files", "root", root, "files", len(paths))

	pool := parallel.NewWorkerPool(opts.Workers)
	defer pool.Close()

	read := func(_ context.Context, _ int, p string) (FileDescriptor, error) {
		return ReadDescriptor(fsys, p)
	}

	c := &Catalog{root: root}
	if !opts.SkipErrors {
		files, err := parallel.Run(ctx, pool, paths, read)
		if err != nil {
			return nil, err
		}
		c.files = files
		return c, nil
	}

	files, errs, err := parallel.RunAll(ctx, pool, paths, read)
	if err != nil {
		return nil, err
	}
	for i, ferr := range errs {
		if ferr != nil {
			logger.Warn("skipping unreadable file", "path", paths[i], "error", ferr)
			c.failures = append(c.failures, lserrors.FileFailure{Path: paths[i], Err: ferr})
			continue
		}
		c.files = append(c.files, files[i])
	}
	return c, nil
}

// walk returns data file paths under root sorted lexically. Entries whose
// name starts with "." or "_" are skipped, directories included.
func walk(fsys afero.Fs, root string, exts []string) ([]string, error) {
	info, err := fsys.Stat(root)
	if err != nil {
		return nil, lserrors.NewReadError(root, err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var paths []string
	err = afero.Walk(fsys, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		name := info.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.IsDir() && hasExtension(name, exts) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, lserrors.NewReadError(root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func hasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// ReadDescriptor reads one file's footer.
func ReadDescriptor(fsys afero.Fs, path string) (FileDescriptor, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return FileDescriptor{}, lserrors.NewReadError(path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return FileDescriptor{}, lserrors.NewReadError(path, err)
	}
	rdr, err := file.NewParquetReader(f)
	if err != nil {
		f.Close()
		return FileDescriptor{}, lserrors.NewReadError(path, err)
	}
	defer rdr.Close()

	md := rdr.MetaData()
	as, err := pqarrow.FromParquet(md.Schema, &pqarrow.ArrowReadProperties{}, md.KeyValueMetadata())
	if err != nil {
		return FileDescriptor{}, lserrors.NewReadError(path, fmt.Errorf("converting parquet schema: %w", err))
	}
	sch, unsupported, err := schema.FromArrow(as)
	if err != nil {
		return FileDescriptor{}, lserrors.NewReadError(path, err)
	}

	fd := FileDescriptor{
		Path:         path,
		Size:         info.Size(),
		NumRows:      rdr.NumRows(),
		NumRowGroups: rdr.NumRowGroups(),
		Schema:       sch,
		Stats:        make(map[string]ColumnStats, sch.Len()),
		Unsupported:  unsupported,
	}

	for _, field := range sch.Fields() {
		leaf := md.Schema.ColumnIndexByName(field.Name)
		if leaf < 0 {
			continue
		}
		af, _ := as.FieldsByName(field.Name)
		acc := newStatsAccumulator(af[0].Type)
		for rg := 0; rg < md.NumRowGroups(); rg++ {
			rgm := md.RowGroup(rg)
			cc, err := rgm.ColumnChunk(leaf)
			if err != nil {
				return FileDescriptor{}, lserrors.NewReadError(path, err)
			}
			st, err := cc.Statistics()
			if err != nil {
				return FileDescriptor{}, lserrors.NewReadError(path, err)
			}
			acc.add(st, rgm.NumRows())
		}
		fd.Stats[field.Name] = acc.result()
	}
	return fd, nil
}
