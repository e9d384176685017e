package schema

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/metadata"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	lserrors "github.com/paveg/lakescan/internal/errors"
	"github.com/spf13/afero"
)

// Sidecar file names written by Spark, Dask and pyarrow next to a dataset.
const (
	CommonMetadataFile = "_common_metadata"
	MetadataFile       = "_metadata"
)

// FromParquet converts a Parquet footer schema. Columns of types the engine
// does not model are left out and returned by name.
func FromParquet(md *metadata.FileMetaData) (*Schema, []string, error) {
	as, err := pqarrow.FromParquet(md.Schema, &pqarrow.ArrowReadProperties{}, md.KeyValueMetadata())
	if err != nil {
		return nil, nil, fmt.Errorf("converting parquet schema: %w", err)
	}
	return FromArrow(as)
}

// ReadFile reads the footer schema of one Parquet file.
func ReadFile(fs afero.Fs, path string) (*Schema, []string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, nil, lserrors.NewReadError(path, err)
	}
	rdr, err := file.NewParquetReader(f)
	if err != nil {
		f.Close()
		return nil, nil, lserrors.NewReadError(path, err)
	}
	defer rdr.Close()

	s, unsupported, err := FromParquet(rdr.MetaData())
	if err != nil {
		return nil, nil, lserrors.NewReadError(path, err)
	}
	return s, unsupported, nil
}

// Registry resolves the canonical schema of a dataset root.
type Registry struct {
	FS      afero.Fs
	Sidecar bool // consult _common_metadata / _metadata before file footers
	Logger  *slog.Logger
}

// NewRegistry returns a registry over fs that honours sidecar files.
func NewRegistry(fs afero.Fs, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{FS: fs, Sidecar: true, Logger: logger}
}

// ReadSidecar returns the schema stored in a sidecar file under root, or
// nil when the root has none.
func (r *Registry) ReadSidecar(root string) (*Schema, error) {
	for _, name := range []string{CommonMetadataFile, MetadataFile} {
		p := filepath.Join(root, name)
		if _, err := r.FS.Stat(p); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, lserrors.NewReadError(p, err)
		}
		s, unsupported, err := ReadFile(r.FS, p)
		if err != nil {
			return nil, err
		}
		r.warnUnsupported(p, unsupported)
		r.Logger.Debug("using sidecar schema", "path", p, "fields", s.Len())
		return s, nil
	}
	return nil, nil
}

// Infer reads the footer schema of every path and merges them. A sidecar
// file, when present and enabled, wins and no footer is read.
func (r *Registry) Infer(ctx context.Context, root string, paths []string) (*Schema, error) {
	if r.Sidecar {
		s, err := r.ReadSidecar(root)
		if err != nil || s != nil {
			return s, err
		}
	}
	schemas := make([]*Schema, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, unsupported, err := ReadFile(r.FS, p)
		if err != nil {
			return nil, err
		}
		r.warnUnsupported(p, unsupported)
		schemas = append(schemas, s)
	}
	return Merge(schemas...)
}

// Resolve is Infer for callers that already hold each file's schema, such
// as a catalog snapshot.
func (r *Registry) Resolve(root string, fileSchemas []*Schema) (*Schema, error) {
	if r.Sidecar {
		s, err := r.ReadSidecar(root)
		if err != nil || s != nil {
			return s, err
		}
	}
	return Merge(fileSchemas...)
}

func (r *Registry) warnUnsupported(path string, names []string) {
	if len(names) > 0 {
		r.Logger.Warn("ignoring columns of unsupported type", "path", path, "columns", names)
	}
}
