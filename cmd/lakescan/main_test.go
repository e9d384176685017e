package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/paveg/lakescan/internal/aggregate"
	"github.com/paveg/lakescan/internal/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, fs afero.Fs, args ...string) (string, error) {
	t.Helper()
	stdout, _, err := runApp(t, &app{fs: fs}, args...)
	return stdout, err
}

func runApp(t *testing.T, a *app, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	a.stdout, a.stderr = &out, &errOut
	cmd := a.rootCmd()
	cmd.SetArgs(append(args, "--log-level", "error"))
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

// closeFailFs creates files whose Close reports a failed flush.
type closeFailFs struct{ afero.Fs }

func (fs closeFailFs) Create(name string) (afero.File, error) {
	f, err := fs.Fs.Create(name)
	if err != nil {
		return nil, err
	}
	return closeFailFile{f}, nil
}

type closeFailFile struct{ afero.File }

func (f closeFailFile) Close() error {
	_ = f.File.Close()
	return errors.New("no space left on device")
}

func scenarioFS(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	testutil.ScenarioDataset(t, fs, "/d")
	return fs
}

func TestParseAgg(t *testing.T) {
	tests := []struct {
		in      string
		want    aggregate.Agg
		wantErr bool
	}{
		{in: "mean(val)", want: aggregate.Agg{Column: "val", Func: aggregate.Mean}},
		{in: " Count( val ) AS n", want: aggregate.Agg{Column: "val", Func: aggregate.Count, Alias: "n"}},
		{in: "avg(x)", want: aggregate.Agg{Column: "x", Func: aggregate.Mean}},
		{in: "max(x) as", wantErr: true},
		{in: "median(x)", wantErr: true},
		{in: "sum", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAgg(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueryCommand(t *testing.T) {
	fs := scenarioFS(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "filter",
			args: []string{"query", "/d", "--filter", "val > 5", "--select", "val", "-o", "csv"},
			want: "val\n10\n",
		},
		{
			name: "aggregate",
			args: []string{"query", "/d", "--agg", "sum(val)", "--agg", "count(lat) as n", "-o", "csv"},
			want: "sum_val,n\n13,4\n",
		},
		{
			name: "limit",
			args: []string{"query", "/d", "--select", "lat,val", "--limit", "1", "-o", "jsonl"},
			want: "{\"lat\":10,\"val\":1}\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCLI(t, fs, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestQueryCommandTable(t *testing.T) {
	out, err := runCLI(t, scenarioFS(t), "query", "/d", "--group-by", "lat", "--agg", "max(lon)")
	require.NoError(t, err)
	assert.Contains(t, out, "max_lon")
	assert.Contains(t, out, "null")
	assert.Contains(t, out, "(5 rows)")
}

func TestQueryCommandExplain(t *testing.T) {
	out, err := runCLI(t, scenarioFS(t), "query", "/d", "--filter", "val > 5", "--explain")
	require.NoError(t, err)
	assert.Contains(t, out, "files: 3 total, 2 pruned, 1 scanned")
}

func TestQueryCommandErrors(t *testing.T) {
	fs := scenarioFS(t)

	_, err := runCLI(t, fs, "query", "/d", "--agg", "bogus")
	assert.Error(t, err)
	_, err = runCLI(t, fs, "query", "/d", "--filter", "val >")
	assert.Error(t, err)
	_, err = runCLI(t, fs, "query", "/d", "-o", "xml")
	assert.Error(t, err)
	_, err = runCLI(t, fs, "query")
	assert.Error(t, err)
}

func TestQueryCommandOutFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	out, err := runCLI(t, scenarioFS(t), "query", "/d", "--select", "val", "--filter", "val > 5", "-o", "csv", "--out", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := afero.ReadFile(afero.NewOsFs(), path)
	require.NoError(t, err)
	assert.Equal(t, "val\n10\n", string(data))
}

func TestQueryCommandOutFileCloseError(t *testing.T) {
	a := &app{fs: scenarioFS(t), outFS: closeFailFs{afero.NewMemMapFs()}}
	_, _, err := runApp(t, a, "query", "/d", "-o", "csv", "--out", "/out/result.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closing /out/result.csv")
	assert.Contains(t, err.Error(), "no space left on device")
}

func TestQueryCommandReportsListingFailures(t *testing.T) {
	fs := scenarioFS(t)
	testutil.WriteCorrupt(t, fs, "/d/bad.parquet")

	_, err := runCLI(t, fs, "query", "/d")
	require.Error(t, err, "listing aborts without --skip-errors")

	stdout, stderr, err := runApp(t, &app{fs: fs}, "query", "/d", "-o", "csv", "--skip-errors")
	require.NoError(t, err)
	assert.Contains(t, stdout, "lat,lon,val")
	assert.Contains(t, stderr, "skipped 1 unreadable file(s)")
	assert.Contains(t, stderr, "bad.parquet")
}

func TestSchemaCommand(t *testing.T) {
	fs := scenarioFS(t)

	out, err := runCLI(t, fs, "schema", "/d", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "name: lat")
	assert.Contains(t, out, "type: float64")
	assert.Contains(t, out, "nullable: true")

	out, err = runCLI(t, fs, "schema", "/d")
	require.NoError(t, err)
	assert.Contains(t, out, "float64")
}

func TestFilesCommand(t *testing.T) {
	out, err := runCLI(t, scenarioFS(t), "files", "/d")
	require.NoError(t, err)
	for _, name := range []string{"a.parquet", "b.parquet", "c.parquet"} {
		assert.Contains(t, out, name)
	}
}

func TestMetricsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.prom")
	_, err := runCLI(t, scenarioFS(t), "query", "/d", "-o", "csv", "--metrics-file", path)
	require.NoError(t, err)

	data, err := afero.ReadFile(afero.NewOsFs(), path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "lakescan_file_scans_total")
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, afero.NewMemMapFs(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "lakescan ")
}
