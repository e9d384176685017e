package main

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/paveg/lakescan"
	"github.com/paveg/lakescan/internal/aggregate"
	lsio "github.com/paveg/lakescan/internal/io"
	"github.com/paveg/lakescan/internal/table"
	"github.com/spf13/cobra"
)

type queryFlags struct {
	filter     string
	columns    []string
	groupBy    []string
	aggs       []string
	limit      int
	explain    bool
	output     string
	outFile    string
	skipErrors bool
	stats      bool
}

func (a *app) queryCmd() *cobra.Command {
	var f queryFlags
	cmd := &cobra.Command{
		Use:   "query ROOT",
		Short: "Filter, project or aggregate a dataset",
		Example: `  lakescan query data/ --filter "val > 5" --select lat,val
  lakescan query data/ --group-by lat --agg "mean(val)" --agg "count(val) as n"
  lakescan query data/ --limit 10 --output jsonl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuery(cmd.Context(), args[0], f)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&f.filter, "filter", "f", "", `filter such as "val > 5, name in ('a', 'b')"`)
	flags.StringSliceVarP(&f.columns, "select", "s", nil, "columns to return")
	flags.StringSliceVarP(&f.groupBy, "group-by", "g", nil, "grouping columns")
	flags.StringArrayVarP(&f.aggs, "agg", "a", nil, `aggregation such as "mean(val)" or "count(val) as n"; repeatable`)
	flags.IntVarP(&f.limit, "limit", "n", -1, "return at most this many rows, reading only the files needed")
	flags.BoolVar(&f.explain, "explain", false, "print the plan instead of running it")
	flags.StringVarP(&f.output, "output", "o", "table", "output format: table, csv, json, jsonl or parquet")
	flags.StringVar(&f.outFile, "out", "", "write output to this file instead of stdout")
	flags.BoolVar(&f.skipErrors, "skip-errors", false, "skip unreadable files instead of failing")
	flags.BoolVar(&f.stats, "stats", false, "print query statistics to stderr")
	return cmd
}

func (a *app) runQuery(ctx context.Context, root string, f queryFlags) error {
	if f.skipErrors {
		a.cfg.OnError = "skip"
	}
	ds, err := a.open(ctx, root)
	if err != nil {
		return err
	}
	q, err := buildQuery(ds, f)
	if err != nil {
		return err
	}
	if f.explain {
		plan, err := q.Explain()
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(a.stdout, plan)
		return err
	}

	res, err := execute(ctx, q, f.limit)
	if err != nil {
		return err
	}
	defer res.Release()
	if len(res.Failures) > 0 {
		printFailures(a.stderr, res.Failures)
	}
	if f.stats {
		printStats(a.stderr, res.Stats)
	}
	return a.write(res.Table, f)
}

func buildQuery(ds *lakescan.Dataset, f queryFlags) (*lakescan.Query, error) {
	q := ds.Query()
	if f.filter != "" {
		q = q.FilterText(f.filter)
	}
	if len(f.columns) > 0 {
		q = q.Select(f.columns...)
	}
	if len(f.groupBy) > 0 {
		q = q.GroupBy(f.groupBy...)
	}
	for _, s := range f.aggs {
		agg, err := parseAgg(s)
		if err != nil {
			return nil, err
		}
		q = q.Agg(agg)
	}
	return q, nil
}

// execute runs q fully, or previews it when a limit is set. The returned
// result is owned by the caller.
func execute(ctx context.Context, q *lakescan.Query, limit int) (*lakescan.Result, error) {
	if limit < 0 {
		return q.Run(ctx)
	}
	h, err := q.Build()
	if err != nil {
		return nil, err
	}
	defer h.Close()
	return h.Preview(ctx, limit)
}

var aggPattern = regexp.MustCompile(`^\s*(\w+)\s*\(\s*([^)\s]+)\s*\)\s*(?:(?i:as)\s+(\w+))?\s*$`)

// parseAgg reads "func(column)" with an optional "as alias".
func parseAgg(s string) (lakescan.Aggregation, error) {
	m := aggPattern.FindStringSubmatch(s)
	if m == nil {
		return lakescan.Aggregation{}, fmt.Errorf("invalid aggregation %q: want func(column) [as alias]", s)
	}
	fn, err := aggregate.ParseFunc(m[1])
	if err != nil {
		return lakescan.Aggregation{}, err
	}
	return lakescan.Aggregation{Column: m[2], Func: fn, Alias: m[3]}, nil
}

func (a *app) write(t *table.Table, f queryFlags) (err error) {
	out := a.stdout
	if f.outFile != "" {
		file, createErr := a.outputFS().Create(f.outFile)
		if createErr != nil {
			return createErr
		}
		defer func() {
			if cerr := file.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing %s: %w", f.outFile, cerr)
			}
		}()
		out = file
	}
	if strings.EqualFold(f.output, "table") {
		renderTable(out, t)
		return nil
	}
	format, err := lsio.ParseFormat(f.output)
	if err != nil {
		return err
	}
	w, err := lsio.NewWriter(format, out)
	if err != nil {
		return err
	}
	return w.Write(t)
}
