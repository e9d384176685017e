package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func (a *app) filesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "files ROOT",
		Short: "List data files with their row counts and column statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tw := newTable(a.stdout, "path", "rows", "row groups", "bytes", "columns")
			for _, fd := range ds.Files() {
				tw.Append([]string{
					fd.Path,
					strconv.FormatInt(fd.NumRows, 10),
					strconv.Itoa(fd.NumRowGroups),
					strconv.FormatInt(fd.Size, 10),
					strings.Join(fd.Schema.Names(), ", "),
				})
			}
			tw.Render()
			for _, f := range ds.Failures() {
				a.logger.Warn("unreadable file", "path", f.Path, "error", f.Err)
			}
			return nil
		},
	}
}

func (a *app) schemaCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "schema ROOT",
		Short: "Print the merged dataset schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := a.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fields := ds.Schema().Fields()
			switch format {
			case "table":
				tw := newTable(a.stdout, "column", "type", "nullable")
				for _, f := range fields {
					tw.Append([]string{f.Name, f.Type.String(), strconv.FormatBool(f.Nullable)})
				}
				tw.Render()
				return nil
			case "yaml":
				enc := yaml.NewEncoder(a.stdout)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(fields)
			default:
				return fmt.Errorf("unsupported schema format: %s", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "output format: table or yaml")
	return cmd
}
