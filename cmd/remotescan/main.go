package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/remotescan/pkg/config"
	"github.com/ajitpratap0/remotescan/pkg/connector/core"
	"github.com/ajitpratap0/remotescan/pkg/connector/registry"
	jsonpool "github.com/ajitpratap0/remotescan/pkg/json"
	"github.com/ajitpratap0/remotescan/pkg/models"

	// Register the bundled connectors
	_ "github.com/ajitpratap0/remotescan/pkg/connector/sources/airtable"
	_ "github.com/ajitpratap0/remotescan/pkg/connector/sources/clickhouse"
	_ "github.com/ajitpratap0/remotescan/pkg/connector/sources/firebase"
	_ "github.com/ajitpratap0/remotescan/pkg/connector/sources/stripe"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(viper.New()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:   "remotescan",
		Short: "Query remote APIs and databases as tables",
		Long: `remotescan runs scans and single-row modifications against remote
services (Stripe, Airtable, Firebase, ClickHouse) described by a YAML table
definition, printing rows as JSON lines.`,
		SilenceUsage: true,
	}
	bindGlobalFlags(root, v)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "remotescan v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available connectors",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			for _, m := range registry.List() {
				fmt.Fprintf(out, "%s v%s  %s\n", m.Name, m.Version, m.Description)
				fmt.Fprintf(out, "    capabilities: %v\n", m.Capabilities)
				fmt.Fprintf(out, "    server options: %v\n", m.ServerOptions)
				fmt.Fprintf(out, "    table options: %v\n", m.TableOptions)
			}
		},
	})

	root.AddCommand(newScanCmd(v), newModifyCmd(v, "insert"), newModifyCmd(v, "update"),
		newModifyCmd(v, "delete"), newStatsCmd(v))
	return root
}

func newScanCmd(v *viper.Viper) *cobra.Command {
	var (
		tableFile string
		asArray   bool
		pretty    bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a remote table and print its rows",
		Long: `Scan a remote table. The table definition names the connector, its server
and table options, the columns to read and optional quals, sorts and limit.

Example:
  remotescan scan --table customers.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := loadTable(tableFile)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer a.Close()

			enc := jsonpool.NewStreamingEncoder(cmd.OutOrStdout(), asArray)
			if pretty {
				enc.SetPretty(true, "  ")
			}
			if err := a.scan(cmd.Context(), def, enc); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVarP(&tableFile, "table", "t", "", "Path to the YAML table definition (required)")
	cmd.Flags().BoolVar(&asArray, "array", false, "Print rows as one JSON array instead of JSON lines")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent the printed rows")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func newModifyCmd(v *viper.Viper, op string) *cobra.Command {
	var tableFile, rowJSON, rowid string
	cmd := &cobra.Command{
		Use:   op,
		Short: op + " a single remote row",
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := loadTable(tableFile)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.modify(cmd.Context(), def, op, rowid, rowJSON)
		},
	}
	cmd.Flags().StringVarP(&tableFile, "table", "t", "", "Path to the YAML table definition (required)")
	_ = cmd.MarkFlagRequired("table")
	if op != "delete" {
		cmd.Flags().StringVar(&rowJSON, "row", "", "Row as a JSON object keyed by column name (required)")
		_ = cmd.MarkFlagRequired("row")
	}
	if op != "insert" {
		cmd.Flags().StringVar(&rowid, "rowid", "", "Value of the table's rowid_column (required)")
		_ = cmd.MarkFlagRequired("rowid")
	}
	return cmd
}

func newStatsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print per-connector stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer a.Close()
			records, err := a.store.List(cmd.Context())
			if err != nil {
				return err
			}
			enc := jsonpool.NewStreamingEncoder(cmd.OutOrStdout(), false)
			for _, rec := range records {
				if err := enc.Encode(rec); err != nil {
					return err
				}
			}
			return enc.Close()
		},
	}
}

func loadTable(path string) (*config.TableDefinition, error) {
	var def config.TableDefinition
	if err := config.Load(path, &def); err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid table definition %s: %w", path, err)
	}
	return &def, nil
}

func (a *app) open(ctx context.Context, def *config.TableDefinition) (core.Wrapper, error) {
	w, err := registry.Create(def.Connector, a.deps)
	if err != nil {
		return nil, err
	}
	if err := w.Open(ctx, def.ServerOptions); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func (a *app) scan(ctx context.Context, def *config.TableDefinition, enc *jsonpool.StreamingEncoder) error {
	quals, err := def.BuildQuals()
	if err != nil {
		return err
	}
	w, err := a.open(ctx, def)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	err = w.BeginScan(ctx, &core.ScanRequest{
		Quals:   quals,
		Columns: def.Columns,
		Sorts:   def.BuildSorts(),
		Limit:   def.BuildLimit(),
		Options: def.TableOptions,
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.EndScan() }()

	for {
		row, ok := w.IterScan()
		if !ok {
			return nil
		}
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
}

func (a *app) modify(ctx context.Context, def *config.TableDefinition, op, rowid, rowJSON string) error {
	w, err := a.open(ctx, def)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	m, ok := w.(core.Modifier)
	if !ok {
		return fmt.Errorf("connector %s does not support %s", w.Name(), op)
	}
	if err := m.BeginModify(ctx, def.TableOptions); err != nil {
		return err
	}

	var row *models.Row
	if rowJSON != "" {
		if row, err = rowFromJSON(def, rowJSON); err != nil {
			return err
		}
	}
	var id *models.Cell
	if rowid != "" {
		col := def.TableOptions.Get("rowid_column")
		if id, err = models.ParseCell(def.ColumnType(col), rowid); err != nil {
			return fmt.Errorf("invalid rowid: %w", err)
		}
	}

	switch op {
	case "insert":
		err = m.Insert(ctx, row)
	case "update":
		err = m.Update(ctx, id, row)
	case "delete":
		err = m.Delete(ctx, id)
	}
	if err != nil {
		return err
	}
	return m.EndModify()
}
