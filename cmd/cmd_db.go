package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/querygate/querygate/core"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// dbCmd creates the db command
func dbCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "db",
		Short: "Database connectivity commands",
	}

	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Check connectivity to every database in the schema document",
		Run:   cmdDBPing,
	}
	c.AddCommand(pingCmd)

	seedCmd := &cobra.Command{
		Use:   "seed TABLE",
		Short: "Insert generated rows into a table",
		Long: `Generate fake rows for a table declared in the schema document and insert
them through the engine. Values are derived from the column names, so a
column named email gets email addresses and one named created_at gets
timestamps. Columns named id are left to the database.`,
		Args: cobra.ExactArgs(1),
		Run:  cmdDBSeed,
	}
	seedCmd.Flags().Int("rows", 25, "Number of rows to insert")
	c.AddCommand(seedCmd)

	return c
}

// newEngine builds an engine rooted at the config directory
func newEngine() *core.Engine {
	setup(cpath)

	fs := afero.NewBasePathFs(afero.NewOsFs(), conf.ConfigPath)
	qg, err := core.New(&conf.Core,
		core.OptionSetFS(fs),
		core.OptionSetLogger(zap.NewStdLog(log.Desugar())))
	if err != nil {
		log.Fatalf("Failed to start engine: %s", err)
	}
	return qg
}

// cmdDBPing is the handler for the db ping subcommand
func cmdDBPing(cmd *cobra.Command, args []string) {
	qg := newEngine()
	defer qg.Close() //nolint:errcheck

	report := qg.Health(context.Background())

	names := make([]string, 0, len(report.Databases))
	for name := range report.Databases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		status := report.Databases[name]
		if status == "connected" {
			log.Infof("[%s] %s", name, status)
		} else {
			log.Errorf("[%s] %s", name, status)
		}
	}

	if !report.Healthy {
		log.Fatalf("One or more databases are unreachable")
	}
}

// cmdDBSeed is the handler for the db seed subcommand
func cmdDBSeed(cmd *cobra.Command, args []string) {
	table := args[0]
	rows, _ := cmd.Flags().GetInt("rows")

	qg := newEngine()
	defer qg.Close() //nolint:errcheck

	doc, err := qg.Schema()
	if err != nil {
		log.Fatalf("%s", err)
	}

	var schema struct {
		Databases map[string]struct {
			Type string `json:"type"`
		} `json:"databases"`
		Tables map[string]struct {
			DB      string   `json:"db"`
			Columns []string `json:"columns"`
		} `json:"tables"`
	}
	if err := json.Unmarshal(doc, &schema); err != nil {
		log.Fatalf("%s", err)
	}

	spec, ok := schema.Tables[table]
	if !ok {
		log.Fatalf("Table '%s' is not declared in the schema document", table)
	}

	cols := make([]string, 0, len(spec.Columns))
	for _, c := range spec.Columns {
		if c == "id" {
			continue
		}
		cols = append(cols, c)
	}
	if len(cols) == 0 {
		log.Fatalf("Table '%s' has no seedable columns", table)
	}

	stmt := insertStatement(table, cols, schema.Databases[spec.DB].Type)
	ctx := context.Background()

	for i := 0; i < rows; i++ {
		params := make([]any, len(cols))
		for j, c := range cols {
			params[j] = fakeValue(c)
		}

		if _, err := qg.Execute(ctx, core.RawRequest{
			DB:     spec.DB,
			SQL:    stmt,
			Params: params,
		}); err != nil {
			log.Fatalf("Seed failed after %d rows: %s", i, err)
		}
	}

	log.Infof("Inserted %d rows into '%s' on database '%s'", rows, table, spec.DB)
}

// insertStatement builds an INSERT with the placeholder style the
// database driver expects
func insertStatement(table string, cols []string, dbType string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES (", table, strings.Join(cols, ", "))
	for i := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		switch dbType {
		case "postgres":
			fmt.Fprintf(&sb, "$%d", i+1)
		case "sqlserver":
			fmt.Fprintf(&sb, "@p%d", i+1)
		default:
			sb.WriteString("?")
		}
	}
	sb.WriteString(")")
	return sb.String()
}

// fakeValue derives a fake value from the column name
func fakeValue(col string) any {
	switch {
	case strings.Contains(col, "email"):
		return gofakeit.Email()
	case strings.Contains(col, "full_name") || col == "name" || strings.HasSuffix(col, "_name"):
		return gofakeit.Name()
	case strings.Contains(col, "title"):
		return gofakeit.Sentence(3)
	case strings.Contains(col, "body") || strings.Contains(col, "description") || strings.Contains(col, "content"):
		return gofakeit.Paragraph(1, 3, 12, " ")
	case strings.Contains(col, "url"):
		return gofakeit.URL()
	case strings.Contains(col, "phone"):
		return gofakeit.Phone()
	case strings.Contains(col, "price") || strings.Contains(col, "amount"):
		return gofakeit.Price(1, 1000)
	case strings.HasSuffix(col, "_id"):
		return gofakeit.Number(1, 100)
	case strings.HasSuffix(col, "_at") || strings.Contains(col, "date"):
		return gofakeit.Date()
	case strings.HasPrefix(col, "is_") || col == "published" || col == "active":
		return gofakeit.Bool()
	case strings.Contains(col, "count") || strings.Contains(col, "quantity"):
		return gofakeit.Number(0, 500)
	default:
		return gofakeit.Word()
	}
}
