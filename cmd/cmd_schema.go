package cmd

import (
	"os"

	"github.com/querygate/querygate/core"
	"github.com/spf13/cobra"
)

// schemaCmd creates the schema command
func schemaCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "schema",
		Short: "Schema document commands",
	}

	checkCmd := &cobra.Command{
		Use:   "check [SCHEMA-FILE]",
		Short: "Validate a schema document",
		Long: `Parse the schema document and verify that every table names a declared
database, relations point at declared tables and columns, and database
types are supported. Without an argument the document named by the
current config is checked.`,
		Args: cobra.MaximumNArgs(1),
		Run:  cmdSchemaCheck,
	}
	c.AddCommand(checkCmd)

	return c
}

// cmdSchemaCheck is the handler for the schema check subcommand
func cmdSchemaCheck(cmd *cobra.Command, args []string) {
	var schemaPath string

	if len(args) > 0 {
		schemaPath = args[0]
	} else {
		setup(cpath)
		schemaPath = conf.AbsolutePath(conf.SchemaFile)
	}

	doc, err := os.ReadFile(schemaPath)
	if err != nil {
		log.Fatalf("Failed to read schema document: %s", err)
	}

	if err := core.ValidateSchema(doc); err != nil {
		log.Fatalf("Schema check failed: %s", err)
	}

	log.Infof("Schema document OK: %s", schemaPath)
}
