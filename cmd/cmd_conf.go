package cmd

import (
	"fmt"

	"github.com/querygate/querygate/serv"
	"github.com/spf13/cobra"
)

// confCmd creates the conf command
func confCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "conf",
		Short: "Config file commands",
	}

	c.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the config file for the current environment",
		Run:   cmdConfCheck,
	})

	c.AddCommand(&cobra.Command{
		Use:   "jsonschema",
		Short: "Print the JSON Schema for config files",
		Long: `Print a JSON Schema describing every config key, suitable for editor
validation of the YAML config files.`,
		Run: cmdConfJSONSchema,
	})

	return c
}

// cmdConfCheck is the handler for the conf check subcommand
func cmdConfCheck(cmd *cobra.Command, args []string) {
	setup(cpath)
	log.Infof("Config OK: %s (environment '%s')",
		conf.AbsolutePath(serv.GetConfigName()+".yml"), serv.GetConfigName())
}

// cmdConfJSONSchema is the handler for the conf jsonschema subcommand
func cmdConfJSONSchema(cmd *cobra.Command, args []string) {
	b, err := serv.ConfigSchema()
	if err != nil {
		log.Fatalf("Failed to generate config schema: %s", err)
	}
	fmt.Println(string(b))
}
