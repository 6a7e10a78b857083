package cmd

import (
	"fmt"
	"os"

	"github.com/querygate/querygate/serv"
	"github.com/spf13/cobra"
)

// ANSI color codes
const (
	colorCyan    = "\033[36m"
	colorMagenta = "\033[35m"
	colorReset   = "\033[0m"
)

// printBanner prints the ASCII art banner on startup
func printBanner() {
	// Respect NO_COLOR environment variable for CI environments
	noColor := os.Getenv("NO_COLOR") != ""

	cyan := colorCyan
	magenta := colorMagenta
	reset := colorReset

	if noColor {
		cyan = ""
		magenta = ""
		reset = ""
	}

	// ASCII art with QUERY in cyan and GATE in magenta
	banner := fmt.Sprintf(`
%s  ██████╗ ██╗   ██╗███████╗██████╗ ██╗   ██╗%s%s ██████╗  █████╗ ████████╗███████╗%s
%s ██╔═══██╗██║   ██║██╔════╝██╔══██╗╚██╗ ██╔╝%s%s██╔════╝ ██╔══██╗╚══██╔══╝██╔════╝%s
%s ██║   ██║██║   ██║█████╗  ██████╔╝ ╚████╔╝ %s%s██║  ███╗███████║   ██║   █████╗  %s
%s ██║▄▄ ██║██║   ██║██╔══╝  ██╔══██╗  ╚██╔╝  %s%s██║   ██║██╔══██║   ██║   ██╔══╝  %s
%s ╚██████╔╝╚██████╔╝███████╗██║  ██║   ██║   %s%s╚██████╔╝██║  ██║   ██║   ███████╗%s
%s  ╚══▀▀═╝  ╚═════╝ ╚══════╝╚═╝  ╚═╝   ╚═╝   %s%s ╚═════╝ ╚═╝  ╚═╝   ╚═╝   ╚══════╝%s


`,
		cyan, reset, magenta, reset,
		cyan, reset, magenta, reset,
		cyan, reset, magenta, reset,
		cyan, reset, magenta, reset,
		cyan, reset, magenta, reset,
		cyan, reset, magenta, reset,
	)

	fmt.Print(banner)
}

// servCmd is the cobra CLI command for the serve subcommand
func servCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"serv"},
		Short:   "Run the QueryGate service",
		Run:     cmdServ,
	}
}

// cmdServ is the handler for the serve subcommand
func cmdServ(*cobra.Command, []string) {
	printBanner()
	setup(cpath)

	qg, err := serv.NewQueryGateService(conf)
	if err != nil {
		log.Fatalf("%s", err)
	}

	if err := qg.Start(); err != nil {
		log.Fatalf("%s", err)
	}
}
