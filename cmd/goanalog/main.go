package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "goanalog",
		Short:         "Recommend board games from the video games people play",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config/app.yaml)")

	root.AddCommand(serveCmd())
	root.AddCommand(recommendCmd())
	root.AddCommand(similarCmd())
	root.AddCommand(catalogCmd())

	return root
}

func serveCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "server port (default: from config)")
	return cmd
}

func recommendCmd() *cobra.Command {
	var (
		usageFile  string
		domain     string
		opts       cliOptions
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "recommend [steam-id]",
		Short: "Recommend items for a Steam account or a usage CSV file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (usageFile == "") {
				return fmt.Errorf("pass either a steam id or --usage, not both")
			}
			steamID := ""
			if len(args) == 1 {
				steamID = args[0]
			}
			return runRecommend(cmd, steamID, usageFile, domain, opts, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&usageFile, "usage", "", "CSV file of item_id,minutes rows")
	cmd.Flags().StringVar(&domain, "domain", "", "domain pair: bgg or steam (default: from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	opts.register(cmd)
	return cmd
}

func similarCmd() *cobra.Command {
	var (
		domain     string
		n          int
		reverse    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "similar <item-id>",
		Short: "List the items most similar to one source item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimilar(cmd, domain, args[0], n, reverse, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "", "domain pair: bgg or steam (default: from config)")
	cmd.Flags().IntVar(&n, "n", 10, "number of items")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "list the least similar items instead")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage catalogs stored in PostgreSQL",
	}

	var (
		domain string
		file   string
	)
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Create the catalog table and upsert a catalog CSV into it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogImport(cmd.Context(), domain, file)
		},
	}
	importCmd.Flags().StringVar(&domain, "domain", "", "catalog domain: boardgames or videogames")
	importCmd.Flags().StringVar(&file, "file", "", "catalog CSV file")
	_ = importCmd.MarkFlagRequired("domain")
	_ = importCmd.MarkFlagRequired("file")

	cmd.AddCommand(importCmd)
	return cmd
}
