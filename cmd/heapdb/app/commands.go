package app

import (
	"github.com/spf13/cobra"

	"github.com/Blackdeer1524/HeapDB/src/app"
)

func entrypoint(manifest string, action app.Action) *app.EngineEntrypoint {
	return &app.EngineEntrypoint{
		ConfigPath:   rootCmd.Options.ConfigPath,
		ManifestPath: manifest,
		Action:       action,
	}
}

func initLoad() {
	var header bool

	cmd := &cobra.Command{
		Use:   "load <manifest> <table> <csv>",
		Short: "Appends the rows of a CSV file to a table",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd.Context(), entrypoint(args[0], app.Load(args[1], args[2], header)))
		},
	}
	cmd.Flags().BoolVar(&header, "header", false, "Skip the first CSV row")

	rootCmd.AddCommand(cmd)
}

func initAnalyze() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "analyze <manifest>",
		Short: "Recomputes and prints table statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd.Context(), entrypoint(args[0], app.Analyze()))
		},
	})
}

func initInspect() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "inspect <manifest> <table>",
		Short: "Prints the page layout and slot usage of a table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd.Context(), entrypoint(args[0], app.Inspect(args[1])))
		},
	})
}

func initEstimate() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "estimate <manifest> <table> <field> <op> <value>",
		Short: "Analyzes the tables and estimates the selectivity of a predicate",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd.Context(), entrypoint(args[0], app.Estimate(args[1], args[2], args[3], args[4])))
		},
	})
}

func initServe() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve <manifest>",
		Short: "Keeps the tables open and runs the scheduled flush and analyze jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd.Context(), entrypoint(args[0], nil))
		},
	})
}
