package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leaveopt/leaveopt/internal/server/handlers"
)

var extended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for full details including Crucible and Go versions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := handlers.CurrentVersion()
		w := cmd.OutOrStdout()

		fmt.Fprintf(w, "%s %s\n", info.App.Name, info.App.Version)
		if !extended {
			return nil
		}

		fmt.Fprintf(w, "Commit: %s\n", info.App.Commit)
		fmt.Fprintf(w, "Built: %s\n", info.App.BuildDate)
		fmt.Fprintf(w, "Go: %s\n", info.App.GoVersion)
		fmt.Fprintf(w, "Platform: %s\n", info.Runtime.Platform)
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Gofulmen: %s\n", info.Dependencies.Gofulmen)
		fmt.Fprintf(w, "Crucible: %s\n", info.Dependencies.Crucible)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
}
