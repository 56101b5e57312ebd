package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "grove",
	Short: "Grove is a rate-rule tree engine for reaction-family kinetics",
	Long: `Grove generates chemical reactions from pattern-based family templates
and estimates their rate parameters by climbing hierarchical rate-rule trees
grown from training data.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("dir", ".", "Directory containing the family definition files")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging on stderr")
}
