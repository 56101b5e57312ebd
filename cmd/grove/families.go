package main

import (
	"fmt"
	"os"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var familiesCmd = &cobra.Command{
	Use:   "families",
	Short: "List the loaded reaction families",
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := newEngine(cmd)
		if err != nil {
			fmt.Printf("Error initializing grove: %v\n", err)
			os.Exit(1)
		}

		p := termenv.ColorProfile()
		for _, name := range eng.Families() {
			entries, _ := eng.Tree(name)
			label := termenv.String(name).Foreground(p.Color("#818cf8")).Bold()
			fmt.Printf("%s  (%d tree entries)\n", label, len(entries))
		}
	},
}

func init() {
	rootCmd.AddCommand(familiesCmd)
}
