package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/veldtlab/grove/pkg/domain"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <family>",
	Short: "Render a family's pattern hierarchy as a report",
	Long: `Inspects one family and renders its tree as a markdown report: entry
labels with their nesting, attached rate rules and provenance.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := newEngine(cmd)
		if err != nil {
			fmt.Printf("Error initializing grove: %v\n", err)
			os.Exit(1)
		}

		entries, err := eng.Tree(args[0])
		if err != nil {
			fmt.Printf("Error inspecting family: %v\n", err)
			os.Exit(1)
		}

		markdown := treeReport(args[0], entries)

		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
		if err != nil {
			fmt.Print(markdown)
			return
		}
		out, err := r.Render(markdown)
		if err != nil {
			fmt.Print(markdown)
			return
		}
		fmt.Print(out)
	},
}

// treeReport renders the hierarchy depth-first, following child order.
func treeReport(family string, entries []*domain.Entry) string {
	byLabel := make(map[string]*domain.Entry, len(entries))
	var roots []*domain.Entry
	for _, e := range entries {
		byLabel[e.Label] = e
	}
	for _, e := range entries {
		if e.Parent == "" || byLabel[e.Parent] == nil {
			roots = append(roots, e)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Family %s\n\n%d tree entries\n\n", family, len(entries))

	var walk func(e *domain.Entry, depth int)
	walk = func(e *domain.Entry, depth int) {
		indent := strings.Repeat("  ", depth)
		item := "group"
		if e.IsLogic() {
			item = e.Logic.String()
		}
		fmt.Fprintf(&b, "%s- **%s** (%s", indent, e.Label, item)
		if e.Data != nil && e.Data.Kinetics != nil {
			fmt.Fprintf(&b, ", A=%.3e", e.Data.Kinetics.A)
		}
		if e.Rank > 0 {
			fmt.Fprintf(&b, ", rank %d", e.Rank)
		}
		b.WriteString(")")
		if e.ShortDesc != "" {
			fmt.Fprintf(&b, ": %s", e.ShortDesc)
		}
		b.WriteString("\n")
		for _, child := range e.Children {
			if c := byLabel[child]; c != nil {
				walk(c, depth+1)
			}
		}
	}
	for _, root := range roots {
		walk(root, 0)
	}
	return b.String()
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
