package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/veldtlab/grove"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate <family> <label>...",
	Short: "Estimate a rate rule for a template path",
	Long: `Resolves a numeric rate model for the given template path (one tree
node label per reactant slot), climbing to less specific combinations when
the exact one carries no data. With --store, the family's fitted tree is
loaded first so its node labels resolve too.`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		degeneracy, _ := cmd.Flags().GetInt("degeneracy")
		storeSpec, _ := cmd.Flags().GetString("store")

		family, template := args[0], args[1:]

		var opts []grove.Option
		store, err := openStore(storeSpec)
		if err != nil {
			fmt.Printf("Error opening store: %v\n", err)
			os.Exit(1)
		}
		if store != nil {
			opts = append(opts, grove.WithStore(store))
		}

		eng, err := newEngine(cmd, opts...)
		if err != nil {
			fmt.Printf("Error initializing grove: %v\n", err)
			os.Exit(1)
		}
		if store != nil {
			if _, err := eng.LoadTree(cmd.Context(), family); err != nil {
				fmt.Printf("Error loading tree for %s: %v\n", family, err)
				os.Exit(1)
			}
		}
		rule, err := eng.Estimate(cmd.Context(), family, template, degeneracy)
		if err != nil {
			fmt.Printf("Estimation failed: %v\n", err)
			os.Exit(1)
		}

		k := rule.Kinetics
		fmt.Printf("k(T) = %.4e * T^%.3g * exp(-%.0f J/mol / RT) [%s]\n",
			k.A, k.N, k.Ea, k.Units)
		if rule.Uncertainty != nil {
			fmt.Printf("uncertainty: mu=%.3g var=%.3g N=%d (Tref %.0f K)\n",
				rule.Uncertainty.Mu, rule.Uncertainty.Var,
				rule.Uncertainty.N, rule.Uncertainty.Tref)
		}
		fmt.Println(rule.Comment)
	},
}

func init() {
	rootCmd.AddCommand(estimateCmd)
	estimateCmd.Flags().IntP("degeneracy", "n", 1, "Reaction path degeneracy multiplying the A factor")
	estimateCmd.Flags().String("store", "", "Load the family's fitted tree first: a directory or redis://host:port/db")
}
