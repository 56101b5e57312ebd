package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/veldtlab/grove/pkg/domain"
)

var generateCmd = &cobra.Command{
	Use:   "generate [species files...]",
	Short: "Generate reactions for a set of reactant species",
	Long: `Matches the given reactant species (adjacency-list files, one species
per file) against every loaded family template, or against a single family
when --family is set, and prints the resulting reactions with their
degeneracies.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		family, _ := cmd.Flags().GetString("family")
		estimate, _ := cmd.Flags().GetBool("estimate")

		eng, err := newEngine(cmd)
		if err != nil {
			fmt.Printf("Error initializing grove: %v\n", err)
			os.Exit(1)
		}

		species, err := loadSpecies(eng, args)
		if err != nil {
			fmt.Printf("Error loading species: %v\n", err)
			os.Exit(1)
		}

		ctx := cmd.Context()
		var rxns []*domain.Reaction
		if family != "" {
			rxns, err = eng.Generate(ctx, family, species)
		} else {
			rxns, err = eng.React(ctx, species...)
		}
		if err != nil {
			fmt.Printf("Generation failed: %v\n", err)
			os.Exit(1)
		}

		for _, rxn := range rxns {
			if estimate {
				if err := eng.EstimateReaction(ctx, rxn); err != nil {
					fmt.Fprintf(os.Stderr, "no kinetics for %s: %v\n", rxn, err)
				}
			}
			fmt.Printf("%s  family=%s degeneracy=%d template=%v\n",
				rxn, rxn.Family, rxn.Degeneracy, rxn.Template)
			if rxn.Kinetics != nil && rxn.Kinetics.Kinetics != nil {
				k := rxn.Kinetics.Kinetics
				fmt.Printf("  k(T) = %.4e * T^%.3g * exp(-%.0f J/mol / RT) [%s]\n",
					k.A, k.N, k.Ea, k.Units)
			}
		}
		if len(rxns) == 0 {
			fmt.Println("No reactions generated.")
		}
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringP("family", "f", "", "Restrict generation to one family")
	generateCmd.Flags().BoolP("estimate", "e", false, "Estimate kinetics for each generated reaction")
}
