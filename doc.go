/*
Package grove estimates rate parameters for chemical reactions by organizing
structural reaction patterns into hierarchical, self-refining classification
trees, and by generating every chemically valid reaction consistent with a
pattern-based template.

It implements four cooperating cores: a recipe engine that edits tagged
molecular graphs, a reaction generator that matches concrete reactants
against family templates, a tree inducer that grows and regularizes each
family's pattern hierarchy from training data, and a rate-rule estimator
that climbs the hierarchy to produce numeric models with uncertainty. The
molecular-graph representation, thermochemistry and persistence are consumed
through ports, so the core never depends on one graph type or storage
backend.

# Key Features

  - Deterministic generation: the same reactants against the same family
    always yield the same reactions with the same degeneracies.
  - Hexagonal architecture: core logic is decoupled from adapters
    (molecule graphs, rule stores, HTTP, MCP).
  - Self-refining trees: training data grows each family's hierarchy and
    fits rate rules with leave-one-out uncertainty.
  - Concurrent induction: independent subtrees grow on worker goroutines
    with a deterministic merge.

# Usage

Initialize the engine over a directory of family definitions, then
generate and estimate:

	package main

	import (
		"context"
		"log"

		"github.com/veldtlab/grove"
	)

	func main() {
		eng, err := grove.New("./families")
		if err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()
		ch4, err := eng.ParseSpecies("CH4", methaneAdjacency)
		if err != nil {
			log.Fatal(err)
		}
		oh, err := eng.ParseSpecies("OH", hydroxylAdjacency)
		if err != nil {
			log.Fatal(err)
		}

		rxns, err := eng.React(ctx, ch4, oh)
		if err != nil {
			log.Fatal(err)
		}
		for _, rxn := range rxns {
			if err := eng.EstimateReaction(ctx, rxn); err != nil {
				log.Printf("no kinetics for %s: %v", rxn, err)
			}
			log.Println(rxn, rxn.Degeneracy, rxn.Kinetics)
		}
	}
*/
package grove
