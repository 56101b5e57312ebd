package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/veldtlab/grove"
)

var trainCmd = &cobra.Command{
	Use:   "train [family]",
	Short: "Ingest training reactions and grow rate-rule trees",
	Long: `Folds each family's training reactions into its rate-rule table, grows
the pattern hierarchy from them, and fits a rate rule to every grown node.
Without an argument every loaded family is trained. With --store the grown
trees are persisted (a directory path selects the loam file library,
redis://host:port/db the redis backend).`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		storeSpec, _ := cmd.Flags().GetString("store")
		workers, _ := cmd.Flags().GetInt("workers")
		seed, _ := cmd.Flags().GetInt64("seed")

		opts := []grove.Option{grove.WithWorkers(workers), grove.WithSeed(seed)}
		store, err := openStore(storeSpec)
		if err != nil {
			fmt.Printf("Error opening store: %v\n", err)
			os.Exit(1)
		}
		if store != nil {
			defer store.Close()
			opts = append(opts, grove.WithStore(store))
		}

		eng, err := newEngine(cmd, opts...)
		if err != nil {
			fmt.Printf("Error initializing grove: %v\n", err)
			os.Exit(1)
		}

		families := eng.Families()
		if len(args) == 1 {
			families = args[:1]
		}

		ctx := cmd.Context()
		for _, family := range families {
			if err := eng.Train(ctx, family); err != nil {
				fmt.Printf("Training %s failed: %v\n", family, err)
				os.Exit(1)
			}
			entries, err := eng.GrowTree(ctx, family)
			if err != nil {
				fmt.Printf("Growing tree for %s failed: %v\n", family, err)
				os.Exit(1)
			}
			fmt.Printf("%s: grew %d tree entries\n", family, len(entries))

			if store != nil {
				if err := eng.SaveTree(ctx, family); err != nil {
					fmt.Printf("Saving tree for %s failed: %v\n", family, err)
					os.Exit(1)
				}
				fmt.Printf("%s: saved to %s\n", family, storeSpec)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)
	trainCmd.Flags().String("store", "", "Persist grown trees (directory path or redis://host:port/db)")
	trainCmd.Flags().Int("workers", 0, "Helper goroutines for subtree growth (0 = grow inline)")
	trainCmd.Flags().Int64("seed", 1, "Random seed for training-batch shuffling")
}
