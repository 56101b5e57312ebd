package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veldtlab/grove"
	redisstore "github.com/veldtlab/grove/internal/adapters/redis"
	"github.com/veldtlab/grove/internal/logging"
	loamstore "github.com/veldtlab/grove/pkg/adapters/loam"
	"github.com/veldtlab/grove/pkg/domain"
	"github.com/veldtlab/grove/pkg/ports"
)

// newEngine builds the engine from the command's persistent flags plus any
// extra options the command wants.
func newEngine(cmd *cobra.Command, extra ...grove.Option) (*grove.Engine, error) {
	dir, _ := cmd.Flags().GetString("dir")
	debug, _ := cmd.Flags().GetBool("debug")

	opts := []grove.Option{grove.WithLogger(logging.New(debug))}
	opts = append(opts, extra...)
	return grove.New(dir, opts...)
}

// openStore resolves the --store flag: "redis://host:port/db" selects the
// redis adapter, anything else is a directory for the loam file library.
// Empty means no store.
func openStore(spec string) (ports.RuleStore, error) {
	if spec == "" {
		return nil, nil
	}
	if strings.HasPrefix(spec, "redis://") {
		addr := strings.TrimPrefix(spec, "redis://")
		db := 0
		if i := strings.LastIndex(addr, "/"); i >= 0 {
			fmt.Sscanf(addr[i+1:], "%d", &db)
			addr = addr[:i]
		}
		return redisstore.New(addr, "", db), nil
	}
	return loamstore.Open(spec)
}

// loadSpecies reads adjacency files into species, labeled by file base name.
func loadSpecies(eng *grove.Engine, paths []string) ([]*domain.Species, error) {
	species := make([]*domain.Species, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read species %s: %w", path, err)
		}
		label := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		sp, err := eng.ParseSpecies(label, string(data))
		if err != nil {
			return nil, err
		}
		species = append(species, sp)
	}
	return species, nil
}
