package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/querykit/internal/backend"
)

// SeedResult reports what a seed file loaded.
type SeedResult struct {
	File     string `json:"file"`
	Entities int    `json:"entities"`
	Records  int    `json:"records"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <file>",
		Short: "Load a seed file into the configured backend",
		Long: `Define the entities of a seed file and insert its records into the
configured backend. Useful with the sqlite, gorm and postgres drivers, whose
data outlives the command.

Examples:
  querykit seed people.yaml
  querykit seed people.yaml --config prod.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

func runSeed(cmd *cobra.Command, rootOpts *RootOptions, path string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := formatter(rootOpts, cmd)

	seed, err := backend.LoadSeed(path)
	if err != nil {
		return out.Fail(CodeBackend, "failed to load seed", err)
	}

	s, err := openSession(ctx, rootOpts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := seed.Apply(ctx, s.target)
	if err != nil {
		return s.out.Fail(CodeBackend, "failed to apply seed", err)
	}
	s.log.Info("seed applied", "file", path, "entities", len(seed.Entities), "records", n)

	res := SeedResult{File: path, Entities: len(seed.Entities), Records: n}
	if s.out.Format == "json" {
		return s.out.Success(res)
	}
	fmt.Fprintf(s.out.Writer, "Seeded %d records into %d entities from %s\n", res.Records, res.Entities, res.File)
	return nil
}
