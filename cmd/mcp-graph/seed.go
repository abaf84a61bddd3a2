package main

import (
	"github.com/spf13/cobra"

	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/generator"
)

var (
	seedPersons int
	seedKnows   float64
	seedChunk   int
	seedValue   int64
	seedOut     string
	seedWorkers int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate a deterministic Person/KNOWS graph",
	Long: `seed generates persons and KNOWS relationships from a fixed seed and
either writes them to the graph through the gateway or, with --out, saves
them as a batch file. Statements use MERGE, so seeding twice is harmless.`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

func init() {
	defaults := generator.DefaultConfig()
	seedCmd.Flags().IntVar(&seedPersons, "persons", defaults.NumPersons, "number of Person nodes")
	seedCmd.Flags().Float64Var(&seedKnows, "knows", defaults.KnowsPerPerson, "mean outgoing KNOWS relationships per person")
	seedCmd.Flags().IntVar(&seedChunk, "chunk-size", defaults.ChunkSize, "rows per UNWIND statement")
	seedCmd.Flags().Int64Var(&seedValue, "seed", defaults.Seed, "random seed")
	seedCmd.Flags().StringVarP(&seedOut, "out", "o", "", "write a batch file instead of executing")
	seedCmd.Flags().IntVarP(&seedWorkers, "workers", "w", 4, "number of statements executed concurrently")
}

func runSeed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	gen := generator.New(generator.Config{
		NumPersons:     seedPersons,
		KnowsPerPerson: seedKnows,
		ChunkSize:      seedChunk,
		Seed:           seedValue,
	})
	dataset, err := gen.Generate(ctx)
	if err != nil {
		return err
	}
	persons := gen.PersonStatements(dataset)
	knows := gen.KnowsStatements(dataset)
	logger.Info("generated graph",
		"persons", len(dataset.Persons),
		"knows", len(dataset.Knows),
		"statements", len(persons)+len(knows),
	)

	if seedOut != "" {
		if err := generator.WriteStatements(append(persons, knows...), seedOut); err != nil {
			return err
		}
		logger.Info("batch file written", "path", seedOut)
		return nil
	}

	gw, err := buildGateway(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closePool(gw, cfg.HTTP.ShutdownTimeout)

	// Relationships match persons by id, so nodes are written first.
	if err := runItems(cmd, gw, generator.Items(persons), seedWorkers); err != nil {
		return err
	}
	return runItems(cmd, gw, generator.Items(knows), seedWorkers)
}
