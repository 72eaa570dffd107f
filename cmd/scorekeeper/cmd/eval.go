package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/solatis/scorekeeper/internal/core/config"
	"github.com/solatis/scorekeeper/internal/core/db"
	"github.com/solatis/scorekeeper/internal/rules"
	"github.com/solatis/scorekeeper/internal/types"
)

var evalCmd = &cobra.Command{
	Use:   "eval [inputs.json]",
	Short: "Evaluate the formula pipeline against one JSON input object",
	Long: `Evaluate reads a flat JSON object of inputs from the given file, or from stdin
when no file or "-" is given, and prints the final context as JSON.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)
	evalCmd.Flags().String("formulas", "", "formula file (default server.formulas_path)")
	evalCmd.Flags().Bool("record", false, "record the run in the database given by --db-url")
}

func runEval(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	engine, src, err := buildEngine(formulasPath(cmd, cfg), logger)
	if err != nil {
		return err
	}

	inputs, err := readInputs(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	start := time.Now()
	out, evalErr := engine.Evaluate(inputs)
	elapsed := time.Since(start)

	if record, _ := cmd.Flags().GetBool("record"); record {
		database, queries, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		run, err := db.NewRun("", src.Checksum, inputs, out, evalErr, elapsed)
		if err != nil {
			return err
		}
		if err := db.NewRunStore(queries).RecordRun(cmd.Context(), run); err != nil {
			return err
		}
		logger.Info().Str("run_id", string(run.RunID)).Msg("run recorded")
	}

	if evalErr != nil {
		return evalErr
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// formulasPath returns --formulas when set, else the configured path.
func formulasPath(cmd *cobra.Command, cfg *config.Config) string {
	if cmd.Flags().Changed("formulas") {
		path, _ := cmd.Flags().GetString("formulas")
		return path
	}
	return cfg.Server.FormulasPath
}

// buildEngine loads and validates the formula file at path.
func buildEngine(path string, logger zerolog.Logger, opts ...rules.Option) (*rules.Engine, *rules.Source, error) {
	formulas, src, err := rules.LoadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	engine, err := rules.NewEngine(formulas, append([]rules.Option{rules.WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return engine, src, nil
}

func readInputs(stdin io.Reader, args []string) (types.Inputs, error) {
	r := stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, fmt.Errorf("open inputs: %w", err)
		}
		defer f.Close()
		r = f
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()
	var inputs types.Inputs
	if err := dec.Decode(&inputs); err != nil {
		return nil, fmt.Errorf("decode inputs: expected a JSON object: %w", err)
	}
	if inputs == nil {
		inputs = types.Inputs{}
	}
	return inputs, nil
}
