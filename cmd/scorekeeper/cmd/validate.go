package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/solatis/scorekeeper/internal/core/watch"
	"github.com/solatis/scorekeeper/internal/functions"
	"github.com/solatis/scorekeeper/internal/rules"
	"github.com/solatis/scorekeeper/internal/types"
)

var errValidation = errors.New("validation failed")

var validateCmd = &cobra.Command{
	Use:   "validate [formulas.yaml]",
	Short: "Compile and statically check a formula file",
	Long: `Validate reports structural problems, unknown functions, duplicate writers,
circular dependencies and dead values without evaluating anything. With --watch
it re-validates whenever the file changes until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("watch", false, "re-validate on every change to the file")
	validateCmd.Flags().Bool("json", false, "print diagnostics as JSON")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	path := cfg.Server.FormulasPath
	if len(args) == 1 {
		path = args[0]
	}
	asJSON, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	if watchFile, _ := cmd.Flags().GetBool("watch"); !watchFile {
		if !validateFile(out, path, asJSON) {
			return errValidation
		}
		return nil
	}

	fw, err := watch.NewFileWatcher(path, watch.DefaultDebounce, logger)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var mu sync.Mutex
	validateFile(out, path, asJSON)
	logger.Info().Str("path", path).Msg("watching for changes")
	return fw.Run(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		validateFile(out, path, asJSON)
	})
}

type report struct {
	Path        string             `json:"path"`
	Valid       bool               `json:"valid"`
	Checksum    string             `json:"checksum,omitempty"`
	Formulas    int                `json:"formulas"`
	Problems    []string           `json:"problems,omitempty"`
	Diagnostics []rules.Diagnostic `json:"diagnostics,omitempty"`
}

// validateFile prints a report for path and reports whether it is valid.
func validateFile(w io.Writer, path string, asJSON bool) bool {
	r := report{Path: path}

	formulas, src, err := rules.LoadFile(path)
	if src != nil {
		r.Checksum = src.Checksum
	}
	var cfgErr *types.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		r.Problems = cfgErr.Problems
	case err != nil:
		r.Problems = []string{err.Error()}
	default:
		r.Formulas = len(formulas)
		r.Diagnostics = rules.ValidateWith(formulas, functions.Builtin())
		r.Valid = !rules.HasErrors(r.Diagnostics)
	}

	if asJSON {
		json.NewEncoder(w).Encode(r)
		return r.Valid
	}

	for _, p := range r.Problems {
		fmt.Fprintf(w, "error: %s\n", p)
	}
	for _, d := range r.Diagnostics {
		fmt.Fprintln(w, d.String())
	}
	verdict := "ok"
	if !r.Valid {
		verdict = "invalid"
	}
	fmt.Fprintf(w, "%s: %s (%d formulas, checksum %s)\n", path, verdict, r.Formulas, r.Checksum)
	return r.Valid
}
