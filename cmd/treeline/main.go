package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahollis/treeline"
	"github.com/ahollis/treeline/internal/update"
)

var (
	flagDB     string
	flagConfig string
	flagFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "treeline",
	Short:         "Incremental code-symbol index with hybrid search",
	Long:          "Treeline indexes a codebase into a queryable graph of symbols, references, types, and inheritance, keeps it fresh from diffs, and answers ranked keyword+semantic queries.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: .treeline/index.db relative to root)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path (default: treeline.yml in root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format: json|text")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(symbolCmd)
	rootCmd.AddCommand(refsCmd)
	rootCmd.AddCommand(dependentsCmd)
	rootCmd.AddCommand(mroCmd)
	rootCmd.AddCommand(callgraphCmd)
}

// openEngine resolves the target root from args[0] (default ".") and opens
// an engine for it.
func openEngine(args []string) (*treeline.Engine, error) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", abs)
	}

	var opts []treeline.Option
	if flagDB != "" {
		opts = append(opts, treeline.WithDBPath(flagDB))
	}
	if flagConfig != "" {
		opts = append(opts, treeline.WithConfigFile(flagConfig))
	}
	return treeline.Open(abs, opts...)
}

var flagForce bool

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Build the index from scratch",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagForce {
			// a fresh start means a fresh database file
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			dbPath := flagDB
			if dbPath == "" {
				dbPath = filepath.Join(root, ".treeline", "index.db")
			}
			if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing database for --force: %w", err)
			}
		}

		eng, err := openEngine(args)
		if err != nil {
			return err
		}
		defer eng.Close()

		rep, err := eng.FullReindex(cmd.Context())
		if err != nil {
			return err
		}
		printReport(rep)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update [path]",
	Short: "Apply changes since the last indexed commit",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(args)
		if err != nil {
			return err
		}
		defer eng.Close()

		rep, err := eng.Update(cmd.Context())
		if err != nil {
			return err
		}
		printReport(rep)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch the tree and keep the index fresh",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(args)
		if err != nil {
			return err
		}
		defer eng.Close()

		// catch up before watching so the first event batch is small
		if _, err := eng.Update(cmd.Context()); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = eng.Watch(ctx, func(rep *update.Report, err error) {
			if err != nil {
				fmt.Fprintf(os.Stderr, "update cycle failed: %s\n", err)
				return
			}
			printReport(rep)
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "watching for changes (ctrl-c to stop)")
		<-ctx.Done()
		return nil
	},
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "delete the database and reindex from scratch")
}

func printReport(rep *update.Report) {
	kind := "incremental"
	if rep.Full {
		kind = "full"
	}
	fmt.Fprintf(os.Stderr, "%s update: %d files indexed, %d deleted, %d skipped in %s\n",
		kind, rep.FilesIndexed, rep.FilesDeleted, len(rep.Skipped), rep.Duration.Round(time.Millisecond))
	for _, skip := range rep.Skipped {
		fmt.Fprintf(os.Stderr, "  skipped %s: %s\n", skip.Path, skip.Reason)
	}
	fmt.Fprintf(os.Stderr, "symbols: +%d -%d ~%d, %d files re-resolved\n",
		rep.SymbolsAdded, rep.SymbolsRemoved, rep.SymbolsChanged, rep.FilesResolved)
	if rep.LinesTouched > 0 {
		fmt.Fprintf(os.Stderr, "lines touched: %d\n", rep.LinesTouched)
	}
}
