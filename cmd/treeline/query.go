package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ahollis/treeline"
	"github.com/ahollis/treeline/internal/resolve"
	"github.com/ahollis/treeline/internal/store"
)

var (
	flagMode  string
	flagLimit int
	flagFile  string
	flagKind  string
	flagDepth int
	flagDir   string
)

func init() {
	searchCmd.Flags().StringVar(&flagMode, "mode", "auto", "search mode: auto|keyword|semantic|hybrid")
	searchCmd.Flags().IntVar(&flagLimit, "limit", 10, "maximum number of hits")

	symbolCmd.Flags().StringVar(&flagFile, "file", "", "path substring to disambiguate")
	symbolCmd.Flags().StringVar(&flagKind, "kind", "", "symbol kind to disambiguate")
	refsCmd.Flags().StringVar(&flagFile, "file", "", "path substring to disambiguate")
	refsCmd.Flags().StringVar(&flagKind, "kind", "", "symbol kind to disambiguate")
	dependentsCmd.Flags().StringVar(&flagFile, "file", "", "path substring to disambiguate")
	dependentsCmd.Flags().StringVar(&flagKind, "kind", "", "symbol kind to disambiguate")
	mroCmd.Flags().StringVar(&flagFile, "file", "", "path substring to disambiguate")

	callgraphCmd.Flags().StringVar(&flagFile, "file", "", "path substring to disambiguate")
	callgraphCmd.Flags().StringVar(&flagKind, "kind", "", "symbol kind to disambiguate")
	callgraphCmd.Flags().IntVar(&flagDepth, "depth", 3, "traversal depth limit")
	callgraphCmd.Flags().StringVar(&flagDir, "direction", "callees", "traversal direction: callees|callers")
}

func symbolHint() treeline.SymbolHint {
	return treeline.SymbolHint{PathHint: flagFile, Kind: flagKind}
}

// lookupSymbol resolves a name to one symbol, printing the candidates when
// the hint leaves the name ambiguous.
func lookupSymbol(eng *treeline.Engine, name string) (*store.Symbol, error) {
	sym, err := eng.Query().GetSymbol(name, symbolHint())
	var amb *treeline.AmbiguousSymbolError
	if errors.As(err, &amb) {
		fmt.Fprintf(os.Stderr, "symbol %q is ambiguous; narrow with --file or --kind:\n", name)
		paths, _ := eng.Store().FilePaths()
		for _, c := range amb.Candidates {
			fmt.Fprintf(os.Stderr, "  %s %s (%s:%d)\n", c.Kind, c.Name, paths[c.FileID], c.StartLine)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if sym == nil {
		return nil, fmt.Errorf("symbol not found: %s", name)
	}
	return sym, nil
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the index with hybrid keyword+semantic ranking",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(nil)
		if err != nil {
			return err
		}
		defer eng.Close()

		query := strings.Join(args, " ")
		res, err := eng.Search(cmd.Context(), query, treeline.Mode(flagMode), flagLimit)
		if err != nil {
			return err
		}
		paths, _ := eng.Store().FilePaths()
		return output(searchOutput(res, paths))
	},
}

var symbolCmd = &cobra.Command{
	Use:   "symbol <name>",
	Short: "Show a symbol definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(nil)
		if err != nil {
			return err
		}
		defer eng.Close()

		sym, err := lookupSymbol(eng, args[0])
		if err != nil {
			return err
		}
		paths, _ := eng.Store().FilePaths()
		return output(symbolOutput(sym, paths))
	},
}

var refsCmd = &cobra.Command{
	Use:   "refs <name>",
	Short: "List resolved references to a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(nil)
		if err != nil {
			return err
		}
		defer eng.Close()

		sym, err := lookupSymbol(eng, args[0])
		if err != nil {
			return err
		}
		refs, err := eng.Query().References(sym.ID)
		if err != nil {
			return err
		}
		paths, _ := eng.Store().FilePaths()
		return output(refsOutput(sym, refs, paths))
	},
}

var dependentsCmd = &cobra.Command{
	Use:   "dependents <name>",
	Short: "List files that reference a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(nil)
		if err != nil {
			return err
		}
		defer eng.Close()

		sym, err := lookupSymbol(eng, args[0])
		if err != nil {
			return err
		}
		files, err := eng.Query().Dependents(sym.ID)
		if err != nil {
			return err
		}
		return output(dependentsOutput(sym.Name, files))
	},
}

var mroCmd = &cobra.Command{
	Use:   "mro <class>",
	Short: "Show the method resolution order of a class",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(nil)
		if err != nil {
			return err
		}
		defer eng.Close()

		mro, err := eng.Query().ResolveInheritance(args[0], treeline.SymbolHint{PathHint: flagFile, Kind: "class"})
		var cyc *treeline.CyclicInheritanceError
		if errors.As(err, &cyc) {
			return fmt.Errorf("inheritance cycle involving %s: %s", cyc.Class, strings.Join(cyc.Cycle, " -> "))
		}
		if err != nil {
			return err
		}
		return output(mroOutput(mro))
	},
}

var callgraphCmd = &cobra.Command{
	Use:   "callgraph <name>",
	Short: "Walk the call graph from a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(nil)
		if err != nil {
			return err
		}
		defer eng.Close()

		var dir resolve.Direction
		switch flagDir {
		case "callees":
			dir = treeline.Callees
		case "callers":
			dir = treeline.Callers
		default:
			return fmt.Errorf("invalid direction %q (want callees or callers)", flagDir)
		}

		sym, err := lookupSymbol(eng, args[0])
		if err != nil {
			return err
		}
		graph, err := eng.Query().CallGraphFrom(cmd.Context(), sym.ID, dir, flagDepth)
		if err != nil {
			return err
		}

		ids := make([]int64, 0, len(graph.Nodes))
		for _, n := range graph.Nodes {
			ids = append(ids, n.SymbolID)
		}
		syms, err := eng.Store().SymbolsByIDs(ids)
		if err != nil {
			return err
		}
		return output(callGraphOutput(graph, string(dir), syms))
	},
}
