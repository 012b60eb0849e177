package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/ahollis/treeline"
	"github.com/ahollis/treeline/internal/resolve"
	"github.com/ahollis/treeline/internal/store"
)

var validFormats = []string{"json", "text"}

func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q (valid: %s)", format, strings.Join(validFormats, ", "))
}

// printable values render themselves for --format=text; --format=json just
// marshals the struct.
type printable interface {
	text(w *tabwriter.Writer)
}

func output(v printable) error {
	if flagFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	v.text(w)
	return w.Flush()
}

type symbolView struct {
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Language  string  `json:"language"`
	File      string  `json:"file"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Signature string  `json:"signature,omitempty"`
	Doc       string  `json:"doc,omitempty"`
	Score     float64 `json:"score,omitempty"`
}

func viewOf(sym *store.Symbol, paths map[int64]string) symbolView {
	return symbolView{
		Name:      sym.Name,
		Kind:      sym.Kind,
		Language:  sym.Language,
		File:      paths[sym.FileID],
		StartLine: sym.StartLine,
		EndLine:   sym.EndLine,
		Signature: sym.Signature,
		Doc:       sym.Doc,
	}
}

type searchView struct {
	Mode     string       `json:"mode"`
	Alpha    float64      `json:"alpha"`
	Partial  bool         `json:"partial,omitempty"`
	Degraded []string     `json:"degraded,omitempty"`
	Hits     []symbolView `json:"hits"`
}

func searchOutput(res *treeline.SearchResult, paths map[int64]string) *searchView {
	v := &searchView{Mode: string(res.Mode), Alpha: res.Alpha, Partial: res.Partial, Degraded: res.Degraded}
	for _, h := range res.Hits {
		sv := viewOf(h.Symbol, paths)
		sv.Score = h.Score
		sv.Doc = "" // too noisy for a ranked list
		v.Hits = append(v.Hits, sv)
	}
	return v
}

func (v *searchView) text(w *tabwriter.Writer) {
	if v.Partial {
		fmt.Fprintf(w, "partial results (%s degraded)\n", strings.Join(v.Degraded, ", "))
	}
	if len(v.Hits) == 0 {
		fmt.Fprintln(w, "no results")
		return
	}
	fmt.Fprintln(w, "SCORE\tKIND\tNAME\tLOCATION")
	for _, h := range v.Hits {
		fmt.Fprintf(w, "%.4f\t%s\t%s\t%s:%d\n", h.Score, h.Kind, h.Name, h.File, h.StartLine)
	}
}

type symbolDetail struct {
	symbolView
}

func symbolOutput(sym *store.Symbol, paths map[int64]string) *symbolDetail {
	return &symbolDetail{viewOf(sym, paths)}
}

func (v *symbolDetail) text(w *tabwriter.Writer) {
	fmt.Fprintf(w, "%s\t%s\n", v.Kind, v.Name)
	fmt.Fprintf(w, "location\t%s:%d-%d\n", v.File, v.StartLine, v.EndLine)
	if v.Signature != "" {
		fmt.Fprintf(w, "signature\t%s\n", v.Signature)
	}
	if v.Doc != "" {
		fmt.Fprintf(w, "doc\t%s\n", firstLine(v.Doc))
	}
}

type refView struct {
	File       string  `json:"file"`
	Line       int     `json:"line"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	Stale      bool    `json:"stale,omitempty"`
}

type refsView struct {
	Symbol string    `json:"symbol"`
	Refs   []refView `json:"references"`
}

func refsOutput(sym *store.Symbol, refs []*store.Reference, paths map[int64]string) *refsView {
	v := &refsView{Symbol: sym.Name}
	for _, r := range refs {
		v.Refs = append(v.Refs, refView{
			File:       paths[r.SourceFileID],
			Line:       r.SourceLine,
			Type:       r.ReferenceType,
			Confidence: r.Confidence,
			Method:     r.ResolutionMethod,
			Stale:      r.Stale,
		})
	}
	return v
}

func (v *refsView) text(w *tabwriter.Writer) {
	if len(v.Refs) == 0 {
		fmt.Fprintf(w, "no references to %s\n", v.Symbol)
		return
	}
	fmt.Fprintln(w, "LOCATION\tTYPE\tCONFIDENCE\tMETHOD")
	for _, r := range v.Refs {
		stale := ""
		if r.Stale {
			stale = " (stale)"
		}
		fmt.Fprintf(w, "%s:%d\t%s\t%.2f\t%s%s\n", r.File, r.Line, r.Type, r.Confidence, r.Method, stale)
	}
}

type dependentsView struct {
	Symbol string   `json:"symbol"`
	Files  []string `json:"files"`
}

func dependentsOutput(name string, files []string) *dependentsView {
	return &dependentsView{Symbol: name, Files: files}
}

func (v *dependentsView) text(w *tabwriter.Writer) {
	if len(v.Files) == 0 {
		fmt.Fprintf(w, "no files depend on %s\n", v.Symbol)
		return
	}
	for _, f := range v.Files {
		fmt.Fprintln(w, f)
	}
}

type mroView struct {
	Class string   `json:"class"`
	Order []string `json:"order"`
}

func mroOutput(mro *treeline.MRO) *mroView {
	return &mroView{Class: mro.Class.Name, Order: mro.Names}
}

func (v *mroView) text(w *tabwriter.Writer) {
	fmt.Fprintf(w, "%s: %s\n", v.Class, strings.Join(v.Order, " -> "))
}

type callNodeView struct {
	Name  string `json:"name"`
	Depth int    `json:"depth"`
	Cycle bool   `json:"cycle,omitempty"`
}

type callEdgeView struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	Line       int     `json:"line"`
	Confidence float64 `json:"confidence"`
}

type callGraphView struct {
	Root      string         `json:"root"`
	Direction string         `json:"direction"`
	Depth     int            `json:"depth"`
	Nodes     []callNodeView `json:"nodes"`
	Edges     []callEdgeView `json:"edges"`
}

func callGraphOutput(g *resolve.CallGraph, direction string, syms []*store.Symbol) *callGraphView {
	names := make(map[int64]string, len(syms))
	for _, s := range syms {
		names[s.ID] = s.Name
	}
	v := &callGraphView{Root: names[g.Root], Direction: direction, Depth: g.Depth}
	for _, n := range g.Nodes {
		v.Nodes = append(v.Nodes, callNodeView{Name: names[n.SymbolID], Depth: n.Depth, Cycle: n.Cycle})
	}
	for _, e := range g.Edges {
		v.Edges = append(v.Edges, callEdgeView{From: names[e.FromID], To: names[e.ToID], Line: e.Line, Confidence: e.Confidence})
	}
	return v
}

func (v *callGraphView) text(w *tabwriter.Writer) {
	fmt.Fprintf(w, "%s graph from %s (depth %d)\n", v.Direction, v.Root, v.Depth)
	for _, e := range v.Edges {
		fmt.Fprintf(w, "%s\t->\t%s\t(line %d, conf %.2f)\n", e.From, e.To, e.Line, e.Confidence)
	}
	for _, n := range v.Nodes {
		if n.Cycle {
			fmt.Fprintf(w, "%s\t[cycle]\n", n.Name)
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
