package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"hdrsynth/internal/config"
	"hdrsynth/internal/pipeline"
	"hdrsynth/internal/registry"
	"hdrsynth/internal/report"
	"hdrsynth/internal/storage"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))

var extractFrom string

func init() {
	extractCmd.Flags().StringVar(&extractFrom, "from", "", "Source id to extract from when several are registered")
}

var extractCmd = &cobra.Command{
	Use:   "extract NAME",
	Short: "Print the symbols one source tree declares for an artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := opts.load(cmd.Flags())
		if err != nil {
			return err
		}
		tree, err := pickSource(cfg.Sources, extractFrom)
		if err != nil {
			return err
		}
		ext, _, err := pipeline.NewExtractor(cfg)
		if err != nil {
			return err
		}

		art, err := ext.ExtractArtifact(context.Background(), tree, args[0])
		if err != nil {
			return err
		}

		fmt.Println(headingStyle.Render(fmt.Sprintf("%s in %s (%s)", art.Name, art.SourceID, art.Rel)))
		if len(art.Candidates) > 1 {
			fmt.Printf("also found at: %s\n", strings.Join(art.Candidates[1:], ", "))
		}
		t := report.NewTable("Kind", "Name", "Line", "Definition")
		for _, s := range art.Symbols {
			t.Row(s.Kind.String(), s.Name, strconv.Itoa(s.Line), firstLine(s.Definition))
		}
		fmt.Println(t.Render())
		fmt.Printf("%d symbols via %s\n", len(art.Symbols), ext.Backend())
		return nil
	},
}

var showSymbol string

func init() {
	showCmd.Flags().StringVar(&showSymbol, "symbol", "", "List every recorded resolution of a symbol")
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Inspect runs persisted in the run store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := opts.load(cmd.Flags())
		if err != nil {
			return err
		}
		if cfg.DB == "" {
			return errors.New("show needs --db")
		}
		store, err := storage.NewSQLiteStore(cfg.DB)
		if err != nil {
			return fmt.Errorf("failed to open run store: %w", err)
		}
		defer store.Close()

		ctx := context.Background()
		if showSymbol != "" {
			return showHistory(ctx, store, showSymbol)
		}

		runID, err := store.LatestRunID(ctx)
		if err != nil {
			return err
		}
		if len(cfg.Artifacts) > 0 {
			return showArtifacts(ctx, store, runID, cfg.Artifacts)
		}
		return showRun(ctx, store, runID)
	},
}

func showHistory(ctx context.Context, store storage.RunStore, name string) error {
	versions, err := store.SymbolHistory(ctx, name)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Printf("%s was never recorded\n", name)
		return nil
	}
	fmt.Println(headingStyle.Render("History of " + name))
	t := report.NewTable("Run", "Generated", "Artifact", "Kind", "Canonical", "Sources", "Definition")
	for _, v := range versions {
		t.Row(strconv.FormatInt(v.RunID, 10), v.GeneratedAt, v.Artifact, v.Kind.String(),
			v.CanonicalSource, strings.Join(v.Sources, ", "), firstLine(v.Body))
	}
	fmt.Println(t.Render())
	return nil
}

func showArtifacts(ctx context.Context, store storage.RunStore, runID int64, names []string) error {
	for _, name := range names {
		syms, err := store.ArtifactSymbols(ctx, runID, name)
		if err != nil {
			return err
		}
		fmt.Println(headingStyle.Render(fmt.Sprintf("%s (run %d)", name, runID)))
		t := report.NewTable("Kind", "Name", "Canonical", "Sources", "Divergent")
		for _, s := range syms {
			t.Row(s.Kind.String(), s.Name, s.CanonicalSource, strings.Join(s.Sources, ", "), strconv.FormatBool(s.Divergent))
		}
		fmt.Println(t.Render())
	}
	return nil
}

func showRun(ctx context.Context, store storage.RunStore, runID int64) error {
	edges, err := store.Edges(ctx, runID)
	if err != nil {
		return err
	}
	fails, err := store.Failures(ctx, runID)
	if err != nil {
		return err
	}

	fmt.Println(headingStyle.Render(fmt.Sprintf("Run %d", runID)))
	t := report.NewTable("Source A", "Source B", "Score", "Severity")
	for _, e := range edges {
		t.Row(e.SourceA, e.SourceB, fmt.Sprintf("%.1f", e.Score), e.Severity.String())
	}
	fmt.Println(t.Render())

	if len(fails) > 0 {
		ft := report.NewTable("Kind", "Source", "Artifact", "Message")
		for _, f := range fails {
			ft.Row(string(f.Kind), f.SourceID, f.Artifact, f.Message)
		}
		fmt.Println(ft.Render())
	}
	fmt.Printf("%d edges, %d failures\n", len(edges), len(fails))
	return nil
}

// pickSource selects the tree named id, or the only registered tree when id
// is empty.
func pickSource(sources []config.Source, id string) (registry.SourceTree, error) {
	trees := make([]registry.SourceTree, 0, len(sources))
	for _, s := range sources {
		trees = append(trees, registry.SourceTree{ID: s.ID, Root: s.Root})
	}
	reg, err := registry.New(trees...)
	if err != nil {
		return registry.SourceTree{}, err
	}
	if id == "" {
		if reg.Len() != 1 {
			return registry.SourceTree{}, fmt.Errorf("extract needs --from with %d sources registered (%s)", reg.Len(), strings.Join(reg.IDs(), ", "))
		}
		return reg.Sources()[0], nil
	}
	tree, ok := reg.Get(id)
	if !ok {
		return registry.SourceTree{}, fmt.Errorf("unknown source %q, registered: %s", id, strings.Join(reg.IDs(), ", "))
	}
	return tree, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
