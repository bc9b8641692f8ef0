package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"studyrag/internal/index"
	"studyrag/internal/retriever"
	"studyrag/internal/service"
	"studyrag/internal/vectorstore"
)

func newSearchCommand(a *app) *cobra.Command {
	var (
		k      int
		corpus string
		dir    string
	)
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Run a similarity search against one corpus or index directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			emb, _, closeEmb, err := a.components()
			if err != nil {
				return err
			}
			defer closeEmb()

			var store vectorstore.Storage
			switch {
			case dir != "":
				s, _, err := index.Load(ctx, dir)
				if err != nil {
					return err
				}
				store = s
			case corpus != "":
				c, ok := a.cfg.Corpus(corpus)
				if !ok {
					return fmt.Errorf("unknown corpus %q", corpus)
				}
				s, closeStore, err := service.OpenCorpus(ctx, c, emb)
				if err != nil {
					return err
				}
				defer closeStore()
				store = s
			default:
				return fmt.Errorf("one of --corpus or --dir is required")
			}

			hits, err := retriever.New(emb, store, k).Search(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(hits) == 0 {
				fmt.Fprintln(a.out, "No results.")
				return nil
			}
			for i, h := range hits {
				meta := h.Record.Metadata
				fmt.Fprintf(a.out, "%d. Score: %.3f\n", i+1, h.Score)
				fmt.Fprintf(a.out, "   Page: %v\n", valueOr(meta["page"], "N/A"))
				fmt.Fprintf(a.out, "   Source: %v\n", valueOr(meta["source"], "N/A"))
				fmt.Fprintf(a.out, "   Path: %v\n", valueOr(meta["path"], "N/A"))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "top-k", "k", 5, "number of results")
	cmd.Flags().StringVar(&corpus, "corpus", "", "configured corpus to search")
	cmd.Flags().StringVar(&dir, "dir", "", "index directory to search")
	return cmd
}

func valueOr(v any, fallback string) any {
	if v == nil {
		return fallback
	}
	return v
}
