package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"studyrag/internal/index"
	"studyrag/internal/ingest"
	"studyrag/internal/vectorstore"
	"studyrag/internal/vectorstore/memory"
	"studyrag/internal/vectorstore/qdrant"
)

func newIndexCommand(a *app) *cobra.Command {
	var (
		out     string
		corpus  string
		images  string
		source  string
		chunker string
	)
	cmd := &cobra.Command{
		Use:   "index [paths...]",
		Short: "Chunk, embed and persist study material",
		Long: `Build an index directory from text files, or from a directory of
pre-rendered page images with --images.

Paths may be files, directories or glob patterns. With --corpus the records
go to that corpus's Qdrant collection instead of an index directory.

Examples:
  studyrag index --out indices/year1 notes/*.txt
  studyrag index --out indices/ec --images data/ec_notes --source ec_notes.pdf
  studyrag index --corpus year4 notes/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if images == "" && len(args) == 0 {
				return fmt.Errorf("no input paths given")
			}
			if (out == "") == (corpus == "") {
				return fmt.Errorf("exactly one of --out or --corpus is required")
			}
			if chunker != "" {
				a.cfg.Chunker.Type = chunker
			}
			ctx := cmd.Context()
			emb, ch, closeEmb, err := a.components()
			if err != nil {
				return err
			}
			defer closeEmb()

			var store vectorstore.Storage
			var mem *memory.Storage
			if corpus != "" {
				c, ok := a.cfg.Corpus(corpus)
				if !ok || c.Qdrant == nil {
					return fmt.Errorf("corpus %q has no qdrant collection configured", corpus)
				}
				q, err := qdrant.NewStorage(qdrant.Config{
					Host:       c.Qdrant.Host,
					Port:       c.Qdrant.Port,
					APIKey:     c.Qdrant.APIKey,
					UseTLS:     c.Qdrant.UseTLS,
					Collection: c.Qdrant.Collection,
				})
				if err != nil {
					return err
				}
				defer q.Close()
				if dim := emb.Dimension(); dim > 0 {
					if err := q.EnsureCollection(ctx, dim); err != nil {
						return err
					}
				}
				store = q
			} else {
				mem = memory.NewStorage()
				store = mem
			}

			ing := ingest.New(ch, emb, a.logger)
			var n int
			if images != "" {
				n, err = ing.IngestImages(ctx, store, images, source)
			} else {
				n, err = ing.IngestFiles(ctx, store, args)
			}
			if err != nil {
				return err
			}
			if mem != nil {
				if err := index.Save(ctx, out, mem, emb.Name()); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Indexed %d records into %s (%s, dim %d)\n", n, out, emb.Name(), mem.Dimension())
				return nil
			}
			fmt.Fprintf(a.out, "Indexed %d records into corpus %s\n", n, corpus)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "index directory to write")
	cmd.Flags().StringVar(&corpus, "corpus", "", "configured qdrant-backed corpus to write to")
	cmd.Flags().StringVar(&images, "images", "", "directory of page images to index instead of text")
	cmd.Flags().StringVar(&source, "source", "", "source name recorded for --images (default: directory name)")
	cmd.Flags().StringVar(&chunker, "chunker", "", "override chunker type (window, sentence)")
	return cmd
}

func newMergeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "merge OUT IN [IN...]",
		Short: "Merge index directories in order into a new one",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := index.Merge(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Merged %d indices into %s: %d records (%s, dim %d)\n",
				len(args)-1, args[0], m.Count, m.Encoder, m.Dimension)
			return nil
		},
	}
}

func newInspectCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect DIR",
		Short: "Show the sources and pages in an index directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := index.Inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, tree)
			return nil
		},
	}
}
