package index

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/xlab/treeprint"
)

// Inspect renders the provenance of an index directory as a tree of
// sources and the pages indexed from each.
func Inspect(ctx context.Context, dir string) (string, error) {
	store, manifest, err := Load(ctx, dir)
	if err != nil {
		return "", err
	}

	type source struct {
		pages []string
		seen  map[string]bool
		count int
	}
	sources := make(map[string]*source)
	for _, rec := range store.Records() {
		name := metaString(rec.Metadata["source"], "unknown")
		src, ok := sources[name]
		if !ok {
			src = &source{seen: make(map[string]bool)}
			sources[name] = src
		}
		src.count++
		page := metaString(rec.Metadata["page"], "unknown")
		if !src.seen[page] {
			src.seen[page] = true
			src.pages = append(src.pages, page)
		}
	}

	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("%s (%d records, %s, dim %d)",
		filepath.Base(dir), manifest.Count, manifest.Encoder, manifest.Dimension))
	for _, name := range names {
		src := sources[name]
		branch := tree.AddMetaBranch(src.count, name)
		for _, p := range src.pages {
			branch.AddNode("page " + p)
		}
	}
	return tree.String(), nil
}

func metaString(v any, fallback string) string {
	if v == nil {
		return fallback
	}
	s := fmt.Sprint(v)
	if s == "" {
		return fallback
	}
	return s
}
