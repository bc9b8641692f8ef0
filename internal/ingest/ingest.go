// Package ingest turns text files and page images into vector store records.
package ingest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"studyrag/internal/domain"
	"studyrag/internal/vectorstore"
)

var (
	textExts  = []string{".txt", ".md"}
	imageExts = []string{".jpg", ".jpeg", ".png", ".bmp"}
)

// Ingester chunks, embeds and stores documents.
type Ingester struct {
	chunker  domain.Chunker
	embedder domain.Embedder
	logger   *slog.Logger
}

func New(chunker domain.Chunker, embedder domain.Embedder, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Ingester{chunker: chunker, embedder: embedder, logger: logger}
}

// IngestFiles indexes every text file matched by paths. Each path may be a
// glob pattern or a directory.
func (i *Ingester) IngestFiles(ctx context.Context, store vectorstore.Storage, paths []string) (int, error) {
	files, err := expand(paths, textExts)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no text documents found")
	}
	total := 0
	for _, f := range files {
		n, err := i.IngestFile(ctx, store, f)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// IngestFile chunks a single text file into store. Every chunk records its
// file as source and its ordinal as page.
func (i *Ingester) IngestFile(ctx context.Context, store vectorstore.Storage, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	doc := domain.Document{ID: hashString(path), Path: path, Content: string(data)}
	chunks, err := i.chunker.Chunk(doc)
	if err != nil {
		return 0, fmt.Errorf("chunk %s: %w", path, err)
	}
	for _, ch := range chunks {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		vec, err := i.embedder.Embed(ctx, ch.Text)
		if err != nil {
			return 0, fmt.Errorf("embed %s chunk %d: %w", path, ch.Index, err)
		}
		_, err = store.Add(ctx, vec, ch.Text, domain.Metadata{
			"source":   filepath.Base(path),
			"page":     ch.Index,
			"path":     path,
			"chunk_id": ch.ChunkID,
		})
		if err != nil {
			return 0, fmt.Errorf("store %s chunk %d: %w", path, ch.Index, err)
		}
	}
	i.logger.Debug("ingested file", "path", path, "chunks", len(chunks))
	return len(chunks), nil
}

// IngestImages indexes the page images in dir in filename order, using the
// position as page number. Images that fail to embed are logged and skipped.
func (i *Ingester) IngestImages(ctx context.Context, store vectorstore.Storage, dir, source string) (int, error) {
	ie, ok := i.embedder.(domain.ImageEmbedder)
	if !ok {
		return 0, fmt.Errorf("%w: encoder %s does not accept images", domain.ErrConfiguration, i.embedder.Name())
	}
	files, err := expand([]string{dir}, imageExts)
	if err != nil {
		return 0, err
	}
	if source == "" {
		source = filepath.Base(dir)
	}
	indexed := 0
	for page, f := range files {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		id, err := i.ingestImage(ctx, ie, store, f, source, page)
		if err != nil {
			if errors.Is(err, domain.ErrDimensionMismatch) {
				return indexed, err
			}
			i.logger.Warn("failed to index image", "file", f, "error", err)
			continue
		}
		i.logger.Debug("indexed image", "file", filepath.Base(f), "id", id)
		indexed++
	}
	return indexed, nil
}

func (i *Ingester) ingestImage(ctx context.Context, ie domain.ImageEmbedder, store vectorstore.Storage, path, source string, page int) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	vec, err := ie.EmbedImage(ctx, data)
	if err != nil {
		return 0, err
	}
	return store.Add(ctx, vec, "", domain.Metadata{
		"source":   source,
		"page":     page,
		"path":     path,
		"filename": filepath.Base(path),
	})
}

// expand resolves globs and directories into a sorted, de-duplicated list
// of files whose extension is one of exts.
func expand(paths []string, exts []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !hasExt(p, exts) || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err == nil && info.IsDir() {
			entries, err := os.ReadDir(p)
			if err != nil {
				return nil, err
			}
			for _, e := range entries {
				if !e.IsDir() {
					add(filepath.Join(p, e.Name()))
				}
			}
			continue
		}
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			add(m)
		}
	}
	sort.Strings(out)
	return out, nil
}

func hasExt(p string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
