package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/voice-autopilot/internal/llm"
)

const (
	maxChunkChars = 1200
	embedWorkers  = 4
)

// IngestStats summarizes one ingestion pass.
type IngestStats struct {
	Docs   int `json:"docs"`
	Chunks int `json:"chunks"`
}

// Ingester rebuilds the knowledge index from a directory of source files.
// Markdown and plain text are chunked directly; HTML is reduced to its
// visible text first.
type Ingester struct {
	index *Index
	llm   llm.Client
}

func NewIngester(index *Index, client llm.Client) *Ingester {
	return &Ingester{index: index, llm: client}
}

// Ingest walks dir, chunks each supported file, embeds the chunks with
// bounded concurrency, and replaces the stored chunks per document.
func (g *Ingester) Ingest(ctx context.Context, dir string) (*IngestStats, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge dir: %w", err)
	}

	stats := &IngestStats{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".md" && ext != ".txt" && ext != ".html" && ext != ".htm" {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}

		text := string(raw)
		if ext == ".html" || ext == ".htm" {
			text, err = htmlToText(text)
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", name, err)
			}
		}

		pieces := chunkText(text, maxChunkChars)
		if len(pieces) == 0 {
			continue
		}

		chunks, err := g.embedChunks(ctx, name, pieces)
		if err != nil {
			return nil, err
		}
		if err := g.index.ReplaceDoc(name, chunks); err != nil {
			return nil, err
		}

		stats.Docs++
		stats.Chunks += len(chunks)
	}
	return stats, nil
}

// embedChunks embeds each piece with a bounded worker pool, preserving chunk
// order by index.
func (g *Ingester) embedChunks(ctx context.Context, doc string, pieces []string) ([]Chunk, error) {
	chunks := make([]Chunk, len(pieces))
	var mu sync.Mutex

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(embedWorkers)
	for i, piece := range pieces {
		eg.Go(func() error {
			vec, err := g.llm.EmbedText(ctx, piece)
			if err != nil {
				return fmt.Errorf("failed to embed %s#%d: %w", doc, i, err)
			}
			mu.Lock()
			chunks[i] = Chunk{Doc: doc, ChunkIdx: i, Text: piece, Embedding: normalize(vec)}
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// htmlToText extracts the visible text of an HTML document, dropping script
// and style content.
func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript").Remove()

	var blocks []string
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, td, pre").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			blocks = append(blocks, t)
		}
	})
	if len(blocks) == 0 {
		return strings.TrimSpace(doc.Text()), nil
	}
	return strings.Join(blocks, "\n\n"), nil
}

// chunkText packs paragraphs into chunks of at most maxChars. A single
// paragraph longer than the limit becomes its own chunk rather than being
// split mid-sentence.
func chunkText(text string, maxChars int) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(para)+2 > maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		if current.Len() >= maxChars {
			flush()
		}
	}
	flush()
	return chunks
}
