package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/jonathan/voice-autopilot/internal/llm"
	"github.com/jonathan/voice-autopilot/internal/types"
)

// Retriever answers similarity queries over the chunk index, caching results
// per query until the index changes.
type Retriever struct {
	index *Index
	llm   llm.Client

	mu    sync.Mutex
	cache map[string][]types.EvidenceHit
}

func NewRetriever(index *Index, client llm.Client) *Retriever {
	return &Retriever{
		index: index,
		llm:   client,
		cache: make(map[string][]types.EvidenceHit),
	}
}

// Retrieve returns the topK most similar chunks for the query, ranked by
// cosine similarity. An empty index yields an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]types.EvidenceHit, error) {
	key := queryKey(query, topK)
	r.mu.Lock()
	if hits, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return hits, nil
	}
	r.mu.Unlock()

	chunks, err := r.index.All()
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return []types.EvidenceHit{}, nil
	}

	vec, err := r.llm.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	qv := normalize(vec)

	hits := make([]types.EvidenceHit, 0, len(chunks))
	for _, c := range chunks {
		hits = append(hits, types.EvidenceHit{
			Doc:   c.Doc,
			Chunk: c.ChunkIdx,
			Score: roundScore(dot(qv, c.Embedding)),
			Text:  c.Text,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK < len(hits) {
		hits = hits[:topK]
	}

	r.mu.Lock()
	r.cache[key] = hits
	r.mu.Unlock()
	return hits, nil
}

// ClearCache drops cached results. Call after re-ingesting the knowledge
// base.
func (r *Retriever) ClearCache() {
	r.mu.Lock()
	r.cache = make(map[string][]types.EvidenceHit)
	r.mu.Unlock()
}

func queryKey(query string, topK int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s::%d", query, topK)))
	return hex.EncodeToString(sum[:])[:16]
}

// normalize scales a vector to unit length so dot products are cosine
// similarities.
func normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func roundScore(s float64) float64 {
	return math.Round(s*10000) / 10000
}
