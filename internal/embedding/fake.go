package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"
)

// FakeClient is a deterministic embeddings.EmbedderClient for tests and offline runs.
// Each lower-cased word is hashed into one of Dimensions buckets, so texts sharing
// words land close together and identical texts get identical vectors.
type FakeClient struct {
	Dimensions int
	// Err, when set, is returned by every call.
	Err error

	mu    sync.Mutex
	calls int
}

// NewFakeClient returns a FakeClient producing vectors of the given size.
func NewFakeClient(dimensions int) *FakeClient {
	if dimensions <= 1 {
		dimensions = 64
	}
	return &FakeClient{Dimensions: dimensions}
}

// CreateEmbedding embeds every text independently.
func (c *FakeClient) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = c.embed(text)
	}
	return vectors, nil
}

// Calls reports how many times CreateEmbedding was invoked.
func (c *FakeClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *FakeClient) embed(text string) []float32 {
	v := make([]float32, c.Dimensions)
	// bucket 0 is a bias so empty text still has a direction
	v[0] = 0.1
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[1+int(h.Sum32()%uint32(c.Dimensions-1))] += 1
	}
	var sum float64
	for _, x := range v {
		sum += float64(x * x)
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= norm
	}
	return v
}
