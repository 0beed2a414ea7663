package capability

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/philippgille/chromem-go"
)

// DefaultEmbeddingDimensions is the vector size of the default embedder.
const DefaultEmbeddingDimensions = 256

// HashEmbedder turns text into a normalized bag-of-words vector by hashing
// lowercase tokens into a fixed number of buckets. It is deterministic and
// needs no model download, which makes memory search reproducible in tests.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates an embedder producing vectors of size dims.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims < 8 {
		dims = 8
	}
	return &HashEmbedder{dims: dims}
}

// Embed returns the unit-length vector for text. Bucket 0 is a constant bias
// so empty text still yields a valid vector.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	vec[0] = 1
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum32()
		bucket := 1 + int(sum%uint32(e.dims-1))
		if sum&(1<<31) != 0 {
			vec[bucket] -= 1
		} else {
			vec[bucket] += 1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

// EmbeddingFunc adapts the embedder to chromem collections.
func (e *HashEmbedder) EmbeddingFunc() chromem.EmbeddingFunc {
	return e.Embed
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
