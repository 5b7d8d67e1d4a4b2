package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// MockDim matches the dimensionality of the real provider so mock
// vectors fit the same storage column.
const MockDim = 1536

// MockClient is a deterministic embedding provider for tests and local
// runs: the same text always produces the bit-identical vector.
type MockClient struct {
	dim int
}

func NewMockClient() *MockClient {
	return &MockClient{dim: MockDim}
}

// NewMockClientWithDim returns a mock emitting vectors of the given
// dimension. Useful in tests that keep vectors small.
func NewMockClientWithDim(dim int) *MockClient {
	return &MockClient{dim: dim}
}

func (c *MockClient) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	state := h.Sum64()
	if state == 0 {
		state = 1
	}

	vec := make([]float32, c.dim)
	var norm float64
	for i := range vec {
		// xorshift64: cheap, stateless apart from the seed, and stable
		// across platforms.
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		v := float64(int64(state)) / float64(math.MaxInt64)
		vec[i] = float32(v)
		norm += v * v
	}

	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}
