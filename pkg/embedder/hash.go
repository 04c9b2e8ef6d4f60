// Copyright 2025 The OpsCore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// HashEmbedder is a deterministic, dependency-free Embedder used for
// local development and tests. It hashes single tokens into a small
// fixed-width vector so cosine similarity rewards lexical overlap
// without calling out to a real embedding API.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder returns a HashEmbedder producing vectors of the given
// width (defaults to 64 if dims <= 0).
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 64
	}
	return &HashEmbedder{dims: dims}
}

// Dimensions reports the configured vector width.
func (h *HashEmbedder) Dimensions() int { return h.dims }

// Embed hashes each lowercase token of text into a bucket and
// accumulates a count, then L2-normalizes the result.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		sum := fnv.New32a()
		_, _ = sum.Write([]byte(tok))
		bucket := int(sum.Sum32()) % h.dims
		if bucket < 0 {
			bucket += h.dims
		}
		vec[bucket]++
	}
	normalize(vec)
	return vec, nil
}

func normalize(vec []float32) {
	var mag float64
	for _, v := range vec {
		mag += float64(v) * float64(v)
	}
	if mag == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(mag))
	for i := range vec {
		vec[i] *= norm
	}
}
