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

package contextbuilder

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// SizeEstimator estimates the serialized byte footprint of context
// sections using a real BPE tokenizer rather than len(string), so the
// MAX_CONTEXT_BYTES budget (spec §6) tracks what the model actually
// sees.
type SizeEstimator struct {
	mu       sync.Mutex
	encoding *tiktoken.Tiktoken
	// bytesPerToken approximates the average encoded-text-to-byte ratio
	// so a token count can stand in for a byte budget.
	bytesPerToken float64
}

// NewSizeEstimator returns an estimator using the cl100k_base encoding,
// shared across every OpenAI-family chat model this runtime targets.
func NewSizeEstimator() (*SizeEstimator, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &SizeEstimator{encoding: enc, bytesPerToken: 4.0}, nil
}

// Tokens returns the token count of text.
func (s *SizeEstimator) Tokens(text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.encoding.Encode(text, nil, nil))
}

// Bytes estimates the serialized byte size text would occupy against
// the MAX_CONTEXT_BYTES budget, from its token count rather than raw
// UTF-8 length, so multi-byte content isn't over-counted relative to
// what the model's tokenizer actually sees.
func (s *SizeEstimator) Bytes(text string) int {
	if text == "" {
		return 0
	}
	tokens := s.Tokens(text)
	return int(float64(tokens) * s.bytesPerToken)
}
