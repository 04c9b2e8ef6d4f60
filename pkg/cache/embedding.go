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

package cache

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// encodeEmbedding packs a float32 vector into a little-endian byte blob
// for SQLite storage.
func encodeEmbedding(vec []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	for _, v := range vec {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("cache: encode embedding: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("cache: embedding blob has invalid length %d", len(b))
	}
	n := len(b) / 4
	vec := make([]float32, n)
	r := bytes.NewReader(b)
	for i := 0; i < n; i++ {
		if err := binary.Read(r, binary.LittleEndian, &vec[i]); err != nil {
			return nil, fmt.Errorf("cache: decode embedding: %w", err)
		}
	}
	return vec, nil
}
