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

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is the operator-editable tuning surface that sits on top of
// the process-environment defaults in Config: autonomy defaults per
// intent category, and the set of tools a Run is permitted to expose
// to the model.
type Policy struct {
	// AutonomyDefaults maps a recognized intent label (e.g.
	// "bulk_operation", "exploratory") to its starting autonomy level,
	// used when a conversation has no feedback history yet.
	AutonomyDefaults map[string]string `yaml:"autonomy_defaults"`
	// ToolWhitelist, when non-empty, restricts the Tool Registry
	// entries exposed to the model to this set (spec §4.4 cache
	// whitelist is separate and unaffected).
	ToolWhitelist []string `yaml:"tool_whitelist"`
}

// LoadPolicy reads a YAML policy file from path. A missing file
// yields an empty Policy rather than an error: the policy overlay is
// optional tuning, not a required input.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Policy{}, nil
		}
		return Policy{}, fmt.Errorf("config: read policy file %s: %w", path, err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("config: parse policy file %s: %w", path, err)
	}
	return p, nil
}
