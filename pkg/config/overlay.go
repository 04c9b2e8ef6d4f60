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

	"github.com/hashicorp/consul/api"
	"gopkg.in/yaml.v3"
)

// LoadConsulOverlay fetches a YAML-encoded Policy from a Consul KV key
// and merges it onto base, for operators who want to tune autonomy
// defaults and the tool whitelist without a redeploy (spec §6
// "optional remote overlay"). It is a no-op if addr or key is empty.
func LoadConsulOverlay(base Policy, addr, key string) (Policy, error) {
	if addr == "" || key == "" {
		return base, nil
	}

	clientCfg := api.DefaultConfig()
	clientCfg.Address = addr
	client, err := api.NewClient(clientCfg)
	if err != nil {
		return base, fmt.Errorf("config: consul client for %s: %w", addr, err)
	}

	pair, _, err := client.KV().Get(key, nil)
	if err != nil {
		return base, fmt.Errorf("config: consul KV get %s: %w", key, err)
	}
	if pair == nil {
		return base, nil
	}

	var overlay Policy
	if err := yaml.Unmarshal(pair.Value, &overlay); err != nil {
		return base, fmt.Errorf("config: parse consul overlay at %s: %w", key, err)
	}

	merged := base
	if len(overlay.AutonomyDefaults) > 0 {
		if merged.AutonomyDefaults == nil {
			merged.AutonomyDefaults = make(map[string]string, len(overlay.AutonomyDefaults))
		}
		for k, v := range overlay.AutonomyDefaults {
			merged.AutonomyDefaults[k] = v
		}
	}
	if len(overlay.ToolWhitelist) > 0 {
		merged.ToolWhitelist = overlay.ToolWhitelist
	}
	return merged, nil
}
