// pkg/registry/schema.go
package registry

import "encoding/json"

// RuleCatalog is the on-disk catalogue of monitoring rule descriptors loaded at startup.
// Rules stay raw so each one can be schema-validated on its own.
type RuleCatalog struct {
	Version     string            `json:"version"`
	LastUpdated string            `json:"lastUpdated"`
	Rules       []json.RawMessage `json:"rules"`
}

// RuleHeader is the subset of a descriptor the catalogue tooling needs to index it.
type RuleHeader struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Domain  string `json:"domain"`
	Enabled *bool  `json:"enabled,omitempty"`
}
