// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

func LoadCatalog(path string) (*RuleCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cat RuleCatalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse rule catalog %s: %w", path, err)
	}
	return &cat, nil
}

// SaveCatalog writes the catalogue atomically through a temp file in the same directory.
func SaveCatalog(cat *RuleCatalog, path string) error {
	cat.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".rule-catalog-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Headers decodes the id, name and domain of every rule in the catalogue.
func (c *RuleCatalog) Headers() ([]RuleHeader, error) {
	out := make([]RuleHeader, 0, len(c.Rules))
	for i, raw := range c.Rules {
		var h RuleHeader
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		out = append(out, h)
	}
	return out, nil
}

// IndexOf returns the position of the rule with id, or -1.
func (c *RuleCatalog) IndexOf(id string) int {
	headers, err := c.Headers()
	if err != nil {
		return -1
	}
	for i, h := range headers {
		if h.ID == id {
			return i
		}
	}
	return -1
}
