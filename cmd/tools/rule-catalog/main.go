// cmd/tools/rule-catalog/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"fleet-compliance/internal/models"
	monitoringrules "fleet-compliance/internal/workers/compliance/monitoring-rules"
	"fleet-compliance/pkg/registry"
)

var catalogPath string

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	removeCmd := flag.NewFlagSet("remove", flag.ExitOnError)
	toggleCmd := flag.NewFlagSet("toggle", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	seedCmd := flag.NewFlagSet("seed", flag.ExitOnError)

	for _, fs := range []*flag.FlagSet{addCmd, removeCmd, toggleCmd, validateCmd, listCmd, seedCmd} {
		fs.StringVar(&catalogPath, "path", "configs/rule-catalog.json", "Path to the rule catalogue")
	}

	// Add command flags
	ruleFile := addCmd.String("file", "", "JSON file holding one rule descriptor")
	replace := addCmd.Bool("replace", false, "Replace a rule with the same id")

	// Remove / toggle command flags
	idRemove := removeCmd.String("id", "", "Rule ID to remove")
	idToggle := toggleCmd.String("id", "", "Rule ID to enable or disable")
	enabled := toggleCmd.Bool("enabled", true, "Whether the rule runs")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *ruleFile == "" {
			fmt.Println("Error: -file is required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		err = addRule(*ruleFile, *replace)

	case "remove":
		removeCmd.Parse(os.Args[2:])
		if *idRemove == "" {
			fmt.Println("Error: -id is required for remove.")
			removeCmd.Usage()
			os.Exit(1)
		}
		err = removeRule(*idRemove)

	case "toggle":
		toggleCmd.Parse(os.Args[2:])
		if *idToggle == "" {
			fmt.Println("Error: -id is required for toggle.")
			toggleCmd.Usage()
			os.Exit(1)
		}
		err = toggleRule(*idToggle, *enabled)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		err = validateCatalog()

	case "list":
		listCmd.Parse(os.Args[2:])
		err = listRules()

	case "seed":
		seedCmd.Parse(os.Args[2:])
		err = seedDefaults()

	case "help":
		fallthrough
	default:
		help()
		return
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func loadOrCreate() (*registry.RuleCatalog, error) {
	cat, err := registry.LoadCatalog(catalogPath)
	if err == nil {
		return cat, nil
	}
	if os.IsNotExist(err) {
		return &registry.RuleCatalog{Version: "1.0.0", Rules: []json.RawMessage{}}, nil
	}
	return nil, fmt.Errorf("failed to load catalogue: %w", err)
}

func save(cat *registry.RuleCatalog) error {
	if err := os.MkdirAll(filepath.Dir(catalogPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return registry.SaveCatalog(cat, catalogPath)
}

func addRule(file string, replace bool) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	rule, err := monitoringrules.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}

	cat, err := loadOrCreate()
	if err != nil {
		return err
	}
	// store the parsed rule so a generated id is kept stable
	normalized, err := json.Marshal(rule)
	if err != nil {
		return err
	}
	if i := cat.IndexOf(rule.ID); i >= 0 {
		if !replace {
			return fmt.Errorf("rule with ID %s already exists (use -replace)", rule.ID)
		}
		cat.Rules[i] = normalized
	} else {
		cat.Rules = append(cat.Rules, normalized)
	}
	if err := save(cat); err != nil {
		return err
	}
	fmt.Printf("Added rule: %s (%s, %d levels)\n", rule.ID, rule.Domain, len(rule.EscalationLevels))
	return nil
}

func removeRule(id string) error {
	cat, err := registry.LoadCatalog(catalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalogue: %w", err)
	}
	i := cat.IndexOf(id)
	if i < 0 {
		return fmt.Errorf("rule with ID %s not found", id)
	}
	cat.Rules = append(cat.Rules[:i], cat.Rules[i+1:]...)
	if err := save(cat); err != nil {
		return err
	}
	fmt.Printf("Removed rule: %s\n", id)
	return nil
}

func toggleRule(id string, enabled bool) error {
	cat, err := registry.LoadCatalog(catalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalogue: %w", err)
	}
	i := cat.IndexOf(id)
	if i < 0 {
		return fmt.Errorf("rule with ID %s not found", id)
	}
	rule, err := monitoringrules.Parse(cat.Rules[i])
	if err != nil {
		return err
	}
	rule.Enabled = enabled
	if cat.Rules[i], err = json.Marshal(rule); err != nil {
		return err
	}
	if err := save(cat); err != nil {
		return err
	}
	fmt.Printf("Rule %s enabled=%t\n", id, enabled)
	return nil
}

func validateCatalog() error {
	cat, err := registry.LoadCatalog(catalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalogue: %w", err)
	}
	if len(cat.Rules) == 0 {
		return fmt.Errorf("catalogue contains no rules")
	}

	ids := make(map[string]bool)
	failed := 0
	for i, raw := range cat.Rules {
		rule, err := monitoringrules.Parse(raw)
		if err != nil {
			fmt.Printf("  rule %d: %v\n", i, err)
			failed++
			continue
		}
		if ids[rule.ID] {
			fmt.Printf("  rule %d: duplicate rule ID %s\n", i, rule.ID)
			failed++
		}
		ids[rule.ID] = true
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d rules are invalid", failed, len(cat.Rules))
	}
	fmt.Printf("Catalogue validation passed. Found %d rules.\n", len(cat.Rules))
	return nil
}

func listRules() error {
	cat, err := registry.LoadCatalog(catalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalogue: %w", err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDOMAIN\tTRIGGER\tFREQUENCY\tLEVELS\tENABLED")
	for i, raw := range cat.Rules {
		rule, err := monitoringrules.Parse(raw)
		if err != nil {
			fmt.Fprintf(w, "#%d\t-\t-\t-\t-\tinvalid: %v\n", i, err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n",
			rule.ID, rule.Domain, rule.TriggerCondition, rule.CheckFrequency, levelSummary(rule), rule.Enabled)
	}
	return w.Flush()
}

func levelSummary(rule *models.MonitoringRule) string {
	out := ""
	for i, l := range rule.EscalationLevels {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%d", l.DaysFromExpiry)
	}
	return out
}

// seedDefaults writes the built-in rules that the catalogue does not already hold.
func seedDefaults() error {
	cat, err := loadOrCreate()
	if err != nil {
		return err
	}
	added := 0
	for _, rule := range monitoringrules.DefaultRules() {
		if cat.IndexOf(rule.ID) >= 0 {
			continue
		}
		raw, err := json.Marshal(rule)
		if err != nil {
			return err
		}
		cat.Rules = append(cat.Rules, raw)
		added++
	}
	if err := save(cat); err != nil {
		return err
	}
	fmt.Printf("Seeded %d default rules into %s\n", added, catalogPath)
	return nil
}

func help() {
	fmt.Print(`
Usage: rule-catalog <command> [flags]

Commands:
  add       Validate a rule descriptor and add it to the catalogue
  remove    Remove a rule from the catalogue
  toggle    Enable or disable a rule
  validate  Validate every rule in the catalogue
  list      List the catalogue
  seed      Add the built-in franchise, registration, insurance and emission rules
  help      Show this help message

Examples:
  rule-catalog add -file rules/franchise-fleet.json
  rule-catalog toggle -id environmental-expiry -enabled=false
  rule-catalog validate -path configs/rule-catalog.json

Use 'rule-catalog <command> -h' for more information about a command.
` + "\n")
}
