package dataproduct

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Contract is the data contract drafted for one onboarded product. It is
// propagated to downstream steps under core.ContractKey and written as a
// YAML artifact when onboarding completes.
type Contract struct {
	Product   string    `json:"product" yaml:"product"`
	Version   string    `json:"version" yaml:"version"`
	Owner     string    `json:"owner,omitempty" yaml:"owner,omitempty"`
	Domain    string    `json:"domain,omitempty" yaml:"domain,omitempty"`
	Source    string    `json:"source,omitempty" yaml:"source,omitempty"`
	Schema    []Column  `json:"schema,omitempty" yaml:"schema,omitempty"`
	DraftedAt time.Time `json:"drafted_at" yaml:"drafted_at"`
}

// Column is one declared or profiled column of a data product.
type Column struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// YAML renders the contract in the form written to the artifact store.
func (c Contract) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// contractFrom coerces a propagated context value into a Contract. Agents in
// this package pass the struct itself; foreign agents may surface a plain
// map under core.ContractKey instead.
func contractFrom(v any) (Contract, bool) {
	switch c := v.(type) {
	case Contract:
		return c, true
	case map[string]any:
		var out Contract
		out.Product, _ = c["product"].(string)
		out.Version, _ = c["version"].(string)
		out.Owner, _ = c["owner"].(string)
		out.Domain, _ = c["domain"].(string)
		out.Source, _ = c["source"].(string)
		return out, true
	default:
		return Contract{}, false
	}
}

// Assessment is the quality auditor's verdict over a propagated contract.
// Passed is false when any check failed; hard requirements (product and
// version) additionally fail the audit step itself.
type Assessment struct {
	Passed bool    `json:"passed" yaml:"passed"`
	Checks []Check `json:"checks" yaml:"checks"`
}

// Check is one audit finding.
type Check struct {
	Name   string `json:"name" yaml:"name"`
	Passed bool   `json:"passed" yaml:"passed"`
	Note   string `json:"note,omitempty" yaml:"note,omitempty"`
}

// YAML renders the assessment in the form written to the artifact store.
func (a Assessment) YAML() ([]byte, error) {
	return yaml.Marshal(a)
}

func assess(c Contract) Assessment {
	checks := []Check{
		check("product_declared", c.Product != "", "declare a product name"),
		check("version_declared", c.Version != "", "declare a contract version"),
		check("owner_assigned", c.Owner != "", "assign a steward before publication"),
		check("schema_present", len(c.Schema) > 0, "declare at least one column"),
	}

	passed := true
	for _, ch := range checks {
		if !ch.Passed {
			passed = false
		}
	}
	return Assessment{Passed: passed, Checks: checks}
}

func check(name string, passed bool, note string) Check {
	c := Check{Name: name, Passed: passed}
	if !passed {
		c.Note = note
	}
	return c
}
