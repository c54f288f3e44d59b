package dataproduct

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stratomesh/stratomesh/agent"
	"github.com/stratomesh/stratomesh/core"
	"github.com/stratomesh/stratomesh/registry"
)

// Agent names registered by RegisterAgents.
const (
	ProfilerAgent = "source_profiler"
	DrafterAgent  = "contract_drafter"
	AuditorAgent  = "quality_auditor"
)

// Methods served by the onboarding agents.
const (
	MethodProfileSource = "profile_source"
	MethodDraftContract = "draft_contract"
	MethodAuditQuality  = "audit_quality"
)

// ProfileKey is the context key under which the source profile is propagated
// to downstream steps, alongside the contract under core.ContractKey.
const ProfileKey = "source_profile"

// draftVersion is the version stamped on freshly drafted contracts.
const draftVersion = "1.0.0"

// Profile summarizes what the profiler learned about a declared source.
type Profile struct {
	Source  string   `json:"source" yaml:"source"`
	System  string   `json:"system" yaml:"system"`
	Dataset string   `json:"dataset" yaml:"dataset"`
	Columns []Column `json:"columns,omitempty" yaml:"columns,omitempty"`
}

// ProfileInput is the typed input of profile_source.
type ProfileInput struct {
	Source  string   `json:"source" description:"Locator of the source system, e.g. pg://warehouse/orders"`
	Columns []string `json:"columns,omitempty" description:"Declared columns as name or name:type pairs"`
}

// DraftInput is the typed input of draft_contract.
type DraftInput struct {
	Product string `json:"product" description:"Data product name"`
	Owner   string `json:"owner,omitempty" description:"Owning team or steward"`
	Domain  string `json:"domain,omitempty" description:"Business domain of the product"`
}

// RegisterAgents installs the three onboarding agents into the registry. The
// agents are stateless, so their handles are shared across workflows. The
// call is idempotent.
func RegisterAgents(reg *registry.Registry) error {
	for _, a := range []*agent.FuncAgent{NewProfiler(), NewDrafter(), NewAuditor()} {
		if err := reg.Register(a.Spec(nil)); err != nil {
			return err
		}
	}
	return nil
}

// NewProfiler builds the source_profiler agent. It derives system, dataset
// and column layout from the declared source locator.
func NewProfiler() *agent.FuncAgent {
	return agent.NewFuncAgent(ProfilerAgent, func(o *agent.Options) {
		o.ConcurrencySafe = true
	}).HandleStruct(MethodProfileSource, "Profile a declared data source", ProfileInput{}, profileSource)
}

// NewDrafter builds the contract_drafter agent. It drafts a versioned data
// contract from the request fields and the propagated source profile, and
// surfaces the draft under core.ContractKey for downstream steps.
func NewDrafter() *agent.FuncAgent {
	return agent.NewFuncAgent(DrafterAgent, func(o *agent.Options) {
		o.ConcurrencySafe = true
	}).HandleStruct(MethodDraftContract, "Draft a data contract for the product", DraftInput{}, draftContract)
}

// NewAuditor builds the quality_auditor agent. It validates the contract
// propagated through the workflow context.
func NewAuditor() *agent.FuncAgent {
	return agent.NewFuncAgent(AuditorAgent, func(o *agent.Options) {
		o.ConcurrencySafe = true
	}).Handle(core.Capability{
		Method:      MethodAuditQuality,
		Description: "Audit the drafted contract for governance readiness",
	}, auditQuality)
}

func profileSource(_ context.Context, input map[string]any, _ map[string]any) (*core.AgentResult, error) {
	source, _ := input["source"].(string)
	if source == "" {
		return nil, fmt.Errorf("source must not be empty")
	}

	system, dataset := splitLocator(source)
	profile := Profile{
		Source:  source,
		System:  system,
		Dataset: dataset,
		Columns: parseColumns(input["columns"]),
	}

	return &core.AgentResult{
		Output: profile,
		Extras: map[string]any{ProfileKey: profile},
	}, nil
}

func draftContract(_ context.Context, input map[string]any, snapshot map[string]any) (*core.AgentResult, error) {
	product, _ := input["product"].(string)
	if product == "" {
		return nil, fmt.Errorf("product must not be empty")
	}
	owner, _ := input["owner"].(string)
	domain, _ := input["domain"].(string)

	contract := Contract{
		Product:   product,
		Version:   draftVersion,
		Owner:     owner,
		Domain:    domain,
		DraftedAt: time.Now().UTC(),
	}
	if profile, ok := snapshot[ProfileKey].(Profile); ok {
		contract.Source = profile.Source
		contract.Schema = profile.Columns
	}

	return &core.AgentResult{
		Output: contract,
		Extras: map[string]any{core.ContractKey: contract},
	}, nil
}

func auditQuality(_ context.Context, _ map[string]any, snapshot map[string]any) (*core.AgentResult, error) {
	raw, ok := snapshot[core.ContractKey]
	if !ok {
		return nil, fmt.Errorf("no %s in workflow context, draft a contract first", core.ContractKey)
	}
	contract, ok := contractFrom(raw)
	if !ok {
		return nil, fmt.Errorf("unexpected %s payload of type %T", core.ContractKey, raw)
	}

	var missing []string
	if contract.Product == "" {
		missing = append(missing, "product")
	}
	if contract.Version == "" {
		missing = append(missing, "version")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("contract rejected, missing %s", strings.Join(missing, ", "))
	}

	return &core.AgentResult{Output: assess(contract)}, nil
}

// splitLocator derives the system and dataset from a source locator of the
// form system://path/to/dataset. Locators without a scheme count as files.
func splitLocator(source string) (system, dataset string) {
	rest := source
	if i := strings.Index(source, "://"); i >= 0 {
		system = source[:i]
		rest = source[i+3:]
	} else {
		system = "file"
	}

	rest = strings.TrimRight(rest, "/")
	if j := strings.LastIndex(rest, "/"); j >= 0 {
		dataset = rest[j+1:]
	} else {
		dataset = rest
	}
	return system, dataset
}

// parseColumns turns the declared columns input into typed columns. Entries
// are "name" or "name:type"; untyped entries default to string.
func parseColumns(v any) []Column {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}

	columns := make([]Column, 0, len(raw))
	for _, entry := range raw {
		s, ok := entry.(string)
		if !ok || s == "" {
			continue
		}
		name, typ, found := strings.Cut(s, ":")
		if !found || typ == "" {
			typ = "string"
		}
		columns = append(columns, Column{Name: name, Type: typ})
	}
	if len(columns) == 0 {
		return nil
	}
	return columns
}
