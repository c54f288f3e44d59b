// Package dataproduct ships the built-in data product onboarding composite:
// a pre-built three-step workflow (profile the source, draft a data
// contract, audit the draft) together with the agents that serve it.
//
// The package doubles as the reference for writing agent pipelines on top
// of the engine: the profiler surfaces its findings through result Extras,
// the drafter reads them from the context snapshot and propagates the
// contract under core.ContractKey, and the auditor validates what arrived,
// relying purely on engine-driven context propagation rather than direct
// agent-to-agent wiring.
//
// Typical use:
//
//	reg := registry.New()
//	_ = dataproduct.RegisterAgents(reg)
//	eng := engine.New(reg)
//
//	onboarder := dataproduct.NewOnboarder(eng, artifact.NewInMemoryStore())
//	report, err := onboarder.Onboard(ctx, dataproduct.Request{
//	    Name:   "orders",
//	    Source: "pg://warehouse/orders",
//	    Owner:  "data-platform",
//	})
package dataproduct
