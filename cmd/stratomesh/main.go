package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/stratomesh/stratomesh"
	"github.com/stratomesh/stratomesh/artifact"
	"github.com/stratomesh/stratomesh/audit"
	"github.com/stratomesh/stratomesh/config"
	"github.com/stratomesh/stratomesh/core"
	"github.com/stratomesh/stratomesh/dataproduct"
	"github.com/stratomesh/stratomesh/engine"
	"github.com/stratomesh/stratomesh/logging"
	"gopkg.in/yaml.v3"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "stratomesh",
		Short: "Agent Workflow Orchestration",
		Long:  "StratoMesh coordinates registered agents through declarative, audited workflows.",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ./stratomesh.yaml)")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newOnboardCommand())
	rootCmd.AddCommand(newAgentsCommand())
	rootCmd.AddCommand(newAuditCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildMesh assembles a StratoMesh from the loaded configuration. The returned
// cleanup func closes any durable stores that were opened.
func buildMesh(cfg *config.Config) (*stratomesh.StratoMesh, func(), error) {
	logger := logging.NewSlogLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, false)

	var closers []func() error

	var auditLog core.AuditLog
	if cfg.Audit.Driver == config.DriverSQLite {
		log, err := audit.NewSQLiteLog(cfg.Audit.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open audit store: %w", err)
		}
		closers = append(closers, log.Close)
		auditLog = log
	} else {
		auditLog = audit.NewInMemoryLog()
	}

	var artifacts core.ArtifactStore
	if cfg.Artifacts.Driver == config.DriverSQLite {
		store, err := artifact.NewSQLiteStore(cfg.Artifacts.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open artifact store: %w", err)
		}
		closers = append(closers, store.Close)
		artifacts = store
	} else {
		artifacts = artifact.NewInMemoryStore()
	}

	m := stratomesh.New(func(o *stratomesh.Options) {
		o.EngineConfig = engine.Config{
			MaxConcurrentWorkflows: cfg.Engine.MaxConcurrentWorkflows,
			StepTimeout:            cfg.Engine.StepTimeout,
		}
		o.AuditLog = auditLog
		o.ArtifactStore = artifacts
		o.Logger = logger
	})

	cleanup := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	return m, cleanup, nil
}

// workflowFile is the on-disk YAML shape of a workflow definition.
type workflowFile struct {
	Name            string     `yaml:"name"`
	ContinueOnError bool       `yaml:"continue_on_error"`
	Steps           []stepFile `yaml:"steps"`
}

type stepFile struct {
	Agent  string         `yaml:"agent"`
	Method string         `yaml:"method"`
	Input  map[string]any `yaml:"input"`
	Typed  bool           `yaml:"typed"`
}

// loadDefinition reads a workflow YAML file into an engine definition. Steps
// marked typed opt into schema validation at admission.
func loadDefinition(path string) (core.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.WorkflowDefinition{}, fmt.Errorf("failed to read workflow file: %w", err)
	}

	var file workflowFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return core.WorkflowDefinition{}, fmt.Errorf("failed to parse workflow file: %w", err)
	}

	def := core.WorkflowDefinition{
		Name:            file.Name,
		ContinueOnError: file.ContinueOnError,
	}

	for _, s := range file.Steps {
		step := core.Step{AgentName: s.Agent, Method: s.Method}
		if len(s.Input) > 0 {
			if s.Typed {
				step.Input = core.TypedInput{Fields: s.Input}
			} else {
				step.Input = core.OpaqueInput{Fields: s.Input}
			}
		}
		def.Steps = append(def.Steps, step)
	}

	return def, nil
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Execute a workflow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			def, err := loadDefinition(args[0])
			if err != nil {
				return err
			}

			m, cleanup, err := buildMesh(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := m.Orchestrate(context.Background(), def)
			if err != nil {
				return fmt.Errorf("workflow rejected: %w", err)
			}

			if asJSON {
				return printJSON(result)
			}

			printResult(result)
			return nil
		},
	}

	cmd.Flags().Bool("json", false, "Print the full result as JSON")
	return cmd
}

func newOnboardCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "onboard <name> <source>",
		Short: "Onboard a data product (profile, draft contract, audit quality)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			domain, _ := cmd.Flags().GetString("domain")
			columns, _ := cmd.Flags().GetStringSlice("columns")
			continueOnError, _ := cmd.Flags().GetBool("continue-on-error")
			showContract, _ := cmd.Flags().GetBool("show-contract")

			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			m, cleanup, err := buildMesh(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := m.OnboardDataProduct(context.Background(), dataproduct.Request{
				Name:            args[0],
				Source:          args[1],
				Owner:           owner,
				Domain:          domain,
				Columns:         columns,
				ContinueOnError: continueOnError,
			})
			if err != nil {
				return fmt.Errorf("onboarding rejected: %w", err)
			}

			fmt.Printf("Product %q onboarded with status: %s\n", args[0], report.Status)
			fmt.Printf("Audit ref: %s\n", report.AuditRef)
			printSteps(report.Steps)

			if len(report.Artifacts) > 0 {
				fmt.Printf("Artifacts: %s\n", strings.Join(report.Artifacts, ", "))
			}

			if showContract {
				data, err := m.Artifacts().Get(report.AuditRef, dataproduct.ContractArtifact)
				if err != nil {
					return fmt.Errorf("failed to read contract artifact: %w", err)
				}
				fmt.Printf("\n%s", data)
			}

			return nil
		},
	}

	cmd.Flags().String("owner", "", "Owning team recorded in the contract")
	cmd.Flags().String("domain", "", "Business domain recorded in the contract")
	cmd.Flags().StringSlice("columns", nil, "Source columns as name:type pairs")
	cmd.Flags().Bool("continue-on-error", false, "Keep executing after a failed step")
	cmd.Flags().Bool("show-contract", false, "Print the drafted contract YAML")
	return cmd
}

func newAgentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List registered agents and their capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			m, cleanup, err := buildMesh(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			for _, name := range m.Registry().Names() {
				spec, ok := m.Registry().Spec(name)
				if !ok {
					continue
				}
				fmt.Println(name)
				for _, c := range spec.Capabilities {
					fmt.Printf("  %s  %s\n", c.Method, c.Description)
				}
			}

			return nil
		},
	}
}

func newAuditCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "audit <audit-ref>",
		Short: "Show the audit trail of a workflow execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if cfg.Audit.Driver != config.DriverSQLite {
				return fmt.Errorf("audit inspection requires the %s audit driver", config.DriverSQLite)
			}

			log, err := audit.NewSQLiteLog(cfg.Audit.Path)
			if err != nil {
				return fmt.Errorf("failed to open audit store: %w", err)
			}
			defer log.Close()

			entries, err := log.Entries(args[0])
			if err != nil {
				return fmt.Errorf("failed to read audit trail: %w", err)
			}

			if len(entries) == 0 {
				fmt.Println("No audit entries found.")
				return nil
			}

			for _, e := range entries {
				detail, _ := json.Marshal(e.Detail)
				fmt.Printf("%s  %-17s %s\n", e.Timestamp.Format(time.RFC3339), e.Kind, detail)
			}

			return nil
		},
	}
}

func printResult(result *core.WorkflowResult) {
	fmt.Printf("Workflow %q finished with status: %s\n", result.WorkflowName, result.Status)
	fmt.Printf("Audit ref: %s\n", result.AuditRef)
	printSteps(result.Outcomes)
}

func printSteps(outcomes []core.StepOutcome) {
	for _, o := range outcomes {
		if o.Failed() {
			fmt.Printf("  %d. %s.%s [%s] %s: %s\n", o.Index+1, o.AgentName, o.Method, o.Status, o.Error.Kind, o.Error.Message)
			continue
		}
		fmt.Printf("  %d. %s.%s [%s] (%s)\n", o.Index+1, o.AgentName, o.Method, o.Status, o.Duration.Round(time.Millisecond))
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
