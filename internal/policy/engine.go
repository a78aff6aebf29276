package policy

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

const decisionQuery = "data.sitebudget.gateway.decision"

//go:embed default.rego
var defaultPolicy string

// Engine evaluates the gateway policy with OPA. The built-in module is
// always loaded; *.rego files from policyDir are compiled alongside it.
type Engine struct {
	policyDir string
	logger    zerolog.Logger

	mu      sync.RWMutex
	query   rego.PreparedEvalQuery
	modules map[string]string // file name -> source
}

// NewEngine creates a new OPA engine
func NewEngine(policyDir string, logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policyDir: policyDir,
		logger:    logger.With().Str("component", "policy").Logger(),
	}

	if err := e.Reload(); err != nil {
		return nil, err
	}

	e.logger.Info().Str("policy_dir", policyDir).Int("modules", len(e.modules)).Msg("Policy engine initialized")
	return e, nil
}

// Reload re-reads policy files and re-prepares the decision query. On error
// the previously loaded policy stays in effect.
func (e *Engine) Reload() error {
	modules, err := e.loadPolicies()
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	query, err := prepareQuery(modules)
	if err != nil {
		return fmt.Errorf("failed to prepare decision query: %w", err)
	}

	e.mu.Lock()
	e.modules = modules
	e.query = query
	e.mu.Unlock()

	e.logger.Debug().Int("modules", len(modules)).Msg("Policies loaded")
	return nil
}

// loadPolicies parses the built-in module and every .rego file in policyDir
func (e *Engine) loadPolicies() (map[string]string, error) {
	modules := make(map[string]string)

	if _, err := ast.ParseModule("default.rego", defaultPolicy); err != nil {
		return nil, fmt.Errorf("failed to parse built-in policy: %w", err)
	}
	modules["default.rego"] = defaultPolicy

	if e.policyDir == "" {
		return modules, nil
	}

	if _, err := os.Stat(e.policyDir); err != nil {
		return nil, fmt.Errorf("policy directory: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(e.policyDir, "*.rego"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob policy files: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file %s: %w", file, err)
		}

		module, err := ast.ParseModule(file, string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse policy file %s: %w", file, err)
		}

		modules[file] = string(content)
		e.logger.Debug().Str("file", file).Str("package", module.Package.Path.String()).Msg("Loaded policy module")
	}

	return modules, nil
}

func prepareQuery(modules map[string]string) (rego.PreparedEvalQuery, error) {
	opts := []func(*rego.Rego){rego.Query(decisionQuery)}
	for name, source := range modules {
		opts = append(opts, rego.Module(name, source))
	}
	return rego.New(opts...).PrepareForEval(context.Background())
}

// Evaluate returns the policy decision for facts
func (e *Engine) Evaluate(ctx context.Context, facts Facts) (*Decision, error) {
	startTime := time.Now()

	e.mu.RLock()
	query := e.query
	e.mu.RUnlock()

	results, err := query.Eval(ctx, rego.EvalInput(facts.input()))
	if err != nil {
		return nil, fmt.Errorf("decision query evaluation failed: %w", err)
	}

	e.logger.Debug().
		Str("site", facts.Site).
		Dur("duration", time.Since(startTime)).
		Msg("Decision query evaluated")

	if len(results) == 0 {
		return nil, fmt.Errorf("no results from decision query")
	}
	if len(results[0].Expressions) == 0 {
		return nil, fmt.Errorf("no expressions in decision query result")
	}

	resultBytes, err := json.Marshal(results[0].Expressions[0].Value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal decision: %w", err)
	}

	var decision Decision
	if err := json.Unmarshal(resultBytes, &decision); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decision: %w", err)
	}

	return &decision, nil
}
