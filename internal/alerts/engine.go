// Package alerts provides the CEL-Go based alert rule engine over
// branch performance metrics.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/uuid"

	"github.com/openmfb/kestrel/internal/domain"
)

// Engine compiles and evaluates alert rules. Rules are boolean CEL
// expressions over one branch's metrics; a true result fires an alert
// event for that branch.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    *domain.AlertRule
	Program cel.Program
}

// NewEngine creates a new alert rule engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// CEL environment exposing one branch's metrics per evaluation
	env, err := cel.NewEnv(
		cel.Variable("metrics", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("branch", cel.StringType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("repayment_rate", cel.DoubleType),
		cel.Variable("total_disbursed", cel.DoubleType),
		cel.Variable("loans_processed", cel.IntType),
		cel.Variable("active_loans", cel.IntType),
		cel.Variable("completed_loans", cel.IntType),
		cel.Variable("defaulted_loans", cel.IntType),
		cel.Variable("credit_officers", cel.IntType),
		cel.Variable("customers", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded
// engine rules.
func (e *Engine) ValidateRule(rule *domain.AlertRule) error {
	if rule == nil {
		return fmt.Errorf("alert rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(rule *domain.AlertRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	e.compiledRules[rule.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(rules []*domain.AlertRule) error {
	for _, rule := range rules {
		if rule.Enabled {
			if err := e.LoadRule(rule); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears all existing rules and loads new ones. This
// enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(rules []*domain.AlertRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		compiled, err := e.compileRule(rule)
		if err != nil {
			return err
		}
		newRules[rule.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// RemoveRule unloads a rule by ID.
func (e *Engine) RemoveRule(ruleID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.compiledRules, ruleID)
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the currently loaded rules.
func (e *Engine) GetLoadedRules() []*domain.AlertRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.AlertRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Rule)
	}
	return rules
}

// EvaluateBranches runs every loaded rule against every branch in
// parallel and returns the fired alert events. Evaluation errors are
// recorded as events with the rule's severity so a broken rule is
// visible rather than silent.
func (e *Engine) EvaluateBranches(ctx context.Context, metrics []domain.BranchPerformanceMetrics) []domain.AlertEvent {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 || len(metrics) == 0 {
		return nil
	}

	var mu sync.Mutex
	var events []domain.AlertEvent

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for _, rule := range rules {
		for _, m := range metrics {
			wg.Add(1)
			go func(r *CompiledRule, m domain.BranchPerformanceMetrics) {
				defer wg.Done()

				sem <- struct{}{}        // Acquire
				defer func() { <-sem }() // Release

				event, fired := e.evaluateRule(r, m)
				if fired {
					mu.Lock()
					events = append(events, event)
					mu.Unlock()
				}
			}(rule, m)
		}
	}

	wg.Wait()

	return events
}

// evaluateRule evaluates one rule against one branch.
func (e *Engine) evaluateRule(rule *CompiledRule, m domain.BranchPerformanceMetrics) (domain.AlertEvent, bool) {
	activation := map[string]any{
		"metrics": map[string]any{
			"branch":          m.BranchName,
			"score":           m.PerformanceScore,
			"repayment_rate":  m.RepaymentRate,
			"total_disbursed": m.TotalAmountDisbursed,
			"loans_processed": m.TotalLoansProcessed,
			"active_loans":    m.ActiveLoans,
			"completed_loans": m.CompletedLoans,
			"defaulted_loans": m.DefaultedLoans,
			"credit_officers": m.TotalCreditOfficers,
			"customers":       m.TotalCustomers,
		},
		"branch":          m.BranchName,
		"score":           m.PerformanceScore,
		"repayment_rate":  m.RepaymentRate,
		"total_disbursed": m.TotalAmountDisbursed,
		"loans_processed": m.TotalLoansProcessed,
		"active_loans":    m.ActiveLoans,
		"completed_loans": m.CompletedLoans,
		"defaulted_loans": m.DefaultedLoans,
		"credit_officers": m.TotalCreditOfficers,
		"customers":       m.TotalCustomers,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		return domain.AlertEvent{
			ID:        uuid.New().String(),
			RuleID:    rule.Rule.ID,
			RuleName:  rule.Rule.Name,
			Branch:    m.BranchName,
			Severity:  rule.Rule.Severity,
			Score:     m.PerformanceScore,
			Message:   fmt.Sprintf("evaluation error: %v", err),
			CreatedAt: time.Now().UTC(),
		}, true
	}

	fired, ok := out.(types.Bool)
	if !ok || !bool(fired) {
		return domain.AlertEvent{}, false
	}

	return domain.AlertEvent{
		ID:        uuid.New().String(),
		RuleID:    rule.Rule.ID,
		RuleName:  rule.Rule.Name,
		Branch:    m.BranchName,
		Severity:  rule.Rule.Severity,
		Score:     m.PerformanceScore,
		Message:   fmt.Sprintf("%s fired for branch %s (score %.2f)", rule.Rule.Name, m.BranchName, m.PerformanceScore),
		CreatedAt: time.Now().UTC(),
	}, true
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(rule *domain.AlertRule) (*CompiledRule, error) {
	if rule.Expression == "" {
		return nil, fmt.Errorf("rule %s: expression is required", rule.ID)
	}

	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	// Alert rules are predicates: anything but bool is a config error.
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{
		Rule:    rule,
		Program: program,
	}, nil
}
