// Package policy evaluates the simulated policy gates of the demo workflows.
//
// Every gate is a named CEL expression that yields one of the verdict strings
// PASS, DENY or ESCALATE. Rules are compiled once when the evaluator is built;
// evaluation failures fail closed to ESCALATE.
package policy

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/cel-go/cel"
)

// Verdict strings produced by gate rules.
const (
	Pass     = "PASS"
	Deny     = "DENY"
	Escalate = "ESCALATE"
)

// Input is the activation a rule is evaluated against.
type Input struct {
	Workflow string
	Step     string
	Data     map[string]any
	Settings map[string]any
}

func (in Input) activation() map[string]any {
	data := in.Data
	if data == nil {
		data = map[string]any{}
	}
	settings := in.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	return map[string]any{
		"workflow": in.Workflow,
		"step":     in.Step,
		"data":     data,
		"settings": settings,
	}
}

// Evaluator holds the compiled rule catalog.
type Evaluator struct {
	programs map[string]cel.Program
	logger   *slog.Logger
}

// NewEvaluator compiles every rule in the catalog. A rule that does not
// compile is a programming error and fails construction.
func NewEvaluator(rules map[string]string, logger *slog.Logger) (*Evaluator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	env, err := cel.NewEnv(
		cel.Variable("workflow", cel.StringType),
		cel.Variable("step", cel.StringType),
		cel.Variable("data", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("settings", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)

	programs := make(map[string]cel.Program, len(rules))
	for _, name := range names {
		ast, issues := env.Compile(rules[name])
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("compile rule %q: %w", name, issues.Err())
		}
		prg, err := env.Program(ast,
			cel.InterruptCheckFrequency(100),
			cel.CostLimit(10000),
		)
		if err != nil {
			return nil, fmt.Errorf("program rule %q: %w", name, err)
		}
		programs[name] = prg
	}

	return &Evaluator{
		programs: programs,
		logger:   logger.With("component", "policy"),
	}, nil
}

// Rules returns the sorted names of the compiled rules.
func (e *Evaluator) Rules() []string {
	names := make([]string, 0, len(e.programs))
	for name := range e.programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Evaluate runs a rule and returns its verdict.
func (e *Evaluator) Evaluate(rule string, in Input) (string, error) {
	prg, ok := e.programs[rule]
	if !ok {
		return "", fmt.Errorf("unknown rule %q", rule)
	}
	out, _, err := prg.Eval(in.activation())
	if err != nil {
		return "", fmt.Errorf("eval rule %q: %w", rule, err)
	}
	verdict, ok := out.Value().(string)
	if !ok {
		return "", fmt.Errorf("rule %q returned %T, want string", rule, out.Value())
	}
	switch verdict {
	case Pass, Deny, Escalate:
		return verdict, nil
	default:
		return "", fmt.Errorf("rule %q returned unknown verdict %q", rule, verdict)
	}
}

// Verdict is Evaluate with fail-closed error handling: any failure is logged
// and reported as ESCALATE.
func (e *Evaluator) Verdict(rule string, in Input) string {
	v, err := e.Evaluate(rule, in)
	if err != nil {
		e.logger.Warn("gate evaluation failed, escalating", "rule", rule, "workflow", in.Workflow, "error", err)
		return Escalate
	}
	return v
}
