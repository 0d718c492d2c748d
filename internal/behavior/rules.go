package behavior

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"

	"persistkit/internal/core/apperror"
	"persistkit/internal/dbcontext"
	"persistkit/internal/tracking"
)

// Rule is a CEL expression that must hold for every added or modified entity
// of one type. The expression sees the column values as `row` and the entry
// state ("Added" or "Modified") as `state`.
//
//	behavior.RuleFor[Product]("price-positive", `row.price > 0.0`)
type Rule struct {
	Entity  string `yaml:"entity"`
	Name    string `yaml:"name"`
	Expr    string `yaml:"expr"`
	Message string `yaml:"message"`
}

// RuleFor builds a rule for entity type T.
func RuleFor[T any](name, expr string) Rule {
	return Rule{Entity: reflect.TypeFor[T]().Name(), Name: name, Expr: expr}
}

type compiledRule struct {
	Rule
	prg cel.Program
}

// Rules rejects saves that break a rule before anything reaches the store.
type Rules struct {
	byEntity map[string][]compiledRule
}

// NewRules compiles rules. Expressions must have a bool result.
func NewRules(rules ...Rule) (*Rules, error) {
	env, err := cel.NewEnv(
		cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("state", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create rule environment: %w", err)
	}

	r := &Rules{byEntity: make(map[string][]compiledRule)}
	for _, rule := range rules {
		ast, iss := env.Compile(rule.Expr)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("compile rule %s: %w", rule.Name, iss.Err())
		}
		if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
			return nil, fmt.Errorf("rule %s must be a bool expression, got %s", rule.Name, t)
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("program rule %s: %w", rule.Name, err)
		}
		r.byEntity[rule.Entity] = append(r.byEntity[rule.Entity], compiledRule{Rule: rule, prg: prg})
	}
	return r, nil
}

func (r *Rules) Name() string { return "rules" }

func (r *Rules) OnBeforeSaveChanges(_ context.Context, c *dbcontext.Context, _ time.Time) error {
	for _, e := range c.ChangeTracker().EntriesIn(tracking.Added, tracking.Modified) {
		rules := r.byEntity[e.EntityType().Name()]
		if len(rules) == 0 {
			continue
		}
		vars := map[string]any{
			"row":   ruleRow(e.CurrentValues()),
			"state": e.State().String(),
		}
		for _, rule := range rules {
			out, _, err := rule.prg.Eval(vars)
			if err != nil {
				return fmt.Errorf("evaluate rule %s on %s: %w", rule.Name, e.EntityType().Name(), err)
			}
			if ok, _ := out.Value().(bool); ok {
				continue
			}
			msg := rule.Message
			if msg == "" {
				msg = fmt.Sprintf("%s violates rule %s", e.EntityType().Name(), rule.Name)
			}
			return apperror.NewValidation(msg).
				WithDetail("rule", rule.Name).
				WithDetail("entity", e.EntityType().Name())
		}
	}
	return nil
}

// ruleRow converts column values into types CEL understands. Owned
// translated properties are left out.
func ruleRow(values map[string]any) map[string]any {
	row := make(map[string]any, len(values))
	for k, v := range values {
		if strings.HasPrefix(k, "#") {
			continue
		}
		switch x := v.(type) {
		case uuid.UUID:
			row[k] = x.String()
		case int:
			row[k] = int64(x)
		case int32:
			row[k] = int64(x)
		case float32:
			row[k] = float64(x)
		case nil, bool, string, int64, float64, time.Time:
			row[k] = x
		case fmt.Stringer:
			row[k] = x.String()
		default:
			row[k] = fmt.Sprint(x)
		}
	}
	return row
}
