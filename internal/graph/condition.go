package graph

import (
	"fmt"
	"slices"

	"github.com/google/cel-go/cel"

	"github.com/starford/commentnet/internal/apperr"
	"github.com/starford/commentnet/internal/models"
)

// EdgeCondition decides whether a raw edge enters the multigraph. It sees the edge
// and both endpoint nodes.
type EdgeCondition func(e *Edge, source, target *Node) bool

// AttrIn accepts edges whose attributes, formatted with %v, are each in the allowed
// set for their key. An edge missing a constrained attribute is rejected.
func AttrIn(allowed map[string][]string) EdgeCondition {
	return func(e *Edge, _, _ *Node) bool {
		for key, values := range allowed {
			v, ok := e.Attrs[key]
			if !ok || !slices.Contains(values, fmt.Sprint(v)) {
				return false
			}
		}
		return true
	}
}

// All accepts an edge when every non-nil condition does. It returns nil when there is
// nothing to check.
func All(conds ...EdgeCondition) EdgeCondition {
	var active []EdgeCondition
	for _, c := range conds {
		if c != nil {
			active = append(active, c)
		}
	}
	switch len(active) {
	case 0:
		return nil
	case 1:
		return active[0]
	}
	return func(e *Edge, source, target *Node) bool {
		for _, c := range active {
			if !c(e, source, target) {
				return false
			}
		}
		return true
	}
}

var celEnvOptions = []cel.EnvOption{
	cel.Variable("source", cel.StringType),
	cel.Variable("target", cel.StringType),
	cel.Variable("date", cel.StringType),
	cel.Variable("time", cel.StringType),
	cel.Variable("weight", cel.IntType),
	cel.Variable("attrs", cel.MapType(cel.StringType, cel.DynType)),
	cel.Variable("source_comments", cel.IntType),
	cel.Variable("target_comments", cel.IntType),
}

// CompileCondition compiles a CEL boolean expression into an EdgeCondition, e.g.
//
//	attrs.board == "Gossiping" && source_comments >= 5
//
// An expression that fails at evaluation time, such as a missing map key, rejects the edge.
func CompileCondition(expr string) (EdgeCondition, error) {
	env, err := cel.NewEnv(celEnvOptions...)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, &apperr.ConfigError{Field: "condition", Err: iss.Err()}
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, &apperr.ConfigError{
			Field: "condition",
			Err:   fmt.Errorf("expression yields %s, want bool", ast.OutputType()),
		}
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, &apperr.ConfigError{Field: "condition", Err: err}
	}

	return func(e *Edge, source, target *Node) bool {
		attrs := e.Attrs
		if attrs == nil {
			attrs = map[string]any{}
		}
		first := e.First()
		out, _, err := prg.Eval(map[string]any{
			"source":          e.Source,
			"target":          e.Target,
			"date":            first.Date.Format(models.DateLayout),
			"time":            first.Time,
			"weight":          int64(e.Weight),
			"attrs":           attrs,
			"source_comments": int64(commentCount(source)),
			"target_comments": int64(commentCount(target)),
		})
		if err != nil {
			return false
		}
		ok, _ := out.Value().(bool)
		return ok
	}, nil
}

func commentCount(n *Node) int {
	if n == nil {
		return 0
	}
	return n.CommentCount()
}
