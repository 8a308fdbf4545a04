package graph

import (
	"fmt"
	"slices"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/commentnet/internal/apperr"
)

// Criterion decides which edges and nodes survive pruning.
type Criterion interface {
	Name() string
	KeepEdge(e *Edge) bool
	KeepNode(n *Node, degree int) bool
}

// Criterion names accepted by ParseCriterion.
const (
	CriterionMinWeight   = "min_weight"
	CriterionMinDegree   = "min_degree"
	CriterionMinComments = "min_comments"
	CriterionAttrIn      = "attr_in"
)

// MinWeight rejects edges lighter than the threshold.
type MinWeight int

func (c MinWeight) Name() string             { return CriterionMinWeight }
func (c MinWeight) KeepEdge(e *Edge) bool    { return e.Weight >= int(c) }
func (c MinWeight) KeepNode(*Node, int) bool { return true }
func (c MinWeight) String() string           { return fmt.Sprintf("%s(%d)", CriterionMinWeight, int(c)) }

// MinDegree rejects nodes with fewer incident edges than the threshold.
type MinDegree int

func (c MinDegree) Name() string                 { return CriterionMinDegree }
func (c MinDegree) KeepEdge(*Edge) bool          { return true }
func (c MinDegree) KeepNode(_ *Node, d int) bool { return d >= int(c) }
func (c MinDegree) String() string               { return fmt.Sprintf("%s(%d)", CriterionMinDegree, int(c)) }

// MinComments rejects authors whose ledger is smaller than the threshold.
type MinComments int

func (c MinComments) Name() string                 { return CriterionMinComments }
func (c MinComments) KeepEdge(*Edge) bool          { return true }
func (c MinComments) KeepNode(n *Node, _ int) bool { return n.CommentCount() >= int(c) }
func (c MinComments) String() string               { return fmt.Sprintf("%s(%d)", CriterionMinComments, int(c)) }

// AttrInCriterion keeps collapsed edges whose retained attribute Key, formatted with %v,
// is one of Values. Only the value kept by Collapse is tested; raw edges are filtered
// with AttrIn before collapsing. Edges missing the attribute are rejected.
type AttrInCriterion struct {
	Key    string
	Values []string
}

func (c AttrInCriterion) Name() string             { return CriterionAttrIn }
func (c AttrInCriterion) KeepNode(*Node, int) bool { return true }

func (c AttrInCriterion) KeepEdge(e *Edge) bool {
	v, ok := e.Attrs[c.Key]
	if !ok {
		return false
	}
	return slices.Contains(c.Values, fmt.Sprint(v))
}

// CriterionSpec is the declarative form of a Criterion, as found in configuration.
type CriterionSpec struct {
	Name   string   `yaml:"name"`
	Value  int      `yaml:"value"`
	Key    string   `yaml:"key"`
	Values []string `yaml:"values"`
}

// Validate implements the config validator.
func (s CriterionSpec) Validate() error {
	threshold := s.Name != CriterionAttrIn
	return validation.ValidateStruct(&s,
		validation.Field(&s.Name, validation.Required,
			validation.In(CriterionMinWeight, CriterionMinDegree, CriterionMinComments, CriterionAttrIn)),
		validation.Field(&s.Value, validation.When(threshold, validation.Required, validation.Min(1))),
		validation.Field(&s.Key, validation.When(!threshold, validation.Required)),
		validation.Field(&s.Values, validation.When(!threshold, validation.Required)),
	)
}

// ParseCriterion builds the criterion described by spec.
func ParseCriterion(spec CriterionSpec) (Criterion, error) {
	if err := spec.Validate(); err != nil {
		return nil, &apperr.ConfigError{Field: "criterion", Err: err}
	}
	switch spec.Name {
	case CriterionMinWeight:
		return MinWeight(spec.Value), nil
	case CriterionMinDegree:
		return MinDegree(spec.Value), nil
	case CriterionMinComments:
		return MinComments(spec.Value), nil
	default:
		return AttrInCriterion{Key: spec.Key, Values: slices.Clone(spec.Values)}, nil
	}
}

// ParseCriteria builds every criterion in specs, in order.
func ParseCriteria(specs []CriterionSpec) ([]Criterion, error) {
	out := make([]Criterion, 0, len(specs))
	for i, s := range specs {
		c, err := ParseCriterion(s)
		if err != nil {
			return nil, &apperr.ConfigError{Field: fmt.Sprintf("criteria[%d]", i), Err: err}
		}
		out = append(out, c)
	}
	return out, nil
}
