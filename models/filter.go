package models

import (
	"strconv"
	"strings"
	"time"
)

// FilterLogic combines conditions within a filter group
type FilterLogic string

const (
	FilterLogicAnd FilterLogic = "AND"
	FilterLogicOr  FilterLogic = "OR"
)

// FilterOperator is the comparison applied by a single filter condition
type FilterOperator string

const (
	OperatorEquals      FilterOperator = "EQUALS"
	OperatorNotEquals   FilterOperator = "NOT_EQUALS"
	OperatorContains    FilterOperator = "CONTAINS"
	OperatorStartsWith  FilterOperator = "STARTS_WITH"
	OperatorEndsWith    FilterOperator = "ENDS_WITH"
	OperatorGreaterThan FilterOperator = "GREATER_THAN"
	OperatorLessThan    FilterOperator = "LESS_THAN"
	OperatorBetween     FilterOperator = "BETWEEN"
	OperatorIsEmpty     FilterOperator = "IS_EMPTY"
	OperatorIsNotEmpty  FilterOperator = "IS_NOT_EMPTY"
	OperatorIn          FilterOperator = "IN"
	OperatorNotIn       FilterOperator = "NOT_IN"
)

// FilterNode is one node of a segment filter tree: either a group (Logic +
// Children) or a leaf condition (Field + Operator + Value). A node with
// children is always treated as a group; condition fields on a group are
// ignored. Not inverts a condition's predicate, never a group's logic.
type FilterNode struct {
	Logic    FilterLogic  `json:"logic,omitempty"`
	Children []FilterNode `json:"children,omitempty"`

	Field    string         `json:"field,omitempty"`
	Operator FilterOperator `json:"operator,omitempty"`
	Value    any            `json:"value,omitempty"`
	Not      bool           `json:"not,omitempty"`
}

// IsGroup reports whether the node is a logical group
func (n *FilterNode) IsGroup() bool {
	return len(n.Children) > 0
}

// Matches evaluates the filter tree against a contact via a single
// recursive visit.
func (n *FilterNode) Matches(c *Contact) bool {
	if n.IsGroup() {
		logic := n.Logic
		if logic == "" {
			logic = FilterLogicAnd
		}
		for i := range n.Children {
			matched := n.Children[i].Matches(c)
			if logic == FilterLogicAnd && !matched {
				return false
			}
			if logic == FilterLogicOr && matched {
				return true
			}
		}
		return logic == FilterLogicAnd
	}
	matched := n.evaluateCondition(c)
	if n.Not {
		return !matched
	}
	return matched
}

func (n *FilterNode) evaluateCondition(c *Contact) bool {
	// "tags" is a set field, everything else resolves through Field lookup.
	if n.Field == "tags" {
		return n.evaluateTags(c)
	}

	value, present := c.Field(n.Field)

	switch n.Operator {
	case OperatorIsEmpty:
		return !present || toString(value) == ""
	case OperatorIsNotEmpty:
		return present && toString(value) != ""
	}
	if !present {
		return false
	}

	switch n.Operator {
	case OperatorEquals:
		return looseEquals(value, n.Value)
	case OperatorNotEquals:
		return !looseEquals(value, n.Value)
	case OperatorContains:
		return strings.Contains(toString(value), toString(n.Value))
	case OperatorStartsWith:
		return strings.HasPrefix(toString(value), toString(n.Value))
	case OperatorEndsWith:
		return strings.HasSuffix(toString(value), toString(n.Value))
	case OperatorGreaterThan:
		return compareOrdered(value, n.Value) > 0
	case OperatorLessThan:
		return compareOrdered(value, n.Value) < 0
	case OperatorBetween:
		bounds, ok := n.Value.([]any)
		if !ok || len(bounds) != 2 {
			return false
		}
		return compareOrdered(value, bounds[0]) >= 0 && compareOrdered(value, bounds[1]) <= 0
	case OperatorIn:
		return inSet(value, n.Value)
	case OperatorNotIn:
		return !inSet(value, n.Value)
	default:
		return false
	}
}

func (n *FilterNode) evaluateTags(c *Contact) bool {
	switch n.Operator {
	case OperatorEquals, OperatorContains:
		return c.HasTag(toString(n.Value))
	case OperatorNotEquals:
		return !c.HasTag(toString(n.Value))
	case OperatorIsEmpty:
		return len(c.Tags) == 0
	case OperatorIsNotEmpty:
		return len(c.Tags) > 0
	case OperatorIn:
		items, ok := n.Value.([]any)
		if !ok {
			return false
		}
		for _, item := range items {
			if c.HasTag(toString(item)) {
				return true
			}
		}
		return false
	case OperatorNotIn:
		items, ok := n.Value.([]any)
		if !ok {
			return false
		}
		for _, item := range items {
			if c.HasTag(toString(item)) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// looseEquals compares two values, preferring numeric comparison when both
// sides are numbers so 30 equals 30.0 from JSON decoding.
func looseEquals(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return toString(a) == toString(b)
}

// compareOrdered compares numbers or dates; strings fall back to
// lexicographic order. Returns -1, 0 or 1.
func compareOrdered(a, b any) int {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	if at, aok := toTime(a); aok {
		if bt, bok := toTime(b); bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(toString(a), toString(b))
}

func inSet(value, set any) bool {
	items, ok := set.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if looseEquals(value, item) {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
		if parsed, err := time.Parse("2006-01-02", t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return ""
	}
}
