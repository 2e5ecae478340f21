package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func filterTestContact() *Contact {
	joined := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	subscribed := true
	return &Contact{
		ID:         42,
		PSID:       "psid-42",
		FirstName:  strPtr("Alice"),
		LastName:   strPtr("Nguyen"),
		Subscribed: &subscribed,
		Tags:      pq.StringArray{"vip", "newsletter"},
		CustomFields: CustomFieldMap{
			"city":      "Berlin",
			"age":       float64(30),
			"plan":      "pro",
			"signup_at": "2026-03-10",
		},
		CreatedAt: joined,
	}
}

func TestFilterNodeConditions(t *testing.T) {
	c := filterTestContact()

	t.Run("Equals", func(t *testing.T) {
		n := &FilterNode{Field: "first_name", Operator: OperatorEquals, Value: "Alice"}
		assert.True(t, n.Matches(c))

		n = &FilterNode{Field: "first_name", Operator: OperatorEquals, Value: "Bob"}
		assert.False(t, n.Matches(c))
	})

	t.Run("EqualsNumericLoose", func(t *testing.T) {
		// JSON decoding yields float64; stored ints must still compare equal.
		n := &FilterNode{Field: "age", Operator: OperatorEquals, Value: 30}
		assert.True(t, n.Matches(c))
	})

	t.Run("NotEquals", func(t *testing.T) {
		n := &FilterNode{Field: "city", Operator: OperatorNotEquals, Value: "Paris"}
		assert.True(t, n.Matches(c))
	})

	t.Run("ContainsStartsEndsWith", func(t *testing.T) {
		assert.True(t, (&FilterNode{Field: "city", Operator: OperatorContains, Value: "erl"}).Matches(c))
		assert.True(t, (&FilterNode{Field: "city", Operator: OperatorStartsWith, Value: "Ber"}).Matches(c))
		assert.True(t, (&FilterNode{Field: "city", Operator: OperatorEndsWith, Value: "lin"}).Matches(c))
		assert.False(t, (&FilterNode{Field: "city", Operator: OperatorStartsWith, Value: "lin"}).Matches(c))
	})

	t.Run("GreaterLessThan", func(t *testing.T) {
		assert.True(t, (&FilterNode{Field: "age", Operator: OperatorGreaterThan, Value: 25}).Matches(c))
		assert.False(t, (&FilterNode{Field: "age", Operator: OperatorGreaterThan, Value: 30}).Matches(c))
		assert.True(t, (&FilterNode{Field: "age", Operator: OperatorLessThan, Value: 31}).Matches(c))
	})

	t.Run("Between", func(t *testing.T) {
		n := &FilterNode{Field: "age", Operator: OperatorBetween, Value: []any{25, 35}}
		assert.True(t, n.Matches(c))

		n = &FilterNode{Field: "age", Operator: OperatorBetween, Value: []any{31, 35}}
		assert.False(t, n.Matches(c))

		// Malformed bounds never match.
		n = &FilterNode{Field: "age", Operator: OperatorBetween, Value: []any{25}}
		assert.False(t, n.Matches(c))
	})

	t.Run("InNotIn", func(t *testing.T) {
		n := &FilterNode{Field: "plan", Operator: OperatorIn, Value: []any{"free", "pro"}}
		assert.True(t, n.Matches(c))

		n = &FilterNode{Field: "plan", Operator: OperatorNotIn, Value: []any{"free", "enterprise"}}
		assert.True(t, n.Matches(c))
	})

	t.Run("IsEmptyIsNotEmpty", func(t *testing.T) {
		assert.True(t, (&FilterNode{Field: "nickname", Operator: OperatorIsEmpty}).Matches(c))
		assert.False(t, (&FilterNode{Field: "city", Operator: OperatorIsEmpty}).Matches(c))
		assert.True(t, (&FilterNode{Field: "city", Operator: OperatorIsNotEmpty}).Matches(c))
	})

	t.Run("MissingFieldNeverMatches", func(t *testing.T) {
		n := &FilterNode{Field: "nickname", Operator: OperatorEquals, Value: "Al"}
		assert.False(t, n.Matches(c))
	})

	t.Run("NotInvertsCondition", func(t *testing.T) {
		n := &FilterNode{Field: "city", Operator: OperatorEquals, Value: "Berlin", Not: true}
		assert.False(t, n.Matches(c))

		n = &FilterNode{Field: "city", Operator: OperatorEquals, Value: "Paris", Not: true}
		assert.True(t, n.Matches(c))
	})

	t.Run("DateComparison", func(t *testing.T) {
		n := &FilterNode{Field: "created_at", Operator: OperatorGreaterThan, Value: "2026-01-01"}
		assert.True(t, n.Matches(c))

		n = &FilterNode{Field: "created_at", Operator: OperatorLessThan, Value: "2026-01-01"}
		assert.False(t, n.Matches(c))
	})
}

func TestFilterNodeTags(t *testing.T) {
	c := filterTestContact()

	assert.True(t, (&FilterNode{Field: "tags", Operator: OperatorContains, Value: "vip"}).Matches(c))
	assert.True(t, (&FilterNode{Field: "tags", Operator: OperatorEquals, Value: "newsletter"}).Matches(c))
	assert.False(t, (&FilterNode{Field: "tags", Operator: OperatorContains, Value: "churned"}).Matches(c))
	assert.True(t, (&FilterNode{Field: "tags", Operator: OperatorNotEquals, Value: "churned"}).Matches(c))
	assert.True(t, (&FilterNode{Field: "tags", Operator: OperatorIsNotEmpty}).Matches(c))
	assert.True(t, (&FilterNode{Field: "tags", Operator: OperatorIn, Value: []any{"churned", "vip"}}).Matches(c))
	assert.False(t, (&FilterNode{Field: "tags", Operator: OperatorNotIn, Value: []any{"vip"}}).Matches(c))

	empty := &Contact{ID: 7, PSID: "psid-7"}
	assert.True(t, (&FilterNode{Field: "tags", Operator: OperatorIsEmpty}).Matches(empty))
}

func TestFilterNodeGroups(t *testing.T) {
	c := filterTestContact()

	t.Run("AndGroup", func(t *testing.T) {
		n := &FilterNode{
			Logic: FilterLogicAnd,
			Children: []FilterNode{
				{Field: "city", Operator: OperatorEquals, Value: "Berlin"},
				{Field: "age", Operator: OperatorGreaterThan, Value: 18},
			},
		}
		assert.True(t, n.Matches(c))

		n.Children[1].Value = 65
		assert.False(t, n.Matches(c))
	})

	t.Run("OrGroup", func(t *testing.T) {
		n := &FilterNode{
			Logic: FilterLogicOr,
			Children: []FilterNode{
				{Field: "city", Operator: OperatorEquals, Value: "Paris"},
				{Field: "tags", Operator: OperatorContains, Value: "vip"},
			},
		}
		assert.True(t, n.Matches(c))
	})

	t.Run("NestedGroups", func(t *testing.T) {
		n := &FilterNode{
			Logic: FilterLogicAnd,
			Children: []FilterNode{
				{Field: "subscribed", Operator: OperatorEquals, Value: true},
				{
					Logic: FilterLogicOr,
					Children: []FilterNode{
						{Field: "plan", Operator: OperatorEquals, Value: "enterprise"},
						{Field: "tags", Operator: OperatorContains, Value: "vip"},
					},
				},
			},
		}
		assert.True(t, n.Matches(c))
	})

	t.Run("MissingLogicDefaultsToAnd", func(t *testing.T) {
		n := &FilterNode{
			Children: []FilterNode{
				{Field: "city", Operator: OperatorEquals, Value: "Berlin"},
				{Field: "plan", Operator: OperatorEquals, Value: "free"},
			},
		}
		assert.False(t, n.Matches(c))
	})
}

func TestFilterTreeJSONRoundTrip(t *testing.T) {
	raw := `{
		"logic": "AND",
		"children": [
			{"field": "tags", "operator": "CONTAINS", "value": "vip"},
			{"logic": "OR", "children": [
				{"field": "age", "operator": "GREATER_THAN", "value": 21},
				{"field": "plan", "operator": "EQUALS", "value": "pro"}
			]}
		]
	}`

	var tree FilterTree
	require.NoError(t, json.Unmarshal([]byte(raw), &tree))

	assert.True(t, tree.Node().IsGroup())
	assert.True(t, tree.Node().Matches(filterTestContact()))

	// The wrapper marshals as the bare root node, both to JSON and to the
	// jsonb column.
	encoded, err := json.Marshal(tree)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"logic":"AND"`)
	assert.NotContains(t, string(encoded), "Root")

	value, err := tree.Value()
	require.NoError(t, err)
	assert.JSONEq(t, string(encoded), string(value.([]byte)))

	var scanned FilterTree
	require.NoError(t, scanned.Scan(value))
	assert.True(t, scanned.Node().Matches(filterTestContact()))
}
