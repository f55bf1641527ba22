package stump

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequest(t *testing.T, method, target string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, target, strings.NewReader(""))
}

func TestMethodRule(t *testing.T) {
	t.Parallel()

	req := newRequest(t, http.MethodGet, "http://mocked.local/")
	assert.True(t, MethodRule{Method: "GET"}.Matches(req, nil))
	assert.True(t, MethodRule{Method: "get"}.Matches(req, nil))
	assert.False(t, MethodRule{Method: "POST"}.Matches(req, nil))
}

func TestPathRule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/api/users", "/api/users", true},
		{"/api/users", "/api/orders", false},
		{"/api/*", "/api/users", true},
		{"/api/*", "/api/users/7", false},
		{"/api/**", "/api/users/7", true},
		{"/users/*/orders", "/users/7/orders", true},
		{"/[bad", "/[bad", true}, // literal equality wins over pattern errors
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.pattern+" vs "+tt.path, func(t *testing.T) {
			t.Parallel()
			req := newRequest(t, http.MethodGet, "http://mocked.local"+tt.path)
			assert.Equal(t, tt.want, PathRule{Pattern: tt.pattern}.Matches(req, nil))
		})
	}
}

func TestQueryRule(t *testing.T) {
	t.Parallel()

	req := newRequest(t, http.MethodGet, "http://mocked.local/a?b=1&c=two&c=three")

	assert.True(t, QueryRule{Name: "b", Pattern: "1"}.Matches(req, nil))
	assert.True(t, QueryRule{Name: "c", Pattern: "three"}.Matches(req, nil))
	assert.True(t, QueryRule{Name: "c", Pattern: "t*"}.Matches(req, nil))
	assert.False(t, QueryRule{Name: "b", Pattern: "2"}.Matches(req, nil))
	assert.False(t, QueryRule{Name: "missing", Pattern: "*"}.Matches(req, nil))
}

func TestHeaderRules(t *testing.T) {
	t.Parallel()

	req := newRequest(t, http.MethodGet, "http://mocked.local/")
	req.Header.Set("X-Token", "secret")
	req.Header.Add("Accept", "text/html")
	req.Header.Add("Accept", "application/json")

	t.Run("exists is case-insensitive on name", func(t *testing.T) {
		t.Parallel()
		assert.True(t, HeaderExistsRule{Name: "x-token"}.Matches(req, nil))
		assert.False(t, HeaderExistsRule{Name: "x-missing"}.Matches(req, nil))
	})

	t.Run("value must match exactly", func(t *testing.T) {
		t.Parallel()
		assert.True(t, HeaderRule{Name: "X-TOKEN", Value: "secret"}.Matches(req, nil))
		assert.False(t, HeaderRule{Name: "X-Token", Value: "SECRET"}.Matches(req, nil))
	})

	t.Run("any duplicate value may match", func(t *testing.T) {
		t.Parallel()
		assert.True(t, HeaderRule{Name: "Accept", Value: "application/json"}.Matches(req, nil))
	})
}

func TestBodyRules(t *testing.T) {
	t.Parallel()

	req := newRequest(t, http.MethodPost, "http://mocked.local/")
	body := []byte(`{"user":{"name":"ada"},"count":3}`)

	assert.True(t, BodyContainsRule{Text: "ada"}.Matches(req, body))
	assert.False(t, BodyContainsRule{Text: "babbage"}.Matches(req, body))

	assert.True(t, BodyEqualsRule{Body: body}.Matches(req, body))
	assert.False(t, BodyEqualsRule{Body: []byte("other")}.Matches(req, body))

	assert.True(t, BodyLengthRule{Length: len(body)}.Matches(req, body))
	assert.False(t, BodyLengthRule{Length: 1}.Matches(req, body))
}

func TestJSONPathRule(t *testing.T) {
	t.Parallel()

	req := newRequest(t, http.MethodPost, "http://mocked.local/")
	body := []byte(`{"user":{"name":"ada"},"count":3}`)

	assert.True(t, JSONPathRule{Path: "user.name", Value: "ada"}.Matches(req, body))
	assert.True(t, JSONPathRule{Path: "user.name"}.Matches(req, body))
	assert.True(t, JSONPathRule{Path: "count", Value: "3"}.Matches(req, body))
	assert.False(t, JSONPathRule{Path: "user.name", Value: "babbage"}.Matches(req, body))
	assert.False(t, JSONPathRule{Path: "user.email"}.Matches(req, body))
	assert.False(t, JSONPathRule{Path: "user.name"}.Matches(req, []byte("not json")))
}

func TestMaterializeRule(t *testing.T) {
	t.Parallel()

	t.Run("builds each rule type", func(t *testing.T) {
		t.Parallel()
		defs := []RuleDef{
			{Type: RuleTypeMethod, Value: "GET"},
			{Type: RuleTypePath, Value: "/a"},
			{Type: RuleTypeQuery, Name: "q", Value: "1"},
			{Type: RuleTypeHeaderExists, Name: "X-A"},
			{Type: RuleTypeHeader, Name: "X-A", Value: "b"},
			{Type: RuleTypeBodyContains, Value: "x"},
			{Type: RuleTypeBodyEquals},
			{Type: RuleTypeBodyLength, Value: "12"},
			{Type: RuleTypeJSONPath, Name: "a.b", Value: "c"},
		}
		for _, def := range defs {
			rule, err := materializeRule(def, []byte("blob"))
			require.NoError(t, err, "type %s", def.Type)
			require.NotNil(t, rule)
			assert.NotEmpty(t, rule.Describe())
		}
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		t.Parallel()
		_, err := materializeRule(RuleDef{Type: "nope"}, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("rejects non-numeric body length", func(t *testing.T) {
		t.Parallel()
		_, err := materializeRule(RuleDef{Type: RuleTypeBodyLength, Value: "many"}, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}
