package stump

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tidwall/gjson"
)

// Rule is a single predicate over an HTTP request. A stump matches a
// request when every one of its rules matches. The rule set is open:
// anything satisfying this interface can be added to a stump.
type Rule interface {
	// Matches reports whether the request satisfies the rule. The body
	// is the fully-buffered request body; the request stream must not
	// be consumed.
	Matches(r *http.Request, body []byte) bool

	// Describe returns a short human-readable description of the rule.
	Describe() string
}

// matchValue compares an actual value against an expected value or
// doublestar glob pattern.
func matchValue(pattern, actual string) bool {
	if pattern == actual {
		return true
	}
	if !strings.ContainsAny(pattern, "*?[{") {
		return false
	}
	ok, err := doublestar.Match(pattern, actual)
	return err == nil && ok
}

// MethodRule matches the HTTP method, case-insensitively.
type MethodRule struct {
	Method string
}

func (r MethodRule) Matches(req *http.Request, _ []byte) bool {
	return strings.EqualFold(req.Method, r.Method)
}

func (r MethodRule) Describe() string {
	return fmt.Sprintf("method equals %q", r.Method)
}

// PathRule matches the URL path, either exactly or against a
// doublestar glob pattern ("/api/**", "/users/*/orders").
type PathRule struct {
	Pattern string
}

func (r PathRule) Matches(req *http.Request, _ []byte) bool {
	return matchValue(r.Pattern, req.URL.Path)
}

func (r PathRule) Describe() string {
	return fmt.Sprintf("path matches %q", r.Pattern)
}

// QueryRule matches a single query parameter value, exactly or against
// a glob pattern. A request without the parameter never matches.
type QueryRule struct {
	Name    string
	Pattern string
}

func (r QueryRule) Matches(req *http.Request, _ []byte) bool {
	values, ok := req.URL.Query()[r.Name]
	if !ok {
		return false
	}
	for _, v := range values {
		if matchValue(r.Pattern, v) {
			return true
		}
	}
	return false
}

func (r QueryRule) Describe() string {
	return fmt.Sprintf("query %q matches %q", r.Name, r.Pattern)
}

// HeaderExistsRule matches when the named header is present,
// regardless of value. Header names compare case-insensitively.
type HeaderExistsRule struct {
	Name string
}

func (r HeaderExistsRule) Matches(req *http.Request, _ []byte) bool {
	return len(req.Header.Values(r.Name)) > 0
}

func (r HeaderExistsRule) Describe() string {
	return fmt.Sprintf("header %q exists", r.Name)
}

// HeaderRule matches a header value exactly. Header names compare
// case-insensitively; any one of the header's values may match.
type HeaderRule struct {
	Name  string
	Value string
}

func (r HeaderRule) Matches(req *http.Request, _ []byte) bool {
	for _, v := range req.Header.Values(r.Name) {
		if v == r.Value {
			return true
		}
	}
	return false
}

func (r HeaderRule) Describe() string {
	return fmt.Sprintf("header %q equals %q", r.Name, r.Value)
}

// BodyContainsRule matches when the request body contains the given text.
type BodyContainsRule struct {
	Text string
}

func (r BodyContainsRule) Matches(_ *http.Request, body []byte) bool {
	return strings.Contains(string(body), r.Text)
}

func (r BodyContainsRule) Describe() string {
	return fmt.Sprintf("body contains %q", r.Text)
}

// BodyEqualsRule matches when the request body equals the stored blob.
type BodyEqualsRule struct {
	Body []byte
}

func (r BodyEqualsRule) Matches(_ *http.Request, body []byte) bool {
	return bytes.Equal(body, r.Body)
}

func (r BodyEqualsRule) Describe() string {
	return fmt.Sprintf("body equals %d stored bytes", len(r.Body))
}

// BodyLengthRule matches when the request body has exactly the given length.
type BodyLengthRule struct {
	Length int
}

func (r BodyLengthRule) Matches(_ *http.Request, body []byte) bool {
	return len(body) == r.Length
}

func (r BodyLengthRule) Describe() string {
	return fmt.Sprintf("body length equals %d", r.Length)
}

// JSONPathRule matches a value inside a JSON request body, addressed by
// a gjson path ("user.name", "items.0.id"). With an empty Value the
// rule only requires the path to exist.
type JSONPathRule struct {
	Path  string
	Value string
}

func (r JSONPathRule) Matches(_ *http.Request, body []byte) bool {
	result := gjson.GetBytes(body, r.Path)
	if !result.Exists() {
		return false
	}
	if r.Value == "" {
		return true
	}
	return result.String() == r.Value
}

func (r JSONPathRule) Describe() string {
	if r.Value == "" {
		return fmt.Sprintf("json path %q exists", r.Path)
	}
	return fmt.Sprintf("json path %q equals %q", r.Path, r.Value)
}

// Rule type identifiers used in RuleDef records.
const (
	RuleTypeMethod       = "method.equals"
	RuleTypePath         = "path.matches"
	RuleTypeQuery        = "query.matches"
	RuleTypeHeaderExists = "header.exists"
	RuleTypeHeader       = "header.equals"
	RuleTypeBodyContains = "body.contains"
	RuleTypeBodyEquals   = "body.equals"
	RuleTypeBodyLength   = "body.length"
	RuleTypeJSONPath     = "body.jsonpath"
)

// RuleDef is the plain-record form of a rule, suitable for persistence
// and wire transfer. Name carries the header/query/json-path name where
// the rule type needs one; Value carries the expected value or pattern.
type RuleDef struct {
	Type  string `json:"type" yaml:"type"`
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

// materializeRule turns a rule record into a live Rule. Body-equals
// rules take their blob from the contract's match body.
func materializeRule(def RuleDef, matchBody []byte) (Rule, error) {
	switch def.Type {
	case RuleTypeMethod:
		return MethodRule{Method: def.Value}, nil
	case RuleTypePath:
		return PathRule{Pattern: def.Value}, nil
	case RuleTypeQuery:
		return QueryRule{Name: def.Name, Pattern: def.Value}, nil
	case RuleTypeHeaderExists:
		return HeaderExistsRule{Name: def.Name}, nil
	case RuleTypeHeader:
		return HeaderRule{Name: def.Name, Value: def.Value}, nil
	case RuleTypeBodyContains:
		return BodyContainsRule{Text: def.Value}, nil
	case RuleTypeBodyEquals:
		return BodyEqualsRule{Body: matchBody}, nil
	case RuleTypeBodyLength:
		length, err := strconv.Atoi(def.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: body length rule value %q", ErrInvalidArgument, def.Value)
		}
		return BodyLengthRule{Length: length}, nil
	case RuleTypeJSONPath:
		return JSONPathRule{Path: def.Name, Value: def.Value}, nil
	default:
		return nil, fmt.Errorf("%w: unknown rule type %q", ErrInvalidArgument, def.Type)
	}
}
