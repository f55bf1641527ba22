package stump

import "net/http"

// Builder assembles a stump contract fluently:
//
//	contract, err := stump.NewBuilder("teapot").
//		MatchingMethod(http.MethodGet).
//		MatchingPath("/brew").
//		RespondingWithStatus(http.StatusTeapot).
//		RespondingWithBody([]byte("short and stout"), "text/plain").
//		Contract()
type Builder struct {
	contract Contract
}

// NewBuilder starts a contract for a stump with the given name.
func NewBuilder(name string) *Builder {
	b := &Builder{}
	b.contract.Name = name
	b.contract.Response.StatusCode = http.StatusOK
	b.contract.Response.StatusDescription = http.StatusText(http.StatusOK)
	return b
}

// MatchingMethod adds an HTTP-method rule.
func (b *Builder) MatchingMethod(method string) *Builder {
	b.contract.Rules = append(b.contract.Rules, RuleDef{Type: RuleTypeMethod, Value: method})
	return b
}

// MatchingPath adds a path rule; the pattern may be exact or a glob.
func (b *Builder) MatchingPath(pattern string) *Builder {
	b.contract.Rules = append(b.contract.Rules, RuleDef{Type: RuleTypePath, Value: pattern})
	return b
}

// MatchingQuery adds a query-parameter rule.
func (b *Builder) MatchingQuery(name, pattern string) *Builder {
	b.contract.Rules = append(b.contract.Rules, RuleDef{Type: RuleTypeQuery, Name: name, Value: pattern})
	return b
}

// MatchingHeader adds a header-value rule.
func (b *Builder) MatchingHeader(name, value string) *Builder {
	b.contract.Rules = append(b.contract.Rules, RuleDef{Type: RuleTypeHeader, Name: name, Value: value})
	return b
}

// WithHeaderPresent adds a header-exists rule.
func (b *Builder) WithHeaderPresent(name string) *Builder {
	b.contract.Rules = append(b.contract.Rules, RuleDef{Type: RuleTypeHeaderExists, Name: name})
	return b
}

// MatchingBodyContaining adds a body-contains rule.
func (b *Builder) MatchingBodyContaining(text string) *Builder {
	b.contract.Rules = append(b.contract.Rules, RuleDef{Type: RuleTypeBodyContains, Value: text})
	return b
}

// MatchingBody adds a body-equals rule against the given blob.
func (b *Builder) MatchingBody(body []byte) *Builder {
	b.contract.MatchBody = body
	b.contract.Rules = append(b.contract.Rules, RuleDef{Type: RuleTypeBodyEquals})
	return b
}

// MatchingJSONPath adds a JSON-path rule over the request body.
func (b *Builder) MatchingJSONPath(path, value string) *Builder {
	b.contract.Rules = append(b.contract.Rules, RuleDef{Type: RuleTypeJSONPath, Name: path, Value: value})
	return b
}

// RespondingWithStatus sets the canned response status.
func (b *Builder) RespondingWithStatus(statusCode int) *Builder {
	b.contract.Response.StatusCode = statusCode
	b.contract.Response.StatusDescription = http.StatusText(statusCode)
	return b
}

// RespondingWithBody sets the canned response body and content type.
func (b *Builder) RespondingWithBody(body []byte, contentType string) *Builder {
	b.contract.Response.Body = body
	b.contract.Response.BodyContentType = contentType
	return b
}

// RespondingWithHeader appends a canned response header. Duplicates are allowed.
func (b *Builder) RespondingWithHeader(name, value string) *Builder {
	b.contract.Response.Headers = append(b.contract.Response.Headers, Header{Name: name, Value: value})
	return b
}

// Contract finalises and validates the assembled contract.
func (b *Builder) Contract() (*Contract, error) {
	c := b.contract.Clone()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
