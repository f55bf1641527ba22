package stump

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/Pankaj-chhatani/stumps/pkg/recording"
)

// Headers never copied from a recorded response into a canned response.
// Content-Length is recomputed at serve time; the rest are hop-by-hop.
var skippedResponseHeaders = map[string]struct{}{
	"Connection":        {},
	"Content-Length":    {},
	"Keep-Alive":        {},
	"Transfer-Encoding": {},
	"Upgrade":           {},
}

// FromRecording converts a recorded context into a stump contract that
// replays the recorded response for requests shaped like the recorded
// one: same method, same path, same query parameters, and the same body
// when one was captured. The contract has no id; the registry assigns
// one at creation.
func FromRecording(ctx *recording.Context) (*Contract, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: recorded context is required", ErrInvalidArgument)
	}

	c := &Contract{
		Name: fmt.Sprintf("%s %s (%s)", ctx.Request.Method, ctx.Request.Path, ctx.ID),
	}

	c.Rules = append(c.Rules,
		RuleDef{Type: RuleTypeMethod, Value: ctx.Request.Method},
		RuleDef{Type: RuleTypePath, Value: ctx.Request.Path},
	)

	if ctx.Request.RawQuery != "" {
		values, err := url.ParseQuery(ctx.Request.RawQuery)
		if err == nil {
			names := make([]string, 0, len(values))
			for name := range values {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				for _, v := range values[name] {
					c.Rules = append(c.Rules, RuleDef{Type: RuleTypeQuery, Name: name, Value: v})
				}
			}
		}
	}

	if len(ctx.Request.Body) > 0 {
		c.MatchBody = append([]byte(nil), ctx.Request.Body...)
		c.Rules = append(c.Rules, RuleDef{Type: RuleTypeBodyEquals})
	}

	c.Response = Response{
		StatusCode:        ctx.Response.StatusCode,
		StatusDescription: statusDescription(ctx.Response.Status),
		Body:              append([]byte(nil), ctx.Response.Body...),
		BodyContentType:   ctx.Response.ContentType,
		BodyIsImage:       ctx.Response.BodyKind == recording.BodyImage,
		BodyIsText:        ctx.Response.BodyKind == recording.BodyText,
	}
	for name, values := range ctx.Response.Headers {
		if _, skip := skippedResponseHeaders[name]; skip {
			continue
		}
		for _, v := range values {
			c.Response.Headers = append(c.Response.Headers, Header{Name: name, Value: v})
		}
	}
	sort.SliceStable(c.Response.Headers, func(i, j int) bool {
		return c.Response.Headers[i].Name < c.Response.Headers[j].Name
	})

	return c, nil
}

// statusDescription strips the numeric prefix from a status line
// ("200 OK" becomes "OK").
func statusDescription(status string) string {
	if i := strings.IndexByte(status, ' '); i >= 0 {
		return status[i+1:]
	}
	return status
}
