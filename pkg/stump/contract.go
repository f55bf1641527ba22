package stump

import "fmt"

// Contract is the plain-record form of a stump: everything needed to
// materialise one, in a shape the persistence layer and admin callers
// can pass around. MatchBody carries the blob used by body-equals rules.
type Contract struct {
	ID        string    `json:"id,omitempty" yaml:"id,omitempty"`
	Name      string    `json:"name" yaml:"name"`
	Rules     []RuleDef `json:"rules,omitempty" yaml:"rules,omitempty"`
	MatchBody []byte    `json:"matchBody,omitempty" yaml:"matchBody,omitempty"`
	Response  Response  `json:"response" yaml:"response"`
}

// Validate checks the contract can be materialised.
func (c *Contract) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: contract is required", ErrInvalidArgument)
	}
	if c.Name == "" {
		return fmt.Errorf("%w: stump name is required", ErrInvalidArgument)
	}
	if err := c.Response.Validate(); err != nil {
		return err
	}
	for _, def := range c.Rules {
		if _, err := materializeRule(def, c.MatchBody); err != nil {
			return err
		}
	}
	return nil
}

// Materialize builds a live stump from the contract. The contract's ID
// must already be assigned.
func (c *Contract) Materialize() (*Stump, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	s, err := New(c.ID)
	if err != nil {
		return nil, err
	}
	s.SetName(c.Name)

	for _, def := range c.Rules {
		rule, err := materializeRule(def, c.MatchBody)
		if err != nil {
			return nil, err
		}
		if err := s.AddRule(rule); err != nil {
			return nil, err
		}
	}

	if err := s.SetResponse(c.Response.Clone()); err != nil {
		return nil, err
	}
	return s, nil
}

// Clone returns a deep copy of the contract.
func (c *Contract) Clone() *Contract {
	if c == nil {
		return nil
	}
	out := *c
	out.Rules = make([]RuleDef, len(c.Rules))
	copy(out.Rules, c.Rules)
	out.MatchBody = make([]byte, len(c.MatchBody))
	copy(out.MatchBody, c.MatchBody)
	if cloned := c.Response.Clone(); cloned != nil {
		out.Response = *cloned
	}
	return &out
}
