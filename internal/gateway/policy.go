package gateway

import (
	"errors"
	"fmt"
	"regexp"
)

// Policy decides whether a query may be sent to the store.
type Policy interface {
	Check(query string) error
}

// ErrQueryDenied is wrapped by PatternPolicy rejections.
var ErrQueryDenied = errors.New("query rejected by policy")

// ReadOnlyDenyPatterns rejects clauses that modify data or administer the server.
var ReadOnlyDenyPatterns = []string{
	`\bCREATE\b`,
	`\bMERGE\b`,
	`\bDELETE\b`,
	`\bSET\b`,
	`\bREMOVE\b`,
	`\bDROP\b`,
	`\bLOAD\s+CSV\b`,
	`\bCALL\s+dbms\.`,
}

// PatternPolicy matches queries against case-insensitive allow and deny lists.
// Deny wins. With an empty allow list every query not denied passes.
type PatternPolicy struct {
	allow []*regexp.Regexp
	deny  []*regexp.Regexp
}

// NewPatternPolicy compiles the given patterns. Nil lists yield a permissive policy.
func NewPatternPolicy(allow, deny []string) (*PatternPolicy, error) {
	allowRe, err := compilePatterns(allow)
	if err != nil {
		return nil, fmt.Errorf("allow list: %w", err)
	}
	denyRe, err := compilePatterns(deny)
	if err != nil {
		return nil, fmt.Errorf("deny list: %w", err)
	}
	return &PatternPolicy{allow: allowRe, deny: denyRe}, nil
}

// Check implements Policy.
func (p *PatternPolicy) Check(query string) error {
	if p == nil {
		return nil
	}
	for _, re := range p.deny {
		if re.MatchString(query) {
			return fmt.Errorf("%w: matches deny pattern %q", ErrQueryDenied, re.String())
		}
	}
	if len(p.allow) == 0 {
		return nil
	}
	for _, re := range p.allow {
		if re.MatchString(query) {
			return nil
		}
	}
	return fmt.Errorf("%w: no allow pattern matches", ErrQueryDenied)
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

type allowAll struct{}

func (allowAll) Check(string) error { return nil }
