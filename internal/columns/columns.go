// Package columns locates the name, change-ratio and market columns of a
// pasted header by keyword substring match.
package columns

import (
	"errors"
	"fmt"
	"strings"
)

// Role identifies what a column means to the pipeline.
type Role int

const (
	RoleName Role = iota
	RoleRatio
	RoleMarket
)

func (r Role) String() string {
	switch r {
	case RoleName:
		return "name"
	case RoleRatio:
		return "ratio"
	case RoleMarket:
		return "market"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Rule binds a role to the keywords that identify its column. Matching is a
// case- and script-sensitive substring test.
type Rule struct {
	Role     Role
	Keywords []string
}

// Rules is the resolver vocabulary.
type Rules struct {
	Rules []Rule
	// NameFallbackIndex is the header position used for the name column when
	// no keyword matches. Negative disables the fallback.
	NameFallbackIndex int
}

// DefaultRules returns the vocabulary for Japanese brokerage exports.
func DefaultRules() Rules {
	return Rules{
		Rules: []Rule{
			{Role: RoleName, Keywords: []string{"銘柄名"}},
			{Role: RoleRatio, Keywords: []string{"比率"}},
			{Role: RoleMarket, Keywords: []string{"市場"}},
		},
		NameFallbackIndex: 3,
	}
}

// Roles is the resolved column for each role. An empty string means the role
// was not found.
type Roles struct {
	Name   string `json:"name" yaml:"name"`
	Ratio  string `json:"ratio,omitempty" yaml:"ratio,omitempty"`
	Market string `json:"market,omitempty" yaml:"market,omitempty"`
	// NameFromFallback is set when Name came from the positional fallback.
	NameFromFallback bool `json:"name_from_fallback,omitempty" yaml:"name_from_fallback,omitempty"`
}

func (r Roles) HasRatio() bool  { return r.Ratio != "" }
func (r Roles) HasMarket() bool { return r.Market != "" }

// ErrUnresolvedNameColumn is returned when no header matches the name
// keywords and the header is too short for the positional fallback.
var ErrUnresolvedNameColumn = errors.New("name column not found")

// Resolve assigns header columns to roles. For each role the first header
// entry, in header order, containing any of its keywords wins.
func Resolve(header []string, rules Rules) (Roles, error) {
	var roles Roles
	for _, rule := range rules.Rules {
		col, ok := firstMatch(header, rule.Keywords)
		if !ok {
			continue
		}
		switch rule.Role {
		case RoleName:
			if roles.Name == "" {
				roles.Name = col
			}
		case RoleRatio:
			if roles.Ratio == "" {
				roles.Ratio = col
			}
		case RoleMarket:
			if roles.Market == "" {
				roles.Market = col
			}
		}
	}
	if roles.Name == "" {
		idx := rules.NameFallbackIndex
		if idx < 0 || idx >= len(header) {
			return roles, fmt.Errorf("%w: no header contains %s and the header has only %d column(s)",
				ErrUnresolvedNameColumn, quoteAll(rules.keywords(RoleName)), len(header))
		}
		roles.Name = header[idx]
		roles.NameFromFallback = true
	}
	return roles, nil
}

func firstMatch(header, keywords []string) (string, bool) {
	for _, h := range header {
		for _, kw := range keywords {
			if kw != "" && strings.Contains(h, kw) {
				return h, true
			}
		}
	}
	return "", false
}

func (r Rules) keywords(role Role) []string {
	var out []string
	for _, rule := range r.Rules {
		if rule.Role == role {
			out = append(out, rule.Keywords...)
		}
	}
	return out
}

func quoteAll(ss []string) string {
	if len(ss) == 0 {
		return "(no keywords)"
	}
	q := make([]string, len(ss))
	for i, s := range ss {
		q[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(q, ", ")
}
