// Package policy maps names, such as gRPC full method names or cache key
// prefixes, to per-group cache entry policies.
package policy

import (
	"regexp"
	"time"

	fusioncache "github.com/Keksclan/goFusionCache"
)

// Policy holds the caching behavior for a matched group. Zero fields keep
// the value of the options it is applied to.
type Policy struct {
	// Duration overrides the entry TTL.
	Duration time.Duration
	// FactoryTimeout overrides the factory bound.
	FactoryTimeout time.Duration
	// SkipDistributedCache keeps matched entries in process memory only.
	SkipDistributedCache bool
	// Bypass disables caching for the group entirely.
	Bypass bool
}

// Apply adjusts o according to p. Its signature matches the setup functions
// taken by fusioncache.Cache.CreateEntryOptions and the *With shorthands.
func (p Policy) Apply(o *fusioncache.EntryOptions) {
	if p.Duration > 0 {
		o.Duration = p.Duration
	}
	if p.FactoryTimeout > 0 {
		o.FactoryTimeout = p.FactoryTimeout
	}
	if p.SkipDistributedCache {
		o.SkipDistributedCache = true
	}
	if p.Bypass {
		o.Duration = 0
	}
}

// matchKind distinguishes the three matching strategies.
type matchKind int

const (
	kindExact  matchKind = iota // highest priority
	kindPrefix                  // medium priority
	kindRegex                   // lowest priority
)

// rule is a single matching rule inside a group.
type rule struct {
	kind    matchKind
	pattern string         // used for exact and prefix matches
	re      *regexp.Regexp // used for regex matches
}

// GroupBuilder constructs a named group with one or more matching rules and
// a policy.
type GroupBuilder struct {
	name   string
	rules  []rule
	policy *Policy
}

// Group starts building a new group with the given name.
func Group(name string) *GroupBuilder {
	return &GroupBuilder{name: name}
}

// Exact adds an exact-match rule for pattern.
func (g *GroupBuilder) Exact(pattern string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindExact, pattern: pattern})
	return g
}

// Prefix adds a prefix-match rule for pattern.
func (g *GroupBuilder) Prefix(pattern string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindPrefix, pattern: pattern})
	return g
}

// Regex adds a regex-match rule for pattern.
// The pattern is compiled immediately; an invalid regex will panic.
func (g *GroupBuilder) Regex(pattern string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindRegex, pattern: pattern, re: regexp.MustCompile(pattern)})
	return g
}

// CompileRegex is Regex for patterns that come from configuration: an
// invalid pattern is returned as an error instead of panicking.
func (g *GroupBuilder) CompileRegex(pattern string) (*GroupBuilder, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	g.rules = append(g.rules, rule{kind: kindRegex, pattern: pattern, re: re})
	return g, nil
}

// Policy attaches a Policy to the group and returns the finished builder.
func (g *GroupBuilder) Policy(p Policy) *GroupBuilder {
	g.policy = &p
	return g
}
