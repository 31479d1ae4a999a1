// Package filter implements the include/exclude pattern chain applied to
// archive entry paths during extraction and listing.
package filter

// Chain holds include and exclude glob patterns. With no includes, every
// path is a candidate; with includes, only matching paths are. Excludes
// always win over includes.
type Chain struct {
	includes []*compiledPattern
	excludes []*compiledPattern
}

// NewChain creates an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// AddInclude adds a pattern that paths must match when any include is set.
func (c *Chain) AddInclude(pattern string) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.includes = append(c.includes, cp)
	return nil
}

// AddExclude adds a pattern that always rejects matching paths.
func (c *Chain) AddExclude(pattern string) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.excludes = append(c.excludes, cp)
	return nil
}

// Empty reports whether the chain has no rules.
func (c *Chain) Empty() bool {
	return len(c.includes) == 0 && len(c.excludes) == 0
}

// Match reports whether the entry at relPath should be processed.
func (c *Chain) Match(relPath string, isDir bool) bool {
	for _, p := range c.excludes {
		if p.match(relPath, isDir) {
			return false
		}
	}
	if len(c.includes) == 0 {
		return true
	}
	for _, p := range c.includes {
		if p.match(relPath, isDir) {
			return true
		}
	}
	return false
}
