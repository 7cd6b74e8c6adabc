// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package cache

import (
	"strings"
	"sync"
)

// PatternMatcher implements Aho-Corasick multi-pattern string matching.
// It finds all occurrences of many patterns in a text in O(n + m + z) time
// (n = text length, m = total pattern length, z = matches), much faster than
// scanning each pattern individually.
//
// Content-forensics and psychological detectors use it to scan search
// queries and free-text submissions against risk-language lexicons:
//
//	pm := NewPatternMatcher()
//	pm.AddPatterns([]string{"dispose of", "burn evidence"}, "disposal")
//	pm.Build()
//	matches := pm.Search(searchText)
type PatternMatcher struct {
	mu            sync.RWMutex
	root          *patternNode
	patterns      []Pattern
	built         bool
	caseSensitive bool
}

// patternNode is a node in the matching automaton.
type patternNode struct {
	children map[rune]*patternNode
	failure  *patternNode
	output   []int // indices of patterns ending at this node
	depth    int
}

// Pattern is a search pattern with associated data, typically the lexicon
// category the pattern belongs to.
type Pattern struct {
	Text string
	Data any
}

// Match is a pattern occurrence in the scanned text.
type Match struct {
	Pattern  string
	Data     any
	Position int
}

// NewPatternMatcher creates a case-insensitive matcher.
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{root: newPatternNode(0)}
}

func newPatternNode(depth int) *patternNode {
	return &patternNode{
		children: make(map[rune]*patternNode),
		depth:    depth,
	}
}

// AddPattern adds a pattern. Build must be called before searching.
func (pm *PatternMatcher) AddPattern(pattern string, data any) {
	if pattern == "" {
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.built = false
	pm.patterns = append(pm.patterns, Pattern{Text: pattern, Data: data})
}

// AddPatterns adds multiple patterns sharing the same associated data.
func (pm *PatternMatcher) AddPatterns(patterns []string, data any) {
	for _, p := range patterns {
		pm.AddPattern(p, data)
	}
}

// Build constructs the automaton. Must be called after adding patterns and
// before searching; safe to call repeatedly.
func (pm *PatternMatcher) Build() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.built {
		return
	}

	pm.root = newPatternNode(0)
	for i, p := range pm.patterns {
		pm.insert(i, p.Text)
	}
	pm.buildFailureLinks()
	pm.built = true
}

// insert adds one pattern to the trie. Lock held.
func (pm *PatternMatcher) insert(index int, pattern string) {
	node := pm.root
	text := pattern
	if !pm.caseSensitive {
		text = strings.ToLower(pattern)
	}

	for _, ch := range text {
		if node.children[ch] == nil {
			node.children[ch] = newPatternNode(node.depth + 1)
		}
		node = node.children[ch]
	}
	node.output = append(node.output, index)
}

// buildFailureLinks wires suffix links using BFS. Lock held.
func (pm *PatternMatcher) buildFailureLinks() {
	queue := make([]*patternNode, 0)
	for _, child := range pm.root.children {
		child.failure = pm.root
		queue = append(queue, child)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for ch, child := range current.children {
			queue = append(queue, child)

			fail := current.failure
			for fail != nil && fail.children[ch] == nil {
				fail = fail.failure
			}

			if fail == nil {
				child.failure = pm.root
			} else {
				child.failure = fail.children[ch]
				child.output = append(child.output, child.failure.output...)
			}
		}
	}
}

// Search finds all pattern matches in the text.
func (pm *PatternMatcher) Search(text string) []Match {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if !pm.built || len(pm.patterns) == 0 {
		return nil
	}

	searchText := text
	if !pm.caseSensitive {
		searchText = strings.ToLower(text)
	}

	var matches []Match
	node := pm.root

	for i, ch := range searchText {
		for node != nil && node.children[ch] == nil {
			node = node.failure
		}
		if node == nil {
			node = pm.root
			continue
		}
		node = node.children[ch]

		for _, patternIdx := range node.output {
			pattern := pm.patterns[patternIdx]
			matches = append(matches, Match{
				Pattern:  pattern.Text,
				Data:     pattern.Data,
				Position: i - len(pattern.Text) + 1,
			})
		}
	}

	return matches
}

// MatchCategories returns the distinct Data values matched in the text.
// Convenient for lexicon scans where only the category set matters.
func (pm *PatternMatcher) MatchCategories(text string) map[any]int {
	matches := pm.Search(text)
	if len(matches) == 0 {
		return nil
	}

	categories := make(map[any]int)
	for _, m := range matches {
		categories[m.Data]++
	}
	return categories
}

// PatternCount returns the number of patterns added.
func (pm *PatternMatcher) PatternCount() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.patterns)
}
