// Copyright 2026 passworth authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package permission

import (
	"github.com/passworth/passworthd/internal/pathcodec"
)

// node is one position in the rule glob-tree: a literal child per distinct
// literal segment seen at this depth, plus at most one wildcard child
// (spec §3 "Rule tree. A prefix tree over glob segments; ... Wildcard
// child is distinct from literal children.").
type node struct {
	literal  map[string]*node
	wildcard *node
	rules    []*Rule
}

func newNode() *node {
	return &node{literal: make(map[string]*node)}
}

// Tree is the built rule glob-tree, ready for evaluation.
type Tree struct {
	root *node
}

// Build inserts every rule at each of its configured glob paths.
func Build(rules []Rule) *Tree {
	t := &Tree{root: newNode()}
	for i := range rules {
		r := &rules[i]
		for _, glob := range r.Paths {
			t.insert(glob, r)
		}
	}
	return t
}

func (t *Tree) insert(glob pathcodec.GlobSegments, r *Rule) {
	n := t.root
	for _, seg := range glob {
		if seg.Wildcard {
			if n.wildcard == nil {
				n.wildcard = newNode()
			}
			n = n.wildcard
			continue
		}
		child, ok := n.literal[seg.Literal]
		if !ok {
			child = newNode()
			n.literal[seg.Literal] = child
		}
		n = child
	}
	n.rules = append(n.rules, r)
}

// MatchingRules walks the tree against a concrete request path, per spec
// §4.4 step 1: the traversal frontier is every tree node reachable by the
// processed prefix (both the literal branch and the wildcard branch fork
// the frontier at each segment), and rules are collected from every node
// the frontier ever visits — so a rule whose glob path is a strict prefix
// of the request path still grants access to the whole subtree beneath it.
func (t *Tree) MatchingRules(path pathcodec.Segments) []*Rule {
	frontier := []*node{t.root}
	var hits []*Rule
	hits = append(hits, t.root.rules...)

	for _, seg := range path {
		var next []*node
		for _, n := range frontier {
			if child, ok := n.literal[seg]; ok {
				next = append(next, child)
			}
			if n.wildcard != nil {
				next = append(next, n.wildcard)
			}
		}
		for _, n := range next {
			hits = append(hits, n.rules...)
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}
	return dedupRules(hits)
}

func dedupRules(rules []*Rule) []*Rule {
	seen := make(map[string]bool, len(rules))
	out := make([]*Rule, 0, len(rules))
	for _, r := range rules {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}
