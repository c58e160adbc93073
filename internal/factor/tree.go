// Copyright 2026 the passworthd authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package factor implements the authentication-factor engine: building a
// factor tree from configuration, evaluating it interactively to obtain a
// root token, and migrating encrypted per-node state across
// reconfiguration. See spec §4.3 and design note §9 "Factor tree cycles
// and shared nodes".
package factor

import (
	"github.com/passworth/passworthd/internal/errs"
)

// Variant identifies the kind of a factor tree node, spec §3.
type Variant int

const (
	VariantAnd Variant = iota
	VariantOr
	VariantPassword
	VariantSmartcards
	VariantRecoveryPhrase
)

func (v Variant) String() string {
	switch v {
	case VariantAnd:
		return "and"
	case VariantOr:
		return "or"
	case VariantPassword:
		return "password"
	case VariantSmartcards:
		return "smartcards"
	case VariantRecoveryPhrase:
		return "recovery_phrase"
	default:
		return "unknown"
	}
}

// Node is one factor tree node (spec §3 "Factor tree node").
type Node struct {
	ID          string
	Description string
	Variant     Variant

	// Children holds child node ids, in order, for And/Or nodes.
	Children []string

	// Fingerprints holds the configured OpenPGP card fingerprints for a
	// Smartcards node.
	Fingerprints []string
}

// Tree is a validated factor tree: an id -> node map with a single
// designated root, cycle-free along every root-to-leaf path.
type Tree struct {
	Nodes  map[string]*Node
	RootID string
}

// BuildTree validates and assembles a Tree from a flat node list and a
// root id, per spec §3 invariants: child lists non-empty, the id graph is
// a DAG with a single root, and no node id appears twice on any
// root-to-leaf path.
func BuildTree(nodes []Node, rootID string) (*Tree, error) {
	byID := make(map[string]*Node, len(nodes))
	for i := range nodes {
		n := nodes[i]
		if n.ID == "" {
			return nil, errs.New(errs.KindConfigInvalid, "factor node id must not be empty")
		}
		if _, dup := byID[n.ID]; dup {
			return nil, errs.New(errs.KindConfigInvalid, "duplicate factor node id: "+n.ID)
		}
		if (n.Variant == VariantAnd || n.Variant == VariantOr) && len(n.Children) == 0 {
			return nil, errs.New(errs.KindConfigInvalid, "and/or node must have at least one child: "+n.ID)
		}
		byID[n.ID] = &n
	}
	if _, ok := byID[rootID]; !ok {
		return nil, errs.New(errs.KindConfigInvalid, "root_factor id not found: "+rootID)
	}
	for _, n := range byID {
		for _, c := range n.Children {
			if _, ok := byID[c]; !ok {
				return nil, errs.New(errs.KindConfigInvalid, "factor node "+n.ID+" references unknown child "+c)
			}
		}
	}

	t := &Tree{Nodes: byID, RootID: rootID}
	if err := t.checkAcyclic(); err != nil {
		return nil, err
	}
	return t, nil
}

// checkAcyclic walks every root-to-leaf path keeping the set of ids
// already on the current descent; revisiting an id on the same path is
// rejected. Shared sub-nodes reached via two different parents (a
// diamond) are fine as long as neither path through them repeats an id.
func (t *Tree) checkAcyclic() error {
	onPath := make(map[string]bool)
	var walk func(id string) error
	walk = func(id string) error {
		if onPath[id] {
			return errs.New(errs.KindConfigInvalid, "factor tree has a cycle through node "+id)
		}
		onPath[id] = true
		defer delete(onPath, id)

		n := t.Nodes[id]
		for _, c := range n.Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(t.RootID)
}

// PostOrder returns node ids reachable from root in post-order (children
// before parents), each id appearing exactly once even if shared by
// multiple parents. Used to order the Initialize walk (initialize.go) and
// the Diff classification below.
func (t *Tree) PostOrder() []string {
	var order []string
	visited := make(map[string]bool)
	var walk func(id string)
	walk = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		n := t.Nodes[id]
		for _, c := range n.Children {
			walk(c)
		}
		order = append(order, id)
	}
	walk(t.RootID)
	return order
}

// Diff classifies, for every node id present in both trees, whether its
// token or its stored state changes between old and new, per spec §4.3
// "Diff rule". Ids present only in newTree are always reported as
// token-changed (nothing to carry forward). Propagation runs bottom-up:
// callers must consult Diff only after PostOrder-ordered derivation, which
// this function itself performs internally via newTree.PostOrder().
func Diff(oldTree, newTree *Tree) (tokensChanged, stateChanged map[string]bool) {
	tokensChanged = make(map[string]bool)
	stateChanged = make(map[string]bool)

	for _, id := range newTree.PostOrder() {
		n := newTree.Nodes[id]
		old, hadOld := oldTree.Nodes[id]

		switch n.Variant {
		case VariantPassword, VariantRecoveryPhrase:
			if !hadOld || old.Variant != n.Variant {
				tokensChanged[id] = true
			}
		case VariantSmartcards:
			if !hadOld || old.Variant != n.Variant {
				tokensChanged[id] = true
				break
			}
			oldFps := make(map[string]bool, len(old.Fingerprints))
			for _, fp := range old.Fingerprints {
				oldFps[fp] = true
			}
			for _, fp := range n.Fingerprints {
				if !oldFps[fp] {
					stateChanged[id] = true
					break
				}
			}
		case VariantOr:
			if !hadOld || old.Variant != VariantOr {
				tokensChanged[id] = true
				break
			}
			for _, c := range n.Children {
				if tokensChanged[c] {
					stateChanged[id] = true
					break
				}
			}
			if !sameStringSet(old.Children, n.Children) {
				stateChanged[id] = true
			}
		case VariantAnd:
			if !hadOld || old.Variant != VariantAnd || !sameStringSet(old.Children, n.Children) {
				tokensChanged[id] = true
				break
			}
			for _, c := range n.Children {
				if tokensChanged[c] {
					tokensChanged[id] = true
					break
				}
			}
		}
	}
	return tokensChanged, stateChanged
}

func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if !set[s] {
			return false
		}
	}
	return true
}

// RemovedIDs returns ids present in oldTree but absent from newTree —
// spec §4.3 "a remove_state set".
func RemovedIDs(oldTree, newTree *Tree) []string {
	var out []string
	for id := range oldTree.Nodes {
		if _, ok := newTree.Nodes[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
