// Copyright 2026 passworth authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package permission

import (
	"context"
	"sync"
	"time"

	"github.com/passworth/passworthd/internal/errs"
	"github.com/passworth/passworthd/internal/pathcodec"
	"github.com/passworth/passworthd/internal/procinfo"
)

// Prompter drives the foreground confirmation dialog for a prompt-gated
// rule, spec §4.4 step 5. Implemented by internal/foreground.
type Prompter interface {
	Confirm(ctx context.Context, descriptions []string) (bool, error)
}

// Memory is the mutex-protected, rule-id-keyed prompt confirmation cache,
// spec §5 "Prompt memory. Protected by a mutex; keyed by rule id."
type Memory struct {
	mu        sync.Mutex
	confirmed map[string]time.Time
}

// NewMemory returns an empty prompt memory.
func NewMemory() *Memory {
	return &Memory{confirmed: make(map[string]time.Time)}
}

func (m *Memory) recentlyConfirmed(ruleID string, within time.Duration, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.confirmed[ruleID]
	return ok && now.Sub(t) < within
}

func (m *Memory) record(ruleIDs []string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ruleIDs {
		m.confirmed[id] = now
	}
}

// Evaluate implements spec §4.4 in full: per-path rule matching and
// permission union, cross-path intersection, and prompt gating with the
// remember-window. now is threaded in (rather than read from time.Now
// internally) so the caller controls the instant against which
// remember_seconds is measured.
func Evaluate(
	ctx context.Context,
	tree *Tree,
	chain []procinfo.Process,
	paths []pathcodec.Segments,
	required Level,
	users UserLookup,
	tags TagLookup,
	mem *Memory,
	prompter Prompter,
	now time.Time,
) error {
	if len(paths) == 0 {
		return errs.New(errs.KindUnauthorized, "no paths supplied for permission check")
	}

	overall := LevelBits(Write) // identity for intersection
	var promptRuleIDs []string
	var promptDescriptions []string
	promptSeen := make(map[string]bool)

	for _, path := range paths {
		var pathBits Bits
		for _, r := range tree.MatchingRules(path) {
			if !ruleMatches(r, chain, users, tags) {
				continue
			}
			pathBits = pathBits.Union(LevelBits(r.Permit))
			if r.Prompt != nil && !promptSeen[r.ID] {
				promptSeen[r.ID] = true
				promptRuleIDs = append(promptRuleIDs, r.ID)
				promptDescriptions = append(promptDescriptions, r.Prompt.Description)
			}
		}
		overall = overall.Intersect(pathBits)
	}

	if !overall.Has(required) {
		return errs.New(errs.KindUnauthorized, "permission denied")
	}

	if len(promptRuleIDs) > 0 {
		if err := confirmPrompts(ctx, tree, promptRuleIDs, promptDescriptions, mem, prompter, now); err != nil {
			return err
		}
	}

	return nil
}

func confirmPrompts(
	ctx context.Context,
	tree *Tree,
	ruleIDs []string,
	descriptions []string,
	mem *Memory,
	prompter Prompter,
	now time.Time,
) error {
	var pending []string
	var pendingDesc []string
	for i, id := range ruleIDs {
		spec := tree.promptSpec(id)
		if spec == nil {
			continue
		}
		within := time.Duration(spec.RememberSeconds) * time.Second
		if mem.recentlyConfirmed(id, within, now) {
			continue
		}
		pending = append(pending, id)
		pendingDesc = append(pendingDesc, descriptions[i])
	}
	if len(pending) == 0 {
		return nil
	}

	ok, err := prompter.Confirm(ctx, pendingDesc)
	if err != nil {
		return err
	}
	if !ok {
		return errs.New(errs.KindInteractionAborted, "permission prompt declined")
	}
	mem.record(pending, now)
	return nil
}

// promptSpec looks up a rule's PromptSpec by id across the whole tree. The
// tree does not index rules by id directly; this walks all stored rules
// once, which is cheap relative to the interactive prompt it gates.
func (t *Tree) promptSpec(ruleID string) *PromptSpec {
	var found *PromptSpec
	var walk func(n *node)
	walk = func(n *node) {
		if found != nil || n == nil {
			return
		}
		for _, r := range n.rules {
			if r.ID == ruleID {
				found = r.Prompt
				return
			}
		}
		for _, c := range n.literal {
			walk(c)
			if found != nil {
				return
			}
		}
		walk(n.wildcard)
	}
	walk(t.root)
	return found
}
