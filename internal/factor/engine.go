// Copyright 2026 the passworthd authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package factor

import (
	"context"
	"sort"

	"github.com/passworth/passworthd/internal/cryptoutil"
	"github.com/passworth/passworthd/internal/errs"
)

// StateStore is the per-node persisted metadata described in spec §3
// "Factor state": a mapping from node id to opaque bytes, held in the
// unencrypted pub database.
type StateStore interface {
	Get(ctx context.Context, id string) ([]byte, bool, error)
	Set(ctx context.Context, id string, data []byte) error
	Delete(ctx context.Context, id string) error
}

// ChildOption is offered to the user when an Or node must be resolved by
// choice rather than by reusing an already-unlocked child.
type ChildOption struct {
	ID          string
	Description string
}

// UI is the set of interactive dialog primitives the factor engine calls
// while driving its walk on the dedicated foreground thread (spec §4.6).
// Implementations are expected to loop internally on recoverable errors,
// prepending an advisory banner to the retried dialog (spec §9 "Interactive
// walks with error retry"); the engine itself only ever calls each method
// once per logical step and propagates whatever the UI finally returns.
type UI interface {
	// PromptPassword asks for Password/RecoveryPhrase material during an
	// unlock walk. banner carries the advisory message from a previous
	// failed attempt at this same node, or "" on the first try.
	PromptPassword(ctx context.Context, banner string, node *Node) ([]byte, error)

	// ChooseOrChild asks the user to pick which child of an Or node to
	// unlock through, when no child is already unlocked.
	ChooseOrChild(ctx context.Context, banner string, node *Node, options []ChildOption) (string, error)

	// DecryptWithCard attempts an OpenPGP decrypt of sealed against the
	// smartcard with the given fingerprint, prompting for card
	// insertion/PIN as needed. Returns errs.KindFactorMismatch on a
	// decryption failure the user should be allowed to retry (wrong
	// card, wrong PIN), and errs.KindInteractionAborted if the user
	// cancels.
	DecryptWithCard(ctx context.Context, banner string, fingerprint string, sealed []byte) ([]byte, error)

	// NewPassword asks for a fresh password during an initialize walk,
	// optionally offering a generator, and must reject on confirmation
	// mismatch by retrying internally before returning.
	NewPassword(ctx context.Context, banner string, node *Node) ([]byte, error)

	// AcquireCard asks the user to present the smartcard matching one of
	// the wanted fingerprints (for adding a new card during initialize)
	// and returns which fingerprint was actually presented.
	AcquireCard(ctx context.Context, banner string, node *Node, wanted []string) (string, error)

	// EncryptToCard OpenPGP-encrypts token to the given card fingerprint.
	EncryptToCard(ctx context.Context, fingerprint string, token []byte) ([]byte, error)

	// NewRecoveryPhrase displays a freshly generated BIP-39 phrase and
	// then requires the user to retype it exactly before returning.
	NewRecoveryPhrase(ctx context.Context, banner string, node *Node, words []string) error
}

// InitializeResult is the output of an initialize walk, spec §4.3 "Output
// of initialize".
type InitializeResult struct {
	RootToken   []byte
	StoreState  map[string][]byte // only nodes whose state changed
	RemoveState []string          // ids present in old tree but absent in new
}

// Engine drives the unlock and initialize walks over a factor tree.
type Engine struct {
	UI UI
}

// NewEngine builds an Engine bound to the given interactive UI.
func NewEngine(ui UI) *Engine {
	return &Engine{UI: ui}
}

// Unlock performs the descending-Prev walk of spec §4.3, returning the
// root token and the map of per-node tokens derived along the way
// (prev_tokens), which Initialize can later reuse to avoid re-prompting
// unchanged nodes.
func (e *Engine) Unlock(ctx context.Context, tree *Tree, state StateStore) (rootToken []byte, prevTokens map[string][]byte, err error) {
	prevTokens = make(map[string][]byte)
	token, err := e.unlockNode(ctx, tree, state, tree.RootID, prevTokens)
	if err != nil {
		return nil, nil, err
	}
	return token, prevTokens, nil
}

// unlockNode derives one node's token, recursing into children first
// (enter-then-exit per spec §9, expressed here as ordinary call recursion
// bounded by the tree's acyclic invariant rather than an explicit stack —
// BuildTree already rejects cycles, so recursion depth is bounded by tree
// depth).
func (e *Engine) unlockNode(ctx context.Context, tree *Tree, state StateStore, id string, prevTokens map[string][]byte) ([]byte, error) {
	if tok, ok := prevTokens[id]; ok {
		return tok, nil
	}
	n := tree.Nodes[id]

	switch n.Variant {
	case VariantAnd:
		var concat []byte
		for _, c := range n.Children {
			tok, err := e.unlockNode(ctx, tree, state, c, prevTokens)
			if err != nil {
				return nil, err
			}
			concat = append(concat, tok...)
		}
		prevTokens[id] = concat
		return concat, nil

	case VariantOr:
		// If exactly one child is already present in prevTokens (from a
		// sibling And branch having unlocked it independently), reuse it
		// by decrypting the stored ciphertext for that child.
		stateBytes, hasState, err := state.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		entries, err := decodeOrState(hasState, stateBytes)
		if err != nil {
			return nil, err
		}

		for _, c := range n.Children {
			if childTok, ok := prevTokens[c]; ok {
				sealed, ok := entries[c]
				if !ok {
					return nil, errs.New(errs.KindFactorMismatch, "no stored state for already-unlocked child "+c)
				}
				tok, err := cryptoutil.Decrypt(childTok, sealed)
				if err != nil {
					return nil, err
				}
				prevTokens[id] = tok
				return tok, nil
			}
		}

		// Nothing unlocked yet: prompt the user to choose a child, then
		// recurse into it.
		banner := ""
		for {
			var opts []ChildOption
			for _, c := range n.Children {
				opts = append(opts, ChildOption{ID: c, Description: tree.Nodes[c].Description})
			}
			chosen, err := e.UI.ChooseOrChild(ctx, banner, n, opts)
			if err != nil {
				return nil, err
			}
			childTok, err := e.unlockNode(ctx, tree, state, chosen, prevTokens)
			if err != nil {
				if errs.IsRetryable(err) {
					banner = errs.ClientMessage(err)
					continue
				}
				return nil, err
			}
			sealed, ok := entries[chosen]
			if !ok {
				return nil, errs.New(errs.KindFactorMismatch, "no stored state for chosen child "+chosen)
			}
			tok, err := cryptoutil.Decrypt(childTok, sealed)
			if err != nil {
				return nil, err
			}
			prevTokens[id] = tok
			return tok, nil
		}

	case VariantPassword, VariantRecoveryPhrase:
		banner := ""
		for {
			tok, err := e.UI.PromptPassword(ctx, banner, n)
			if err != nil {
				return nil, err
			}
			prevTokens[id] = tok
			return tok, nil
		}

	case VariantSmartcards:
		stateBytes, hasState, err := state.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		entries, err := decodeCardState(hasState, stateBytes)
		if err != nil {
			return nil, err
		}
		banner := ""
		fps := sortedKeys(entries)
		idx := 0
		for {
			if len(fps) == 0 {
				return nil, errs.New(errs.KindFactorMismatch, "no smartcards configured for "+id)
			}
			fp := fps[idx%len(fps)]
			tok, err := e.UI.DecryptWithCard(ctx, banner, fp, entries[fp])
			if err == nil {
				prevTokens[id] = tok
				return tok, nil
			}
			if errs.IsAborted(err) {
				return nil, err
			}
			banner = errs.ClientMessage(err)
			idx++
		}

	default:
		return nil, errs.New(errs.KindInternal, "unknown factor variant")
	}
}

func sortedKeys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
