// Copyright 2026 the passworthd authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package factor

import (
	"context"

	"github.com/passworth/passworthd/internal/bip39x"
	"github.com/passworth/passworthd/internal/cryptoutil"
	"github.com/passworth/passworthd/internal/errs"
)

// emptyTree is substituted for oldTree on first-time setup (no prior
// configuration), so every new-tree node is treated as brand new by Diff.
var emptyTree = &Tree{Nodes: map[string]*Node{}}

// Initialize performs the descending-New walk of spec §4.3: it walks
// newTree, matching nodes against oldTree by id, producing a (possibly
// unchanged) root token, the state entries that need to be (re)written,
// and the ids whose state should be removed entirely. prevTokens is the
// output of a prior Unlock call against oldTree (or nil on first-time
// setup); reused where the diff rule says no change is required, so an
// unlock immediately followed by a no-op reconfigure never re-prompts.
func (e *Engine) Initialize(ctx context.Context, newTree, oldTree *Tree, prevTokens map[string][]byte, oldState StateStore) (InitializeResult, error) {
	if oldTree == nil {
		oldTree = emptyTree
	}
	if prevTokens == nil {
		prevTokens = map[string][]byte{}
	}

	tokensChanged, stateChanged := Diff(oldTree, newTree)
	newTokens := make(map[string][]byte)
	storeState := make(map[string][]byte)

	for _, id := range newTree.PostOrder() {
		n := newTree.Nodes[id]
		tok, entries, writeState, err := e.initNode(ctx, n, oldTree, oldState, prevTokens, newTokens, tokensChanged[id], stateChanged[id])
		if err != nil {
			return InitializeResult{}, err
		}
		newTokens[id] = tok
		if writeState {
			encoded, err := encodeB64Map(entries)
			if err != nil {
				return InitializeResult{}, err
			}
			storeState[id] = encoded
		}
	}

	return InitializeResult{
		RootToken:   newTokens[newTree.RootID],
		StoreState:  storeState,
		RemoveState: RemovedIDs(oldTree, newTree),
	}, nil
}

func (e *Engine) initNode(
	ctx context.Context,
	n *Node,
	oldTree *Tree,
	oldState StateStore,
	prevTokens map[string][]byte,
	newTokens map[string][]byte,
	tokenChanged, stateChangedFlag bool,
) (token []byte, stateEntries map[string][]byte, writeState bool, err error) {
	switch n.Variant {
	case VariantAnd:
		var concat []byte
		for _, c := range n.Children {
			concat = append(concat, newTokens[c]...)
		}
		return concat, nil, false, nil

	case VariantPassword:
		if !tokenChanged {
			if tok, ok := prevTokens[n.ID]; ok {
				return tok, nil, false, nil
			}
		}
		tok, err := e.UI.NewPassword(ctx, "", n)
		if err != nil {
			return nil, nil, false, err
		}
		return tok, nil, false, nil

	case VariantRecoveryPhrase:
		if !tokenChanged {
			if tok, ok := prevTokens[n.ID]; ok {
				return tok, nil, false, nil
			}
		}
		tok, words, err := bip39x.Generate()
		if err != nil {
			return nil, nil, false, err
		}
		if err := e.UI.NewRecoveryPhrase(ctx, "", n, words); err != nil {
			return nil, nil, false, err
		}
		return tok, nil, false, nil

	case VariantOr:
		return e.initOr(ctx, n, oldTree, oldState, prevTokens, newTokens, tokenChanged, stateChangedFlag)

	case VariantSmartcards:
		return e.initSmartcards(ctx, n, oldState, prevTokens, tokenChanged, stateChangedFlag)

	default:
		return nil, nil, false, errs.New(errs.KindInternal, "unknown factor variant")
	}
}

func (e *Engine) initOr(
	ctx context.Context,
	n *Node,
	oldTree *Tree,
	oldState StateStore,
	prevTokens map[string][]byte,
	newTokens map[string][]byte,
	tokenChanged, stateChangedFlag bool,
) ([]byte, map[string][]byte, bool, error) {
	oldRaw, hasOld, err := oldState.Get(ctx, n.ID)
	if err != nil {
		return nil, nil, false, err
	}
	oldEntries, err := decodeOrState(hasOld, oldRaw)
	if err != nil {
		return nil, nil, false, err
	}

	var token []byte
	reused := false

	// If some new child was already unlocked this session and the old
	// state has a ciphertext for it, decrypting recovers the Or node's
	// own persisted token, so the parent (and ultimately the root) need
	// not change even though we are re-initializing.
	for _, c := range n.Children {
		childTok, ok := newTokens[c]
		if !ok {
			continue
		}
		sealed, ok := oldEntries[c]
		if !ok {
			continue
		}
		if pt, err := cryptoutil.Decrypt(childTok, sealed); err == nil {
			token = pt
			reused = true
			break
		}
	}
	if token == nil && !tokenChanged {
		if tok, ok := prevTokens[n.ID]; ok {
			token = tok
			reused = true
		}
	}
	if token == nil {
		token, err = cryptoutil.RandomToken()
		if err != nil {
			return nil, nil, false, err
		}
	}

	entries := make(map[string][]byte)
	changed := false
	for _, c := range n.Children {
		if reused {
			if sealed, ok := oldEntries[c]; ok {
				entries[c] = sealed
				continue
			}
		}
		sealed, err := cryptoutil.Encrypt(newTokens[c], token)
		if err != nil {
			return nil, nil, false, err
		}
		entries[c] = sealed
		changed = true
	}
	if len(entries) != len(oldEntries) {
		changed = true
	}

	return token, entries, changed || stateChangedFlag || !reused, nil
}

func (e *Engine) initSmartcards(
	ctx context.Context,
	n *Node,
	oldState StateStore,
	prevTokens map[string][]byte,
	tokenChanged, stateChangedFlag bool,
) ([]byte, map[string][]byte, bool, error) {
	oldRaw, hasOld, err := oldState.Get(ctx, n.ID)
	if err != nil {
		return nil, nil, false, err
	}
	oldEntries, err := decodeCardState(hasOld, oldRaw)
	if err != nil {
		return nil, nil, false, err
	}

	var token []byte
	reused := false
	if !tokenChanged {
		if tok, ok := prevTokens[n.ID]; ok {
			token = tok
			reused = true
		}
	}
	if token == nil {
		token, err = cryptoutil.RandomToken()
		if err != nil {
			return nil, nil, false, err
		}
	}

	entries := make(map[string][]byte)
	changed := false
	for _, fp := range n.Fingerprints {
		if reused {
			if sealed, ok := oldEntries[fp]; ok {
				entries[fp] = sealed
				continue
			}
		}
		actualFP, err := e.UI.AcquireCard(ctx, "", n, []string{fp})
		if err != nil {
			return nil, nil, false, err
		}
		sealed, err := e.UI.EncryptToCard(ctx, actualFP, token)
		if err != nil {
			return nil, nil, false, err
		}
		entries[actualFP] = sealed
		changed = true
	}
	if len(entries) != len(oldEntries) {
		changed = true
	}

	return token, entries, changed || stateChangedFlag || !reused, nil
}
