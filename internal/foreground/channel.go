// Copyright 2026 passworth authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package foreground implements the single-threaded UI driver of spec §4.6:
// a bounded queue of Initialize|Unlock|Prompt messages, each carrying a
// one-shot reply handle, consumed by one dedicated OS thread that is the
// only component allowed to touch UI state.
package foreground

import (
	"context"
	"runtime"

	"github.com/passworth/passworthd/internal/errs"
	"github.com/passworth/passworthd/internal/factor"
)

// initializeMsg is the Initialize B2F message.
type initializeMsg struct {
	newTree    *factor.Tree
	oldTree    *factor.Tree
	prevTokens map[string][]byte
	state      factor.StateStore
	reply      chan initializeReply
}

type initializeReply struct {
	result factor.InitializeResult
	err    error
}

// unlockMsg is the Unlock B2F message.
type unlockMsg struct {
	tree  *factor.Tree
	state factor.StateStore
	reply chan unlockReply
}

type unlockReply struct {
	rootToken  []byte
	prevTokens map[string][]byte
	err        error
}

// promptMsg is the Prompt B2F message, used by the permission evaluator's
// confirmation dialogs (spec §4.4 step 5).
type promptMsg struct {
	descriptions []string
	reply        chan promptReply
}

type promptReply struct {
	confirmed bool
	err       error
}

// envelope is the union of the three B2F message kinds, queued in FIFO
// order (spec §4.6: "Requests are processed in FIFO order, one at a time;
// concurrent dispatcher threads serialize behind the queue.").
type envelope struct {
	initialize *initializeMsg
	unlock     *unlockMsg
	prompt     *promptMsg
}

// Channel is the bounded B2F queue plus the engine bound to whatever UI
// implementation is driving it.
type Channel struct {
	queue  chan envelope
	engine *factor.Engine
	ui     UI
}

// NewChannel constructs a Channel with the given queue depth and UI driver.
// ui must also satisfy factor.UI; NewEngine binds it for the walks.
func NewChannel(queueDepth int, ui UI) *Channel {
	return &Channel{
		queue:  make(chan envelope, queueDepth),
		engine: factor.NewEngine(ui),
		ui:     ui,
	}
}

// Run is the UI thread's event loop. Call it once, from a goroutine that
// will live for the daemon's lifetime; it locks itself to its OS thread so
// the UI driver genuinely owns a dedicated thread, per spec §5.
func (c *Channel) Run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-c.queue:
			c.dispatch(ctx, env)
		}
	}
}

func (c *Channel) dispatch(ctx context.Context, env envelope) {
	switch {
	case env.initialize != nil:
		m := env.initialize
		res, err := c.engine.Initialize(ctx, m.newTree, m.oldTree, m.prevTokens, m.state)
		m.reply <- initializeReply{result: res, err: err}
	case env.unlock != nil:
		m := env.unlock
		root, prev, err := c.engine.Unlock(ctx, m.tree, m.state)
		m.reply <- unlockReply{rootToken: root, prevTokens: prev, err: err}
	case env.prompt != nil:
		m := env.prompt
		ok, err := c.ui.Confirm(ctx, m.descriptions)
		m.reply <- promptReply{confirmed: ok, err: err}
	}
}

// Initialize enqueues an Initialize B2F message and blocks for its reply.
func (c *Channel) Initialize(ctx context.Context, newTree, oldTree *factor.Tree, prevTokens map[string][]byte, state factor.StateStore) (factor.InitializeResult, error) {
	m := &initializeMsg{newTree: newTree, oldTree: oldTree, prevTokens: prevTokens, state: state, reply: make(chan initializeReply, 1)}
	if err := c.enqueue(ctx, envelope{initialize: m}); err != nil {
		return factor.InitializeResult{}, err
	}
	select {
	case <-ctx.Done():
		return factor.InitializeResult{}, errs.Wrap(errs.KindTransient, "initialize cancelled", ctx.Err())
	case r := <-m.reply:
		return r.result, r.err
	}
}

// Unlock enqueues an Unlock B2F message and blocks for its reply.
func (c *Channel) Unlock(ctx context.Context, tree *factor.Tree, state factor.StateStore) ([]byte, map[string][]byte, error) {
	m := &unlockMsg{tree: tree, state: state, reply: make(chan unlockReply, 1)}
	if err := c.enqueue(ctx, envelope{unlock: m}); err != nil {
		return nil, nil, err
	}
	select {
	case <-ctx.Done():
		return nil, nil, errs.Wrap(errs.KindTransient, "unlock cancelled", ctx.Err())
	case r := <-m.reply:
		return r.rootToken, r.prevTokens, r.err
	}
}

// Confirm implements permission.Prompter by enqueueing a Prompt B2F message.
func (c *Channel) Confirm(ctx context.Context, descriptions []string) (bool, error) {
	m := &promptMsg{descriptions: descriptions, reply: make(chan promptReply, 1)}
	if err := c.enqueue(ctx, envelope{prompt: m}); err != nil {
		return false, err
	}
	select {
	case <-ctx.Done():
		return false, errs.Wrap(errs.KindTransient, "prompt cancelled", ctx.Err())
	case r := <-m.reply:
		return r.confirmed, r.err
	}
}

func (c *Channel) enqueue(ctx context.Context, env envelope) error {
	select {
	case c.queue <- env:
		return nil
	case <-ctx.Done():
		return errs.Wrap(errs.KindTransient, "foreground queue enqueue cancelled", ctx.Err())
	}
}
