// Copyright 2026 passworth authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"

	"github.com/passworth/passworthd/internal/errs"
	"github.com/passworth/passworthd/internal/pathcodec"
	"github.com/passworth/passworthd/internal/revstore"
)

// nullLeaves implements spec §4.5 MetaKeys: "a JSON skeleton with null
// leaves, echoing the structure of the stored tree". It walks the merged
// tree ReadPrefix already reconstructed and replaces every scalar/array
// leaf with null, keeping object nesting intact.
func nullLeaves(raw json.RawMessage) (json.RawMessage, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errs.Wrap(errs.KindInternal, "unmarshal meta_keys tree", err)
	}
	nulled := nullLeavesValue(v)
	out, err := json.Marshal(nulled)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "marshal meta_keys tree", err)
	}
	return out, nil
}

func nullLeavesValue(v any) any {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]any, len(obj))
	for k, child := range obj {
		out[k] = nullLeavesValue(child)
	}
	return out
}

// revisionTreeNode is one node of a meta_revisions response, spec §4.5:
// "{children: {seg: {...}}, exists, rev_id, rev_stamp}".
type revisionTreeNode struct {
	Children map[string]*revisionTreeNode `json:"children,omitempty"`
	Exists   bool                         `json:"exists"`
	RevID    int64                        `json:"rev_id"`
	RevStamp string                       `json:"rev_stamp"`
}

// buildRevisionTree turns the flat map RevisionsPrefix returns, keyed by
// full rendered path, into the nested children structure spec §4.5 names.
func buildRevisionTree(base pathcodec.Segments, entries map[string]revstore.RevisionEntry) (*revisionTreeNode, error) {
	root := &revisionTreeNode{Children: map[string]*revisionTreeNode{}}
	basePath := pathcodec.Render(base)
	if e, ok := entries[basePath]; ok {
		root.Exists = e.Exists
		root.RevID = e.RevID
		root.RevStamp = e.RevStamp.Format("2006-01-02T15:04:05Z07:00")
	}
	for p, e := range entries {
		segs, err := pathcodec.Parse(p)
		if err != nil {
			return nil, errs.Wrap(errs.KindInternal, "parse revision path", err)
		}
		if len(segs) <= len(base) {
			continue
		}
		rel := segs[len(base):]
		cur := root
		for _, seg := range rel {
			next, ok := cur.Children[seg]
			if !ok {
				next = &revisionTreeNode{Children: map[string]*revisionTreeNode{}}
				cur.Children[seg] = next
			}
			cur = next
		}
		cur.Exists = e.Exists
		cur.RevID = e.RevID
		cur.RevStamp = e.RevStamp.Format("2006-01-02T15:04:05Z07:00")
	}
	pruneEmptyChildren(root)
	return root, nil
}

func pruneEmptyChildren(n *revisionTreeNode) {
	if len(n.Children) == 0 {
		n.Children = nil
		return
	}
	for _, c := range n.Children {
		pruneEmptyChildren(c)
	}
}
