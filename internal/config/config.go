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

// Package config loads and validates the daemon's JSON configuration file
// (spec §6 "Configuration file") into the typed structures the factor and
// permission packages operate on.
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/passworth/passworthd/internal/errs"
	"github.com/passworth/passworthd/internal/factor"
	"github.com/passworth/passworthd/internal/pathcodec"
	"github.com/passworth/passworthd/internal/permission"
)

// Config is the parsed, validated daemon configuration.
type Config struct {
	DataPath    string
	RootFactor  string
	LockTimeout time.Duration

	FactorTree *factor.Tree
	AccessTree *permission.Tree

	// raw is the decoded JSON as Parse read it; nothing in this package
	// reads it back after Parse returns.
	raw rawConfig
}

type rawConfig struct {
	DataPath    string          `json:"data_path"`
	AuthFactors []rawFactorNode `json:"auth_factors"`
	RootFactor  string          `json:"root_factor"`
	LockTimeout int             `json:"lock_timeout"`
	Access      []rawRule       `json:"access"`
}

type rawFactorNode struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	Variant      string   `json:"variant"`
	Children     []string `json:"children,omitempty"`
	Fingerprints []string `json:"fingerprints,omitempty"`
}

type rawUserMatch struct {
	User          *string `json:"user,omitempty"`
	Group         *string `json:"group,omitempty"`
	WalkAncestors int     `json:"walk_ancestors,omitempty"`
}

type rawBinaryMatch struct {
	Path          string  `json:"path"`
	FirstArgPath  *string `json:"first_arg_path,omitempty"`
	WalkAncestors int     `json:"walk_ancestors,omitempty"`
}

type rawTagMatch struct {
	Tag           string `json:"tag"`
	User          string `json:"user"`
	WalkAncestors int    `json:"walk_ancestors,omitempty"`
}

type rawPrompt struct {
	Description     string `json:"description"`
	RememberSeconds int    `json:"remember_seconds,omitempty"`
}

type rawRule struct {
	ID          string          `json:"id"`
	Paths       []string        `json:"paths"`
	MatchTag    *rawTagMatch    `json:"match_tag,omitempty"`
	MatchUser   *rawUserMatch   `json:"match_user,omitempty"`
	MatchBinary *rawBinaryMatch `json:"match_binary,omitempty"`
	Permit      string          `json:"permit"`
	Prompt      *rawPrompt      `json:"prompt,omitempty"`
}

// Load reads, parses, and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfigInvalid, "read config file", err)
	}
	return Parse(data)
}

// Parse validates and builds a Config from raw JSON bytes.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errs.Wrap(errs.KindConfigInvalid, "parse config json", err)
	}
	if raw.DataPath == "" {
		return nil, errs.New(errs.KindConfigInvalid, "data_path is required")
	}
	if raw.LockTimeout <= 0 {
		return nil, errs.New(errs.KindConfigInvalid, "lock_timeout must be a positive number of seconds")
	}

	nodes := make([]factor.Node, 0, len(raw.AuthFactors))
	for _, n := range raw.AuthFactors {
		variant, ok := parseVariant(n.Variant)
		if !ok {
			return nil, errs.New(errs.KindConfigInvalid, "unknown factor variant: "+n.Variant)
		}
		nodes = append(nodes, factor.Node{
			ID:           n.ID,
			Description:  n.Description,
			Variant:      variant,
			Children:     n.Children,
			Fingerprints: n.Fingerprints,
		})
	}
	tree, err := factor.BuildTree(nodes, raw.RootFactor)
	if err != nil {
		return nil, err
	}

	rules := make([]permission.Rule, 0, len(raw.Access))
	seenRuleIDs := make(map[string]bool, len(raw.Access))
	for _, rr := range raw.Access {
		if seenRuleIDs[rr.ID] {
			return nil, errs.New(errs.KindConfigInvalid, "duplicate access rule id: "+rr.ID)
		}
		seenRuleIDs[rr.ID] = true
		rule, err := parseRule(rr)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return &Config{
		DataPath:    raw.DataPath,
		RootFactor:  raw.RootFactor,
		LockTimeout: time.Duration(raw.LockTimeout) * time.Second,
		FactorTree:  tree,
		AccessTree:  permission.Build(rules),
		raw:         raw,
	}, nil
}

func parseVariant(s string) (factor.Variant, bool) {
	switch s {
	case "and":
		return factor.VariantAnd, true
	case "or":
		return factor.VariantOr, true
	case "password":
		return factor.VariantPassword, true
	case "smartcards":
		return factor.VariantSmartcards, true
	case "recovery_phrase":
		return factor.VariantRecoveryPhrase, true
	default:
		return 0, false
	}
}

func parseRule(rr rawRule) (permission.Rule, error) {
	if rr.ID == "" {
		return permission.Rule{}, errs.New(errs.KindConfigInvalid, "access rule id must not be empty")
	}
	if len(rr.Paths) == 0 {
		return permission.Rule{}, errs.New(errs.KindConfigInvalid, "access rule "+rr.ID+" has no paths")
	}
	level, ok := permission.ParseLevel(rr.Permit)
	if !ok {
		return permission.Rule{}, errs.New(errs.KindConfigInvalid, "access rule "+rr.ID+" has unknown permit level: "+rr.Permit)
	}

	globs := make([]pathcodec.GlobSegments, 0, len(rr.Paths))
	for _, p := range rr.Paths {
		g, err := pathcodec.ParseGlob(p)
		if err != nil {
			return permission.Rule{}, errs.Wrap(errs.KindConfigInvalid, "access rule "+rr.ID+" has invalid path", err)
		}
		globs = append(globs, g)
	}

	rule := permission.Rule{ID: rr.ID, Paths: globs, Permit: level}
	if rr.MatchUser != nil {
		rule.MatchUser = &permission.UserMatch{User: rr.MatchUser.User, Group: rr.MatchUser.Group, WalkAncestors: rr.MatchUser.WalkAncestors}
	}
	if rr.MatchBinary != nil {
		if rr.MatchBinary.Path == "" {
			return permission.Rule{}, errs.New(errs.KindConfigInvalid, "access rule "+rr.ID+" match_binary requires path")
		}
		rule.MatchBinary = &permission.BinaryMatch{Path: rr.MatchBinary.Path, FirstArgPath: rr.MatchBinary.FirstArgPath, WalkAncestors: rr.MatchBinary.WalkAncestors}
	}
	if rr.MatchTag != nil {
		if rr.MatchTag.Tag == "" || rr.MatchTag.User == "" {
			return permission.Rule{}, errs.New(errs.KindConfigInvalid, "access rule "+rr.ID+" match_tag requires tag and user")
		}
		rule.MatchTag = &permission.TagMatch{Tag: rr.MatchTag.Tag, User: rr.MatchTag.User, WalkAncestors: rr.MatchTag.WalkAncestors}
	}
	if rr.Prompt != nil {
		rule.Prompt = &permission.PromptSpec{Description: rr.Prompt.Description, RememberSeconds: rr.Prompt.RememberSeconds}
	}
	return rule, nil
}
