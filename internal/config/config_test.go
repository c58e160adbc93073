// Copyright 2026 passworth authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/passworth/passworthd/internal/pathcodec"
	"github.com/passworth/passworthd/internal/permission"
)

func parseTestPath(t *testing.T, s string) (pathcodec.Segments, error) {
	t.Helper()
	return pathcodec.Parse(s)
}

const minimalConfig = `{
	"data_path": "/var/lib/passworth",
	"auth_factors": [
		{"id": "pw", "description": "master password", "variant": "password"}
	],
	"root_factor": "pw",
	"lock_timeout": 300,
	"access": [
		{
			"id": "owner-all",
			"paths": ["/*"],
			"match_user": {"user": "1000"},
			"permit": "write"
		}
	]
}`

func TestParseMinimalConfig(t *testing.T) {
	cfg, err := Parse([]byte(minimalConfig))
	require.NoError(t, err)
	require.Equal(t, "/var/lib/passworth", cfg.DataPath)
	require.Equal(t, "pw", cfg.FactorTree.RootID)
	require.Equal(t, 300*time.Second, cfg.LockTimeout)
}

func TestParseRejectsUnknownVariant(t *testing.T) {
	_, err := Parse([]byte(`{
		"data_path": "/x", "lock_timeout": 1, "root_factor": "pw",
		"auth_factors": [{"id": "pw", "variant": "bogus"}]
	}`))
	require.Error(t, err)
}

func TestParseRejectsMissingDataPath(t *testing.T) {
	_, err := Parse([]byte(`{"lock_timeout": 1, "root_factor": "pw", "auth_factors": [{"id":"pw","variant":"password"}]}`))
	require.Error(t, err)
}

func TestParseRejectsBadPermitLevel(t *testing.T) {
	_, err := Parse([]byte(`{
		"data_path": "/x", "lock_timeout": 1, "root_factor": "pw",
		"auth_factors": [{"id": "pw", "variant": "password"}],
		"access": [{"id": "r1", "paths": ["/*"], "permit": "nonsense"}]
	}`))
	require.Error(t, err)
}

func TestParseBuildsAccessTreeWithMatchingRule(t *testing.T) {
	cfg, err := Parse([]byte(minimalConfig))
	require.NoError(t, err)
	require.NotNil(t, cfg.AccessTree)

	path, err := parseTestPath(t, "/secret")
	require.NoError(t, err)
	rules := cfg.AccessTree.MatchingRules(path)
	require.Len(t, rules, 1)
	require.Equal(t, "owner-all", rules[0].ID)
	require.Equal(t, permission.Write, rules[0].Permit)
}
