// Copyright 2026 passworth authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"os/user"
	"strconv"
)

// osUserLookup resolves permission.UserMatch/TagMatch user/group strings
// through os/user, accepting either a numeric id or a name.
type osUserLookup struct{}

func (osUserLookup) UID(name string) (int, bool) {
	if id, err := strconv.Atoi(name); err == nil {
		return id, true
	}
	u, err := user.Lookup(name)
	if err != nil {
		return 0, false
	}
	id, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (osUserLookup) GID(name string) (int, bool) {
	if id, err := strconv.Atoi(name); err == nil {
		return id, true
	}
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, false
	}
	id, err := strconv.Atoi(g.Gid)
	if err != nil {
		return 0, false
	}
	return id, true
}
