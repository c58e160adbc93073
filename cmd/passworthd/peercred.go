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

package main

import (
	"net"

	"golang.org/x/sys/unix"

	"github.com/passworth/passworthd/internal/errs"
)

// peerCreds is the caller identity resolved off an accepted UNIX socket
// connection via SO_PEERCRED: the kernel's own record of who is on the
// other end, immune to anything the client claims in its request.
type peerCreds struct {
	pid int
	uid int
}

func peerCredentials(conn *net.UnixConn) (peerCreds, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return peerCreds{}, errs.Wrap(errs.KindInternal, "access raw unix connection", err)
	}

	var cred *unix.Ucred
	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		cred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if ctrlErr != nil {
		return peerCreds{}, errs.Wrap(errs.KindInternal, "control raw unix connection", ctrlErr)
	}
	if sockErr != nil {
		return peerCreds{}, errs.Wrap(errs.KindInternal, "read SO_PEERCRED", sockErr)
	}

	return peerCreds{pid: int(cred.Pid), uid: int(cred.Uid)}, nil
}
