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

// passworth-tag sends a Tag(tags[]) request over the daemon socket, then
// execs the given sub-command (spec §6 "Tag command"). The daemon records
// the tag association against this process's pidfd inode; it is honoured
// only while this PID still resolves to that inode, that is, until this
// process (and, after exec, the replaced process image under the same PID)
// exits.
//
// Usage:
//
//	passworth-tag <tag>[,<tag>...] -- <command> [args...]
package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/passworth/passworthd/internal/ipc"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "passworth-tag: "+err.Error())
		os.Exit(1)
	}
}

func run(args []string) error {
	tagArg, rest, err := splitArgs(args)
	if err != nil {
		return err
	}
	tags := strings.Split(tagArg, ",")

	if err := sendTag(tags); err != nil {
		return fmt.Errorf("register tags: %w", err)
	}

	binPath, err := exec.LookPath(rest[0])
	if err != nil {
		return fmt.Errorf("resolve %s: %w", rest[0], err)
	}
	return syscall.Exec(binPath, rest, os.Environ())
}

func splitArgs(args []string) (tagArg string, rest []string, err error) {
	for i, a := range args {
		if a == "--" {
			if i == 0 || i == len(args)-1 {
				return "", nil, fmt.Errorf("usage: passworth-tag <tag>[,<tag>...] -- <command> [args...]")
			}
			return args[0], args[i+1:], nil
		}
	}
	return "", nil, fmt.Errorf("usage: passworth-tag <tag>[,<tag>...] -- <command> [args...]")
}

func sendTag(tags []string) error {
	sockPath := os.Getenv("PASSWORTH_SOCK")
	if sockPath == "" {
		sockPath = "/run/passworth.sock"
	}
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := ipc.WriteMessage(conn, ipc.Envelope{Kind: ipc.KindTag, Tags: tags}); err != nil {
		return err
	}
	raw, err := ipc.ReadMessage(conn)
	if err != nil {
		return err
	}
	var resp ipc.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return err
	}
	if resp.Err != "" {
		return fmt.Errorf("%s", resp.Err)
	}
	return nil
}
