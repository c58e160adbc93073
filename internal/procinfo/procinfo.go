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

// Package procinfo reads process ancestry and identity out of /proc, for the
// permission evaluator's match_user/match_binary/match_tag predicates
// (spec §4.4).
package procinfo

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/passworth/passworthd/internal/errs"
)

// MaxAncestorDepth caps process-ancestry walks, defense-in-depth against a
// pathological or adversarially long parent chain (spec §9
// "Process-ancestry traversal").
const MaxAncestorDepth = 32

// Process is one principal process record, spec §3 "Principal process
// record".
type Process struct {
	PID               int
	EffectiveUID      int
	EffectiveGID      int
	ParentPID         int
	ResolvedBinary    string // exe-link target in the root mount namespace, "" if unresolved
	FirstCmdlineArg   string // first argv entry interpreted as a path, "" if absent/unresolved
	PidfdInode        uint64
}

// ReadProcess loads the identity fields of a single process from /proc/<pid>.
// Binary and cmdline-arg paths are resolved and namespace-sanity-checked
// (spec §4.4 "Binary resolution & namespace sanity"): a path is reported
// only when the stat of that path agrees, by device number, between the
// root filesystem and the process's own /proc/<pid>/root view — otherwise
// the field is left empty so it can never spuriously match a rule.
func ReadProcess(pid int) (Process, error) {
	p := Process{PID: pid}

	status, err := readStatus(pid)
	if err != nil {
		return Process{}, err
	}
	p.EffectiveUID = status.euid
	p.EffectiveGID = status.egid
	p.ParentPID = status.ppid

	if exe, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid)); err == nil {
		if sanityCheckPath(pid, exe) {
			p.ResolvedBinary = exe
		}
	}

	if arg, err := firstCmdlineArg(pid); err == nil && arg != "" {
		abs := arg
		if !filepath.IsAbs(abs) {
			abs = ""
		}
		if abs != "" && sanityCheckPath(pid, abs) {
			p.FirstCmdlineArg = abs
		}
	}

	if inode, err := pidfdInode(pid); err == nil {
		p.PidfdInode = inode
	}

	return p, nil
}

// Ancestors returns the principal chain starting at pid and following
// PPid links until PID 0 or MaxAncestorDepth is reached, depth 0 first.
func Ancestors(pid int) ([]Process, error) {
	var chain []Process
	cur := pid
	for depth := 0; depth < MaxAncestorDepth && cur > 0; depth++ {
		p, err := ReadProcess(cur)
		if err != nil {
			// A process that has already exited mid-walk ends the chain
			// rather than failing the whole lookup.
			break
		}
		chain = append(chain, p)
		cur = p.ParentPID
	}
	return chain, nil
}

type statusFields struct {
	euid, egid, ppid int
}

func readStatus(pid int) (statusFields, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return statusFields{}, errs.Wrap(errs.KindTransient, "read process status", err)
	}
	defer f.Close()

	var out statusFields
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "PPid:"):
			out.ppid = parseFirstInt(line)
		case strings.HasPrefix(line, "Uid:"):
			out.euid = parseSecondInt(line)
		case strings.HasPrefix(line, "Gid:"):
			out.egid = parseSecondInt(line)
		}
	}
	return out, nil
}

func parseFirstInt(line string) int {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, _ := strconv.Atoi(fields[1])
	return v
}

// parseSecondInt reads the "effective" column (second number) of the Uid:/Gid:
// lines, which list real, effective, saved, filesystem in that order.
func parseSecondInt(line string) int {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return 0
	}
	v, _ := strconv.Atoi(fields[2])
	return v
}

func firstCmdlineArg(pid int) (string, error) {
	raw, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if err != nil {
		return "", errs.Wrap(errs.KindTransient, "read process cmdline", err)
	}
	parts := strings.Split(string(raw), "\x00")
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], nil
}

// sanityCheckPath stats path both in the root filesystem and through
// /proc/<pid>/root/<path>, and requires the device numbers to agree.
func sanityCheckPath(pid int, path string) bool {
	var rootStat, nsStat unix.Stat_t
	if err := unix.Stat(path, &rootStat); err != nil {
		return false
	}
	nsPath := filepath.Join(fmt.Sprintf("/proc/%d/root", pid), path)
	if err := unix.Stat(nsPath, &nsStat); err != nil {
		return false
	}
	return rootStat.Dev == nsStat.Dev
}

// pidfdInode returns the inode number of the process's pidfd, used to key
// the tag table so a recycled PID cannot inherit a stale tag (spec §4.4
// "Process tag set").
func pidfdInode(pid int) (uint64, error) {
	fd, err := unix.PidfdOpen(pid, 0)
	if err != nil {
		return 0, errs.Wrap(errs.KindTransient, "open pidfd", err)
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, errs.Wrap(errs.KindTransient, "stat pidfd", err)
	}
	return st.Ino, nil
}
