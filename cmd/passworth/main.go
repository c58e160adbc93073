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

// passworth is the CLI client for passworthd (spec §6's CLI surface).
//
// Usage:
//
//	passworth <command> [args...]
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
)

func main() {
	var (
		jsonOutput = flag.Bool("json", false, "Output raw JSON instead of a human-readable rendering")
		noColor    = flag.Bool("no-color", false, "Disable color output")
	)
	flag.SetInterspersed(false)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `passworth - local secrets client

Usage:
  passworth <command> [args...]

Commands:
  unlock
  lock
  meta-keys <path> [rev]
  meta-pgp-pubkey <path> [rev]
  meta-ssh-pubkey <path> [rev]
  read <path> [rev]
  read-revisions <paths...> [rev]
  write <path> [--json|--binary]
  write-edit <path>
  write-move <from> <to> [--overwrite]
  write-generate <path> <variant> [--overwrite]
  write-revert <paths...> --revision N
  derive-pgp-sign <key> <file>
  derive-pgp-decrypt <key> <file>
  derive-otp <key>
  scan-cards
  json <payload>

Options:
  --json       Output raw JSON instead of a human-readable rendering
  --no-color   Disable color output (respects NO_COLOR)
`)
	}
	flag.Parse()

	g := globals{json: *jsonOutput, noColor: *noColor}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "unlock":
		err = runUnlock(g)
	case "lock":
		err = runLock(g)
	case "meta-keys":
		err = runMetaKeys(g, rest)
	case "meta-pgp-pubkey":
		err = runMetaPgpPubkey(g, rest)
	case "meta-ssh-pubkey":
		err = runMetaSshPubkey(g, rest)
	case "read":
		err = runRead(g, rest)
	case "read-revisions":
		err = runReadRevisions(g, rest)
	case "write":
		err = runWrite(g, rest)
	case "write-edit":
		err = runWriteEdit(g, rest)
	case "write-move":
		err = runWriteMove(g, rest)
	case "write-generate":
		err = runWriteGenerate(g, rest)
	case "write-revert":
		err = runWriteRevert(g, rest)
	case "derive-pgp-sign":
		err = runDerivePgpSign(g, rest)
	case "derive-pgp-decrypt":
		err = runDerivePgpDecrypt(g, rest)
	case "derive-otp":
		err = runDeriveOtp(g, rest)
	case "scan-cards":
		err = runScanCards(g)
	case "json":
		err = runRawJSON(g, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		fatal(g, err)
	}
}
