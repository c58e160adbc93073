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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/passworth/passworthd/internal/ipc"
)

func parseRev(args []string) (*int64, []string, error) {
	if len(args) == 0 {
		return nil, args, nil
	}
	last := args[len(args)-1]
	n, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return nil, args, nil
	}
	return &n, args[:len(args)-1], nil
}

func runUnlock(g globals) error {
	raw, err := roundTrip(ipc.Envelope{Kind: ipc.KindUnlock})
	if err != nil {
		return err
	}
	printResult(g, raw)
	return nil
}

func runLock(g globals) error {
	raw, err := roundTrip(ipc.Envelope{Kind: ipc.KindLock})
	if err != nil {
		return err
	}
	printResult(g, raw)
	return nil
}

func runMetaKeys(g globals, args []string) error {
	at, rest, err := parseRev(args)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("usage: meta-keys <path> [rev]")
	}
	raw, err := roundTrip(ipc.Envelope{Kind: ipc.KindMetaKeys, Paths: []string{rest[0]}, At: at})
	if err != nil {
		return err
	}
	printResult(g, raw)
	return nil
}

func runMetaPgpPubkey(g globals, args []string) error {
	at, rest, err := parseRev(args)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("usage: meta-pgp-pubkey <path> [rev]")
	}
	raw, err := roundTrip(ipc.Envelope{Kind: ipc.KindMetaPgpPubkey, Path: rest[0], At: at})
	if err != nil {
		return err
	}
	printResult(g, raw)
	return nil
}

func runMetaSshPubkey(g globals, args []string) error {
	at, rest, err := parseRev(args)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("usage: meta-ssh-pubkey <path> [rev]")
	}
	raw, err := roundTrip(ipc.Envelope{Kind: ipc.KindMetaSshPubkey, Path: rest[0], At: at})
	if err != nil {
		return err
	}
	printResult(g, raw)
	return nil
}

func runRead(g globals, args []string) error {
	at, rest, err := parseRev(args)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("usage: read <path> [rev]")
	}
	raw, err := roundTrip(ipc.Envelope{Kind: ipc.KindRead, Paths: []string{rest[0]}, At: at})
	if err != nil {
		return err
	}
	printResult(g, raw)
	return nil
}

func runReadRevisions(g globals, args []string) error {
	at, rest, err := parseRev(args)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return fmt.Errorf("usage: read-revisions <paths...> [rev]")
	}
	raw, err := roundTrip(ipc.Envelope{Kind: ipc.KindMetaRevisions, Paths: rest, At: at})
	if err != nil {
		return err
	}
	printResult(g, raw)
	return nil
}

func runWrite(g globals, args []string) error {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	jsonIn := fs.Bool("json", false, "interpret stdin as a JSON value")
	binaryIn := fs.Bool("binary", false, "interpret stdin as raw binary, base64-encoded on the wire")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: write <path> [--json|--binary]")
	}
	path := fs.Arg(0)

	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	value, err := encodeWriteValue(input, *jsonIn, *binaryIn)
	if err != nil {
		return err
	}

	raw, err := roundTrip(ipc.Envelope{
		Kind:  ipc.KindWrite,
		Pairs: []ipc.WritePair{{Path: path, Value: value}},
	})
	if err != nil {
		return err
	}
	printResult(g, raw)
	return nil
}

// encodeWriteValue turns raw stdin bytes into the JSON value stored at a
// path: parsed as-is for --json, base64-wrapped for --binary, or treated as
// a plain UTF-8 string by default.
func encodeWriteValue(input []byte, jsonIn, binaryIn bool) (json.RawMessage, error) {
	switch {
	case jsonIn:
		var v any
		if err := json.Unmarshal(input, &v); err != nil {
			return nil, fmt.Errorf("stdin is not valid JSON: %w", err)
		}
		return json.RawMessage(input), nil
	case binaryIn:
		encoded := base64.StdEncoding.EncodeToString(input)
		return json.Marshal(encoded)
	default:
		return json.Marshal(string(input))
	}
}

func runWriteEdit(g globals, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: write-edit <path>")
	}
	path := args[0]

	editor := os.Getenv("SECURE_EDITOR")
	if editor == "" {
		return fmt.Errorf("SECURE_EDITOR is not set")
	}
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = os.TempDir()
	}

	tmp, err := os.CreateTemp(runtimeDir, "passworth-edit-*")
	if err != nil {
		return fmt.Errorf("create scratch file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	existing, err := roundTrip(ipc.Envelope{Kind: ipc.KindRead, Paths: []string{path}})
	if err == nil {
		if m, ok := decodePathMap(existing); ok {
			if v, ok := m[path]; ok {
				var s string
				if json.Unmarshal(v, &s) == nil {
					_ = os.WriteFile(tmpPath, []byte(s), 0o600)
				}
			}
		}
	}

	cmd := exec.Command(editor, tmpPath)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %s: %w", editor, err)
	}

	edited, err := os.ReadFile(tmpPath)
	if err != nil {
		return fmt.Errorf("read edited scratch file: %w", err)
	}

	raw, err := roundTrip(ipc.Envelope{
		Kind:  ipc.KindWrite,
		Pairs: []ipc.WritePair{{Path: path, Value: mustMarshalString(string(edited))}},
	})
	if err != nil {
		return err
	}
	printResult(g, raw)
	return nil
}

func decodePathMap(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	var m map[string]json.RawMessage
	if json.Unmarshal(raw, &m) != nil {
		return nil, false
	}
	return m, true
}

func mustMarshalString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func runWriteMove(g globals, args []string) error {
	fs := flag.NewFlagSet("write-move", flag.ExitOnError)
	overwrite := fs.Bool("overwrite", false, "allow overwriting a non-null value at the destination")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: write-move <from> <to> [--overwrite]")
	}
	raw, err := roundTrip(ipc.Envelope{
		Kind: ipc.KindWriteMove, From: fs.Arg(0), To: fs.Arg(1), Overwrite: *overwrite,
	})
	if err != nil {
		return err
	}
	printResult(g, raw)
	return nil
}

func runWriteGenerate(g globals, args []string) error {
	fs := flag.NewFlagSet("write-generate", flag.ExitOnError)
	overwrite := fs.Bool("overwrite", false, "allow overwriting an existing value")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: write-generate <path> <variant> [--overwrite]")
	}
	raw, err := roundTrip(ipc.Envelope{
		Kind: ipc.KindWriteGenerate, Path: fs.Arg(0), Variant: fs.Arg(1), Overwrite: *overwrite,
	})
	if err != nil {
		return err
	}
	printResult(g, raw)
	return nil
}

func runWriteRevert(g globals, args []string) error {
	fs := flag.NewFlagSet("write-revert", flag.ExitOnError)
	revision := fs.Int64("revision", 0, "revision id to revert to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: write-revert <paths...> --revision N")
	}
	raw, err := roundTrip(ipc.Envelope{Kind: ipc.KindWriteRevert, Paths: fs.Args(), At: revision})
	if err != nil {
		return err
	}
	printResult(g, raw)
	return nil
}

func runDerivePgpSign(g globals, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: derive-pgp-sign <key> <file>")
	}
	data, err := readFileOrStdin(args[1])
	if err != nil {
		return err
	}
	raw, err := roundTrip(ipc.Envelope{
		Kind: ipc.KindDerivePgpSign, Key: args[0], Data: base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return err
	}
	printResult(g, raw)
	return nil
}

func runDerivePgpDecrypt(g globals, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: derive-pgp-decrypt <key> <file>")
	}
	data, err := readFileOrStdin(args[1])
	if err != nil {
		return err
	}
	raw, err := withProgress(fmt.Sprintf("decrypting %s", args[1]), len(data), func() (json.RawMessage, error) {
		return roundTrip(ipc.Envelope{
			Kind: ipc.KindDerivePgpDecrypt, Key: args[0], Data: base64.StdEncoding.EncodeToString(data),
		})
	})
	if err != nil {
		return err
	}
	printResult(g, raw)
	return nil
}

func runDeriveOtp(g globals, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: derive-otp <key>")
	}
	raw, err := roundTrip(ipc.Envelope{Kind: ipc.KindDeriveOtp, Key: args[0]})
	if err != nil {
		return err
	}
	printResult(g, raw)
	return nil
}

func runScanCards(g globals) error {
	return fmt.Errorf("scan-cards requires a PC/SC smartcard reader bound to the daemon; none is available in this build")
}

func runRawJSON(g globals, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: json <payload>")
	}
	var env ipc.Envelope
	if err := json.Unmarshal([]byte(args[0]), &env); err != nil {
		return fmt.Errorf("payload is not a valid request object: %w", err)
	}
	raw, err := roundTrip(env)
	if err != nil {
		return err
	}
	printResult(g, raw)
	return nil
}

func readFileOrStdin(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(filepath.Clean(path))
}
