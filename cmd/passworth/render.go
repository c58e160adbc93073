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
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// globals holds the CLI's output-mode flags, set once in main and threaded
// through the command handlers.
type globals struct {
	json    bool
	noColor bool
}

func (g globals) colorEnabled() bool {
	if g.json || g.noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

func (g globals) okColor() func(format string, a ...interface{}) string {
	if !g.colorEnabled() {
		return fmt.Sprintf
	}
	return color.New(color.FgGreen).SprintfFunc()
}

func (g globals) warnColor() func(format string, a ...interface{}) string {
	if !g.colorEnabled() {
		return fmt.Sprintf
	}
	return color.New(color.FgYellow).SprintfFunc()
}

func (g globals) errColor() func(format string, a ...interface{}) string {
	if !g.colorEnabled() {
		return fmt.Sprintf
	}
	return color.New(color.FgRed, color.Bold).SprintfFunc()
}

// printResult renders a successful ok-payload either as raw JSON (--json) or
// as a best-effort human-readable rendering.
func printResult(g globals, raw json.RawMessage) {
	if g.json {
		fmt.Println(string(raw))
		return
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Println(string(raw))
		return
	}
	switch t := v.(type) {
	case string:
		fmt.Println(t)
	case nil:
		fmt.Println(g.warnColor()("(null)"))
	default:
		pretty, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			fmt.Println(string(raw))
			return
		}
		fmt.Println(string(pretty))
	}
}

func fatal(g globals, err error) {
	fmt.Fprintln(os.Stderr, g.errColor()("error: %v", err))
	os.Exit(1)
}
