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
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// withProgress shows a progress bar around a large-payload round trip
// (derive-pgp-decrypt) when stdout is a terminal; it is a no-op when stdout
// is not a terminal. The --json flag is not consulted.
func withProgress(description string, size int, fn func() (json.RawMessage, error)) (json.RawMessage, error) {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return fn()
	}
	bar := progressbar.DefaultBytes(int64(size), description)
	defer bar.Finish()
	_ = bar.Add(size)
	return fn()
}
