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
	"net"
	"os"

	"github.com/passworth/passworthd/internal/ipc"
)

func socketPath() string {
	if p := os.Getenv("PASSWORTH_SOCK"); p != "" {
		return p
	}
	return "/run/passworth.sock"
}

// roundTrip dials the daemon socket, sends one request, and returns its
// decoded ok-payload. Each CLI invocation makes exactly one connection.
func roundTrip(env ipc.Envelope) (json.RawMessage, error) {
	conn, err := net.Dial("unix", socketPath())
	if err != nil {
		return nil, fmt.Errorf("connect to passworthd: %w", err)
	}
	defer conn.Close()

	if err := ipc.WriteMessage(conn, env); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	raw, err := ipc.ReadMessage(conn)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var resp ipc.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Err != "" {
		return nil, fmt.Errorf("%s", resp.Err)
	}
	return resp.OK, nil
}
