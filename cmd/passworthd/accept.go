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
	"context"
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/passworth/passworthd/internal/ipc"
	"github.com/passworth/passworthd/internal/procinfo"
	"github.com/passworth/passworthd/internal/server"
)

// acceptLoop accepts connections on listener until ctx is cancelled, handling
// each one on its own goroutine. Every connection is tied to exactly one
// client process identified once, up front, via its peer credentials.
func acceptLoop(ctx context.Context, log *slog.Logger, listener net.Listener, disp *server.Dispatcher) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("accept failed", "error", err)
			continue
		}
		go handleConn(ctx, log, conn, disp)
	}
}

func handleConn(ctx context.Context, log *slog.Logger, conn net.Conn, disp *server.Dispatcher) {
	defer conn.Close()

	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		log.Warn("rejected non-unix connection")
		return
	}
	cred, err := peerCredentials(unixConn)
	if err != nil {
		log.Warn("could not resolve peer credentials", "error", err)
		return
	}
	chain, err := procinfo.Ancestors(cred.pid)
	if err != nil {
		log.Warn("could not resolve peer process ancestry", "pid", cred.pid, "error", err)
		return
	}

	for {
		raw, err := ipc.ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("client connection closed", "error", err)
			}
			return
		}

		env, err := ipc.ParseEnvelope(raw)
		if err != nil {
			writeErr(log, conn, err)
			continue
		}

		if env.Kind == ipc.KindTag {
			err := disp.HandleTag(cred.pid, cred.uid, env.Tags)
			if err != nil {
				writeErr(log, conn, err)
				continue
			}
			resp, _ := ipc.OKResponse(nil)
			if err := ipc.WriteMessage(conn, resp); err != nil {
				log.Debug("write tag response failed", "error", err)
				return
			}
			continue
		}

		result, err := disp.Handle(ctx, env, chain)
		if err != nil {
			writeErr(log, conn, err)
			continue
		}
		resp, err := ipc.OKResponse(result)
		if err != nil {
			writeErr(log, conn, err)
			continue
		}
		if err := ipc.WriteMessage(conn, resp); err != nil {
			log.Debug("write response failed", "error", err)
			return
		}
	}
}

func writeErr(log *slog.Logger, conn net.Conn, err error) {
	if writeErr := ipc.WriteMessage(conn, ipc.ErrResponse(err)); writeErr != nil {
		log.Debug("write error response failed", "error", writeErr)
	}
}
