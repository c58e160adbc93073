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
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// passworthd is the daemon: it loads its configuration, opens the pub/priv
// databases, and accepts requests over a UNIX socket, per spec §6.
//
// Usage:
//
//	passworthd --config /etc/passworth/config.json
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/passworth/passworthd/internal/config"
	"github.com/passworth/passworthd/internal/factor"
	"github.com/passworth/passworthd/internal/foreground"
	"github.com/passworth/passworthd/internal/secretmem"
	"github.com/passworth/passworthd/internal/server"
	"github.com/passworth/passworthd/internal/sqlitekv"
)

func main() {
	var (
		configPath  = flag.StringP("config", "c", "/etc/passworth/config.json", "Path to the daemon's JSON configuration file")
		foregroundF = flag.Bool("foreground", false, "Log human-readable text to stderr instead of JSON to a log file")
		debugAddr   = flag.String("debug-addr", "127.0.0.1:9477", "Loopback-only address serving /metrics")
		logPath     = flag.String("log-file", "/var/log/passworthd.log", "Structured log file path (ignored with --foreground)")
	)
	flag.SetInterspersed(false)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `passworthd - local single-user secrets daemon

Usage:
  passworthd [--config path] [--foreground] [--debug-addr addr]

Options:
  -c, --config       Path to the JSON configuration file
      --foreground   Log to stderr in text form instead of to --log-file
      --debug-addr    Loopback address serving Prometheus /metrics
      --log-file      Structured JSON log destination
`)
	}
	flag.Parse()

	log := newLogger(*foregroundF, *logPath)
	secretmem.LockAddressSpace(log)

	if err := run(log, *configPath, *debugAddr); err != nil {
		log.Error("passworthd exited with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(foregroundMode bool, logPath string) *slog.Logger {
	if foregroundMode {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		fallback := slog.New(slog.NewTextHandler(os.Stderr, nil))
		fallback.Warn("could not open log file, logging to stderr", "path", logPath, "error", err)
		return fallback
	}
	return slog.New(slog.NewJSONHandler(f, nil))
}

func run(log *slog.Logger, configPath, debugAddr string) error {
	configData, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	cfg, err := config.Parse(configData)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataPath, 0o700); err != nil {
		return err
	}
	pubDB, err := sqlitekv.Open(filepath.Join(cfg.DataPath, "pub.sqlite"))
	if err != nil {
		return err
	}
	defer pubDB.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubStore, err := config.OpenPubStore(ctx, pubDB)
	if err != nil {
		return err
	}

	ui := foreground.NewTerminalUI(os.Stdin, os.Stdout)
	channel := foreground.NewChannel(8, ui)
	go channel.Run(ctx)

	if err := reconcileConfig(ctx, log, channel, cfg, pubStore, configData); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics := server.NewMetrics(reg)
	disp := server.New(cfg, pubDB, pubStore, channel, metrics, log)
	defer disp.Close()

	go serveDebugEndpoint(log, debugAddr, reg)

	sockPath := socketPath()
	_ = os.Remove(sockPath)
	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", sockPath, err)
	}
	defer listener.Close()
	if err := os.Chmod(sockPath, 0o777); err != nil {
		log.Warn("could not chmod socket", "path", sockPath, "error", err)
	}
	log.Info("passworthd listening", "socket", sockPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
		_ = listener.Close()
	}()

	acceptLoop(ctx, log, listener, disp)
	return nil
}

func socketPath() string {
	if p := os.Getenv("PASSWORTH_SOCK"); p != "" {
		return p
	}
	return "/run/passworth.sock"
}

// reconcileConfig drives Initialize against the previously stored
// configuration (if any), per spec §4.3: a first run treats every node as
// new; a changed config diffs against the stored tree so unchanged nodes
// never re-prompt.
func reconcileConfig(ctx context.Context, log *slog.Logger, channel *foreground.Channel, cfg *config.Config, pubStore *config.PubStore, configData []byte) error {
	storedJSON, exists, err := pubStore.LoadConfigJSON(ctx)
	if err != nil {
		return err
	}

	var oldTree *factor.Tree
	var prevTokens map[string][]byte
	if exists {
		oldCfg, err := config.Parse(storedJSON)
		if err != nil {
			log.Warn("stored configuration failed to parse, treating as first-time setup", "error", err)
		} else {
			oldTree = oldCfg.FactorTree
			_, prevTokens, err = channel.Unlock(ctx, oldTree, pubStore)
			if err != nil {
				return fmt.Errorf("unlock previous configuration for reconcile: %w", err)
			}
		}
	}

	res, err := channel.Initialize(ctx, cfg.FactorTree, oldTree, prevTokens, pubStore)
	if err != nil {
		return err
	}
	for id, data := range res.StoreState {
		if err := pubStore.Set(ctx, id, data); err != nil {
			return err
		}
	}
	for _, id := range res.RemoveState {
		if err := pubStore.Delete(ctx, id); err != nil {
			return err
		}
	}
	return pubStore.SaveConfigJSON(ctx, configData)
}

func serveDebugEndpoint(log *slog.Logger, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warn("debug metrics endpoint stopped", "error", err)
	}
}
