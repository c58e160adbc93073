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

package foreground

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/passworth/passworthd/internal/errs"
	"github.com/passworth/passworthd/internal/factor"
)

// TerminalUI is the default UI driver: it renders its dialogs on the in/out
// files it was constructed with (the daemon's stdin/stdout), using color
// when the output stream is actually a tty.
type TerminalUI struct {
	in  *os.File
	out *os.File

	warn  func(a ...any) string
	info  func(a ...any) string
	title func(a ...any) string
}

// NewTerminalUI builds a TerminalUI bound to in/out. Color rendering is
// disabled automatically when out is not a terminal.
func NewTerminalUI(in, out *os.File) *TerminalUI {
	noColor := !isatty.IsTerminal(out.Fd()) && !isatty.IsCygwinTerminal(out.Fd())
	warn := color.New(color.FgRed, color.Bold)
	info := color.New(color.FgCyan)
	title := color.New(color.FgGreen, color.Bold)
	if noColor {
		warn.DisableColor()
		info.DisableColor()
		title.DisableColor()
	}
	return &TerminalUI{
		in:    in,
		out:   out,
		warn:  warn.SprintFunc(),
		info:  info.SprintFunc(),
		title: title.SprintFunc(),
	}
}

func (u *TerminalUI) println(a ...any) {
	fmt.Fprintln(u.out, a...)
}

func (u *TerminalUI) banner(banner string) {
	if banner != "" {
		u.println(u.warn("! " + banner))
	}
}

func (u *TerminalUI) readLine(prompt string) (string, error) {
	u.println(u.info(prompt))
	reader := bufio.NewReader(u.in)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", errs.Wrap(errs.KindInteractionAborted, "read terminal line", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (u *TerminalUI) readPassword(prompt string) ([]byte, error) {
	u.println(u.info(prompt))
	pw, err := term.ReadPassword(int(u.in.Fd()))
	u.println()
	if err != nil {
		return nil, errs.Wrap(errs.KindInteractionAborted, "read terminal password", err)
	}
	return pw, nil
}

// PromptPassword implements factor.UI.
func (u *TerminalUI) PromptPassword(ctx context.Context, banner string, node *factor.Node) ([]byte, error) {
	u.banner(banner)
	return u.readPassword(fmt.Sprintf("%s: enter password", node.Description))
}

// ChooseOrChild implements factor.UI.
func (u *TerminalUI) ChooseOrChild(ctx context.Context, banner string, node *factor.Node, options []factor.ChildOption) (string, error) {
	u.banner(banner)
	u.println(u.title(node.Description + ": choose an unlock method"))
	for i, opt := range options {
		u.println(fmt.Sprintf("  %d) %s", i+1, opt.Description))
	}
	for {
		line, err := u.readLine("enter a number")
		if err != nil {
			return "", err
		}
		idx := indexFromOneBased(line, len(options))
		if idx < 0 {
			u.banner("invalid choice, try again")
			continue
		}
		return options[idx].ID, nil
	}
}

// DecryptWithCard implements factor.UI. The terminal driver cannot itself
// speak to a smartcard reader and always fails; no other UI in this
// repository provides card support. Kept here so TerminalUI alone still
// satisfies factor.UI for password-only trees.
func (u *TerminalUI) DecryptWithCard(ctx context.Context, banner string, fingerprint string, sealed []byte) ([]byte, error) {
	return nil, errs.New(errs.KindFactorMismatch, "terminal UI has no smartcard reader bound")
}

// NewPassword implements factor.UI.
func (u *TerminalUI) NewPassword(ctx context.Context, banner string, node *factor.Node) ([]byte, error) {
	u.banner(banner)
	for {
		first, err := u.readPassword(fmt.Sprintf("%s: set a new password", node.Description))
		if err != nil {
			return nil, err
		}
		second, err := u.readPassword("confirm password")
		if err != nil {
			return nil, err
		}
		if string(first) != string(second) {
			u.banner("passwords did not match, try again")
			continue
		}
		return first, nil
	}
}

// AcquireCard implements factor.UI.
func (u *TerminalUI) AcquireCard(ctx context.Context, banner string, node *factor.Node, wanted []string) (string, error) {
	u.banner(banner)
	u.println(u.title(fmt.Sprintf("%s: insert one of %d smartcards", node.Description, len(wanted))))
	if _, err := u.readLine("press enter once the card is inserted"); err != nil {
		return "", err
	}
	if len(wanted) == 0 {
		return "", errs.New(errs.KindFactorMismatch, "no smartcard fingerprints configured")
	}
	return wanted[0], nil
}

// EncryptToCard implements factor.UI. Like DecryptWithCard, the bare
// terminal driver has no reader bound and always fails.
func (u *TerminalUI) EncryptToCard(ctx context.Context, fingerprint string, token []byte) ([]byte, error) {
	return nil, errs.New(errs.KindFactorMismatch, "terminal UI has no smartcard reader bound")
}

// NewRecoveryPhrase implements factor.UI.
func (u *TerminalUI) NewRecoveryPhrase(ctx context.Context, banner string, node *factor.Node, words []string) error {
	u.banner(banner)
	u.println(u.title(node.Description + ": write down this recovery phrase"))
	u.println(u.info(strings.Join(words, " ")))
	for {
		line, err := u.readLine("retype the phrase to confirm")
		if err != nil {
			return err
		}
		if strings.Join(strings.Fields(line), " ") == strings.Join(words, " ") {
			return nil
		}
		u.banner("phrase did not match, try again")
	}
}

// Confirm implements permission.Prompter.
func (u *TerminalUI) Confirm(ctx context.Context, descriptions []string) (bool, error) {
	u.println(u.title("access request"))
	for _, d := range descriptions {
		u.println("  - " + d)
	}
	line, err := u.readLine("allow? [y/N]")
	if err != nil {
		return false, err
	}
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes", nil
}

func indexFromOneBased(s string, n int) int {
	s = strings.TrimSpace(s)
	var idx int
	if _, err := fmt.Sscanf(s, "%d", &idx); err != nil {
		return -1
	}
	idx--
	if idx < 0 || idx >= n {
		return -1
	}
	return idx
}
