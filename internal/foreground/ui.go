// Copyright 2026 passworth authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package foreground

import (
	"context"

	"github.com/passworth/passworthd/internal/factor"
)

// UI is the full set of dialog primitives a concrete foreground driver
// must implement: the factor engine's interactive walk callbacks plus the
// permission evaluator's yes/no confirmation dialog.
type UI interface {
	factor.UI
	Confirm(ctx context.Context, descriptions []string) (bool, error)
}
