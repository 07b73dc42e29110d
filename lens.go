// Package lens keeps DOM overlays aligned with an external 3D camera and
// gates interactions on trigger volumes.
//
// Two consumers are provided. Teleporter moves a player to a destination
// when the active viewport enters a source volume. ScreenController shows a
// DOM overlay (an embedded video) while the viewport stands in one of the
// volumes attached to a screen, and hides the player meanwhile.
//
// Both are driven by engine notifications and must be initialized once with
// Initialize. Logging is silent until SetLogger is called.
package lens

import (
	"log/slog"

	"github.com/akmonengine/lens/internal/logging"
)

// SetLogger configures the logger for lens and all its sub-packages.
// Pass nil to restore the silent default.
//
// Log levels used by lens:
//   - [slog.LevelDebug]: per-frame diagnostics and lookup misses
//   - [slog.LevelInfo]: discovery results and teleports
//   - [slog.LevelWarn]: skipped degenerate geometry, missing screens
func SetLogger(l *slog.Logger) {
	logging.Set(l)
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return logging.Logger()
}
