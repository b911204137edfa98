// Package logging wires the engine's ambient structured logging.
//
// Every component logs through github.com/joeycumines/logiface, the
// generic logging facade, bound in production to github.com/rs/zerolog via
// github.com/joeycumines/izerolog. Components never import zerolog
// directly; they accept a *logiface.Logger[logiface.Event] and log through
// the facade's Builder API (Info(), Err(), Str(), Dur(), ...), matching how
// the rest of the joeycumines tool ecosystem consumes logiface.
package logging

import (
	"io"
	"os"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// New builds the root logger, writing newline-delimited JSON to w at the
// given minimum level. Passing a nil w defaults to os.Stderr.
func New(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	if w == nil {
		w = os.Stderr
	}
	zl := zerolog.New(w).With().Timestamp().Logger()
	return izerolog.L.New(
		izerolog.L.WithZerolog(zl),
		izerolog.L.WithLevel(level),
	).Logger()
}

// Discard returns a logger that drops every event; used by tests and by
// components constructed without an explicit logger.
func Discard() *logiface.Logger[logiface.Event] {
	return New(io.Discard, logiface.LevelDisabled)
}

// For returns a child logger tagged with a "component" field, the
// convention every package in this module uses to namespace its events
// (e.g. logging.For(root, "engine"), logging.For(root, "sshsession")).
func For(root *logiface.Logger[logiface.Event], component string) *logiface.Logger[logiface.Event] {
	if root == nil {
		root = Discard()
	}
	return root.Clone().Str("component", component).Logger()
}
