// Package appctx defines the explicit, passed-by-hand application handle
// the binaries share. There is no process-wide mutable state; every
// collaborator is threaded through a Context constructed once at startup.
package appctx

import (
	"github.com/sirupsen/logrus"

	"github.com/symbioticfi/points-indexer/internal/config"
)

// Context bundles the collaborators every core component needs. It is
// constructed once at process startup and passed explicitly. In core/, only
// core/driver and core/points reach for a package-level value: logrus's
// standard logger, used when they are handed a nil log entry.
type Context struct {
	Config *config.Config
	Logger *logrus.Logger
	Chain  config.Chain
}

// New builds a Context from a loaded config and logger.
func New(cfg *config.Config, logger *logrus.Logger) *Context {
	return &Context{Config: cfg, Logger: logger, Chain: cfg.Chain.Selector}
}

// WithFields returns a logrus entry scoped to this context's logger.
func (c *Context) WithFields(fields logrus.Fields) *logrus.Entry {
	return c.Logger.WithFields(fields)
}
