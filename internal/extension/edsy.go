package extension

import (
	"context"
	"sync"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/loadout"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/logging"
)

// EDSY keeps a shipyard link for the commander's current ship.
type EDSY struct {
	logger *logging.Logger

	mu  sync.RWMutex
	url string
}

// NewEDSY creates the extension.
func NewEDSY(logger *logging.Logger) *EDSY {
	if logger == nil {
		logger = logging.Global()
	}
	return &EDSY{logger: logger.WithComponent("edsy")}
}

// Name returns the extension name
func (e *EDSY) Name() string { return "edsy" }

// JournalEntry refreshes the link on Loadout events.
func (e *EDSY) JournalEntry(ctx context.Context, n Notification) string {
	if n.Event == nil || n.Event.Kind != journal.KindLoadout || n.State == nil {
		return ""
	}

	url, err := loadout.ShipyardURL(loadout.Ship(n.State, true, n.Event.Timestamp), n.IsBeta)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to build shipyard link")
		return ""
	}

	e.mu.Lock()
	e.url = url
	e.mu.Unlock()

	e.logger.Debug().Str("url", url).Msg("Updated shipyard link")
	return ""
}

// URL returns the latest link, "" before the first Loadout.
func (e *EDSY) URL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.url
}
