package extension

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/loadout"
)

func TestEDSYTracksLatestLoadout(t *testing.T) {
	e := NewEDSY(quiet())
	assert.Empty(t, e.URL())

	assert.Empty(t, e.JournalEntry(context.Background(), notification(t, dockedLine)))
	assert.Empty(t, e.URL(), "only Loadout events change the link")

	assert.Empty(t, e.JournalEntry(context.Background(), shipNotification(t)))
	assert.True(t, strings.HasPrefix(e.URL(), loadout.EDSYURL))

	beta := shipNotification(t)
	beta.IsBeta = true
	assert.Empty(t, e.JournalEntry(context.Background(), beta))
	assert.True(t, strings.HasPrefix(e.URL(), loadout.EDSYBetaURL))
}

func TestEDSYKeepsLinkWithoutModules(t *testing.T) {
	e := NewEDSY(quiet())
	assert.Empty(t, e.JournalEntry(context.Background(), shipNotification(t)))
	url := e.URL()

	n := shipNotification(t)
	n.State.Modules = nil
	assert.Empty(t, e.JournalEntry(context.Background(), n))
	assert.Equal(t, url, e.URL())
}
