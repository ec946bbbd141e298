// Package consumer drains the journal queue on the consumer goroutine,
// keeps the user-facing details current and hands every event to the
// extensions.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/extension"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/logging"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/state"
)

// ErrExited is returned by Run after an ExitProgram event.
var ErrExited = errors.New("harness requested exit")

// Source is the queue side of the monitor.
type Source interface {
	GetEntry(ctx context.Context) *journal.Event
	Wake() <-chan struct{}
	State() *state.CommanderState
	Snapshot() *state.CommanderState
}

// Notifier delivers events to extensions.
type Notifier interface {
	Notify(ctx context.Context, n extension.Notification) string
}

// Exporter writes the ship loadout file.
type Exporter interface {
	Export(ctx context.Context, st *state.CommanderState) (string, error)
}

// Details is what the user sees about the commander.
type Details struct {
	Commander  string
	Ship       string
	ShipKnown  bool
	Role       string
	System     string
	Station    string
	Suit       string
	OnFoot     bool
	NewVersion string
	Status     string
	LastEvent  journal.Kind
	Updated    time.Time
}

// These events clear an old status message.
var clearsStatus = map[journal.Kind]bool{
	journal.KindUndocked:           true,
	journal.KindStartJump:          true,
	journal.KindSetUserShipName:    true,
	journal.KindShipyardBuy:        true,
	journal.KindShipyardSell:       true,
	journal.KindShipyardSwap:       true,
	journal.KindModuleBuy:          true,
	journal.KindModuleSell:         true,
	journal.KindMaterialCollected:  true,
	journal.KindMaterialDiscarded:  true,
	journal.KindScientificResearch: true,
	journal.KindEngineerCraft:      true,
	journal.KindSynthesis:          true,
	journal.KindJoinACrew:          true,
}

var crewRoles = map[string]string{
	"":           "",
	"Idle":       "",
	"FighterCon": "Fighter",
	"FireCon":    "Gunner",
	"FlightCon":  "Helm",
}

// Loop consumes events.
type Loop struct {
	source   Source
	notifier Notifier
	exporter Exporter
	onExit   func()
	logger   *logging.Logger
	tick     time.Duration
	now      func() time.Time

	mu      sync.RWMutex
	details Details
}

// Option configures a Loop.
type Option func(*Loop)

// WithExporter enables loadout export on Loadout events.
func WithExporter(exp Exporter) Option {
	return func(l *Loop) { l.exporter = exp }
}

// WithExitHandler is called once when the harness sends ExitProgram.
func WithExitHandler(fn func()) Option {
	return func(l *Loop) { l.onExit = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Loop) { l.logger = logger.WithComponent("consumer") }
}

// WithTick sets the fallback drain interval used if a wake is missed.
func WithTick(d time.Duration) Option {
	return func(l *Loop) { l.tick = d }
}

// New creates a loop. notifier may be nil.
func New(source Source, notifier Notifier, opts ...Option) *Loop {
	l := &Loop{
		source:   source,
		notifier: notifier,
		logger:   logging.Global().WithComponent("consumer"),
		tick:     time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run drains the queue on every wake until ctx is done or the harness asks
// to exit.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()

	for {
		if l.Drain(ctx) {
			return ErrExited
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.source.Wake():
		case <-ticker.C:
		}
	}
}

// Drain handles queued events until the queue is empty. It reports whether
// an ExitProgram event was seen; events after it stay queued.
func (l *Loop) Drain(ctx context.Context) bool {
	for {
		ev := l.source.GetEntry(ctx)
		if ev == nil {
			return false
		}
		if l.handle(ctx, ev) {
			return true
		}
	}
}

func (l *Loop) handle(ctx context.Context, ev *journal.Event) (exit bool) {
	if ev.Kind == journal.KindExitProgram {
		l.logger.Info().Msg("Harness requested exit")
		if l.onExit != nil {
			l.onExit()
		}
		return true
	}

	st := l.source.State()
	l.updateDetails(ev, st)

	// Announced from the backlog, before the game mode is known.
	if ev.Kind == journal.KindHarnessNewVersion {
		version := ev.Get("Version").String()
		if version == "" {
			version = ev.Get("Available").String()
		}
		l.mu.Lock()
		l.details.NewVersion = version
		l.mu.Unlock()
	}

	// Nothing to tell extensions before the game is loaded, or in CQC.
	if ev.IsNull() || st.Mode == "" {
		return false
	}

	if ev.Kind == journal.KindLoadout && st.Captain == "" && l.exporter != nil {
		logger := l.logger.WithCommander(st.Cmdr)
		if path, err := l.exporter.Export(ctx, st); err != nil {
			logger.Error().Err(err).Msg("Failed to export loadout")
		} else if path != "" {
			logger.Info().Str("path", path).Msg("Exported loadout")
		}
	}

	if l.notifier == nil {
		return false
	}

	status := l.notifier.Notify(ctx, extension.Notification{
		Commander: st.Cmdr,
		IsBeta:    st.IsBeta,
		System:    st.System,
		Station:   st.Station,
		Event:     ev,
		State:     l.source.Snapshot(),
	})
	if status != "" {
		l.mu.Lock()
		l.details.Status = status
		l.mu.Unlock()
	}
	return false
}

func (l *Loop) updateDetails(ev *journal.Event, st *state.CommanderState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	d := &l.details
	d.Commander, d.Ship, d.Role = "", "", ""
	d.ShipKnown = false

	switch {
	case st.Cmdr != "" && st.Captain != "":
		d.Commander = fmt.Sprintf("%s / %s", st.Cmdr, st.Captain)
		d.Role = crewRole(st.Role)
	case st.Cmdr != "":
		d.Commander = st.Cmdr
		if st.Group != "" {
			d.Commander = fmt.Sprintf("%s / %s", st.Cmdr, st.Group)
		}
		d.Ship = st.ShipName
		if d.Ship == "" {
			d.Ship = st.ShipType
		}
		d.ShipKnown = len(st.Modules) > 0
	}
	if st.Cmdr != "" && st.IsBeta {
		d.Commander += " (beta)"
	}

	d.System = st.System
	d.Station = st.Station
	d.OnFoot = st.OnFoot
	d.Suit = suitText(st)
	d.LastEvent = ev.Kind
	d.Updated = l.now()

	if clearsStatus[ev.Kind] {
		d.Status = ""
	}
}

func crewRole(role string) string {
	if text, ok := crewRoles[role]; ok {
		return text
	}
	return role
}

func suitText(st *state.CommanderState) string {
	suit := st.SuitCurrent
	if suit == nil {
		return ""
	}
	name := suit.ShortName
	if name == "" {
		name = suit.LocName
	}
	if lo := st.SuitLoadoutCurrent; lo != nil && lo.Name != "" {
		return fmt.Sprintf("%s (%s)", name, lo.Name)
	}
	return name
}

// Details returns a copy of the current details.
func (l *Loop) Details() Details {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.details
}
