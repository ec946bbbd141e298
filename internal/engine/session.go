package engine

import (
	"regexp"
	"strings"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/state"
)

// Ship values in LoadGame that mean the commander starts on foot.
var reShipOnFoot = regexp.MustCompile(`^(FlightSuit|UtilitySuit_Class.|TacticalSuit_Class.|ExplorationSuit_Class.)$`)

func (e *Engine) registerSession() {
	e.on(e.fileheader, journal.KindFileheader)
	e.on(e.commander, journal.KindCommander)
	e.on(e.loadGame, journal.KindLoadGame)
	e.on(e.newCommander, journal.KindNewCommander)

	// Harness records carry no state of their own.
	e.on(noop,
		journal.KindStartUp,
		journal.KindHarnessNewVersion,
		journal.KindRefreshOver,
		journal.KindExitProgram,
	)
}

type fileheaderPayload struct {
	GameVersion string `json:"gameversion"`
	Language    string `json:"language"`
	Build       string `json:"build"`
}

// fileheader starts a new session: everything known so far is forgotten.
func (e *Engine) fileheader(ev *journal.Event, st *state.CommanderState) error {
	var p fileheaderPayload
	if err := decode(ev, &p, "gameversion"); err != nil {
		return err
	}

	st.Reset()
	st.Live = false
	st.Version = p.GameVersion
	v := strings.ToLower(p.GameVersion)
	st.IsBeta = strings.Contains(v, "alpha") || strings.Contains(v, "beta")
	st.GameLanguage = p.Language
	st.GameVersion = p.GameVersion
	st.GameBuild = p.Build
	return nil
}

func (e *Engine) commander(_ *journal.Event, st *state.CommanderState) error {
	st.Live = true
	return nil
}

type loadGamePayload struct {
	Commander string `json:"Commander"`
	GameMode  string `json:"GameMode"`
	Group     string `json:"Group"`
	Credits   int64  `json:"Credits"`
	FID       string `json:"FID"`
	Horizons  bool   `json:"Horizons"`
	Odyssey   bool   `json:"Odyssey"`
	Loan      int64  `json:"Loan"`
	Ship      string `json:"Ship"`
}

// loadGame opens the commander's session. Ship fields are left alone since
// Ship may name a fighter or SRV.
func (e *Engine) loadGame(ev *journal.Event, st *state.CommanderState) error {
	var p loadGamePayload
	if err := decode(ev, &p, "Commander", "Credits", "Horizons", "Loan"); err != nil {
		return err
	}

	st.Cmdr = p.Commander
	st.Mode = p.GameMode
	st.Group = p.Group
	st.ClearLocation()
	st.Started = ev.Timestamp

	st.Captain = ""
	st.Credits = p.Credits
	st.FID = p.FID
	st.Horizons = p.Horizons
	st.Odyssey = p.Odyssey
	st.Loan = p.Loan
	st.Engineers = map[string]state.EngineerProgress{}
	st.Rank = map[string]state.RankProgress{}
	st.Reputation = journal.NewDocument()
	st.Statistics = journal.NewDocument()
	st.Role = ""

	if p.Ship != "" && reShipOnFoot.MatchString(p.Ship) {
		st.OnFoot = true
	}
	return nil
}

func (e *Engine) newCommander(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "Name"); err != nil {
		return err
	}
	st.Cmdr = ev.Get("Name").String()
	st.Group = ""
	return nil
}
