package engine

import (
	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/state"
)

func (e *Engine) registerCrew() {
	e.on(e.joinACrew, journal.KindJoinACrew)
	e.on(e.changeCrewRole, journal.KindChangeCrewRole)
	e.on(e.quitACrew, journal.KindQuitACrew)
	e.on(e.friends, journal.KindFriends)
}

// joinACrew moves the commander aboard another player's ship, so our own
// location is no longer known.
func (e *Engine) joinACrew(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "Captain"); err != nil {
		return err
	}
	st.Captain = ev.Get("Captain").String()
	st.Role = "Idle"
	st.ClearLocation()
	st.OnFoot = false
	return nil
}

func (e *Engine) changeCrewRole(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "Role"); err != nil {
		return err
	}
	st.Role = ev.Get("Role").String()
	return nil
}

func (e *Engine) quitACrew(_ *journal.Event, st *state.CommanderState) error {
	st.Captain = ""
	st.Role = ""
	st.ClearLocation()
	return nil
}

func (e *Engine) friends(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "Status", "Name"); err != nil {
		return err
	}
	name := ev.Get("Name").String()
	switch ev.Get("Status").String() {
	case "Online", "Added":
		st.Friends.Add(name)
	default:
		st.Friends.Discard(name)
	}
	return nil
}
