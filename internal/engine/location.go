package engine

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/state"
)

func (e *Engine) registerLocation() {
	e.on(e.undocked, journal.KindUndocked)
	e.on(e.embark, journal.KindEmbark)
	e.on(e.disembark, journal.KindDisembark)
	e.on(e.dropshipDeploy, journal.KindDropshipDeploy)
	e.on(e.docked, journal.KindDocked)
	e.on(e.location, journal.KindLocation, journal.KindFSDJump, journal.KindCarrierJump)
	e.on(e.approachBody, journal.KindApproachBody)
	e.on(e.leaveBody, journal.KindLeaveBody, journal.KindSupercruiseEntry)
}

func (e *Engine) undocked(_ *journal.Event, st *state.CommanderState) error {
	st.ClearStation()
	return nil
}

// boardingStation is the station an Embark or Disembark happens at, if any.
func boardingStation(ev *journal.Event) string {
	if ev.Get("OnStation").Bool() {
		return ev.Get("StationName").String()
	}
	return ""
}

func (e *Engine) embark(ev *journal.Event, st *state.CommanderState) error {
	st.Station = boardingStation(ev)
	st.OnFoot = false
	return nil
}

func (e *Engine) disembark(ev *journal.Event, st *state.CommanderState) error {
	st.Station = boardingStation(ev)
	st.OnFoot = true
	return nil
}

func (e *Engine) dropshipDeploy(_ *journal.Event, st *state.CommanderState) error {
	st.OnFoot = true
	return nil
}

func (e *Engine) docked(ev *journal.Event, st *state.CommanderState) error {
	st.Station = ev.Get("StationName").String()
	st.MarketID = ev.Get("MarketID").Int()
	st.StationType = ev.Get("StationType").String()
	st.StationServices = stringList(ev.Get("StationServices"))
	return nil
}

// location handles Location, FSDJump and CarrierJump.
func (e *Engine) location(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "StarSystem"); err != nil {
		return err
	}

	var coords *[3]float64
	if pos := ev.Get("StarPos"); pos.Exists() {
		list := pos.Array()
		if len(list) != 3 {
			return fmt.Errorf("StarPos has %d coordinates", len(list))
		}
		coords = &[3]float64{list[0].Float(), list[1].Float(), list[2].Float()}
	}

	bodyType := ev.Get("BodyType").String()
	st.Planet = ""
	if ev.Kind != journal.KindFSDJump && bodyType == "Planet" {
		st.Planet = ev.Get("Body").String()
	}

	if coords != nil {
		st.Coordinates = coords
	}
	st.SystemAddress = ev.Get("SystemAddress").Int()
	st.Population = ev.Get("Population").Int()

	st.System = ev.Get("StarSystem").String()
	if st.System == "ProvingGround" {
		st.System = "CQC"
	}

	// On foot inside a station Docked is false, but Body names the station.
	st.Station = ev.Get("StationName").String()
	if bodyType == "Station" {
		st.Station = ev.Get("Body").String()
	}
	st.MarketID = ev.Get("MarketID").Int()
	st.StationType = ev.Get("StationType").String()
	st.StationServices = stringList(ev.Get("StationServices"))
	return nil
}

func (e *Engine) approachBody(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "Body"); err != nil {
		return err
	}
	st.Planet = ev.Get("Body").String()
	return nil
}

func (e *Engine) leaveBody(_ *journal.Event, st *state.CommanderState) error {
	st.Planet = ""
	return nil
}

func stringList(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	list := r.Array()
	out := make([]string, 0, len(list))
	for _, v := range list {
		out = append(out, v.String())
	}
	return out
}
