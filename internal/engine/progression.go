package engine

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/state"
)

func (e *Engine) registerProgression() {
	e.on(e.rank, journal.KindRank, journal.KindPromotion)
	e.on(e.progress, journal.KindProgress)
	e.on(e.reputation, journal.KindReputation)
	e.on(e.statistics, journal.KindStatistics)
	e.on(e.engineerProgress, journal.KindEngineerProgress)
}

// payload returns the event's fields without event and timestamp.
func payload(ev *journal.Event) *journal.Document {
	doc := ev.Fields.Clone()
	doc.Delete("event")
	doc.Delete("timestamp")
	return doc
}

func (e *Engine) rank(ev *journal.Event, st *state.CommanderState) error {
	for _, key := range payload(ev).Keys() {
		st.Rank[key] = state.RankProgress{Rank: ev.Get(key).Int()}
	}
	return nil
}

// progress only updates ranks we already know.
func (e *Engine) progress(ev *journal.Event, st *state.CommanderState) error {
	for _, key := range payload(ev).Keys() {
		r, ok := st.Rank[key]
		if !ok {
			continue
		}
		r.Progress = min(ev.Get(key).Int(), 100)
		st.Rank[key] = r
	}
	return nil
}

func (e *Engine) reputation(ev *journal.Event, st *state.CommanderState) error {
	st.Reputation = payload(ev)
	return nil
}

func (e *Engine) statistics(ev *journal.Event, st *state.CommanderState) error {
	st.Statistics = payload(ev)
	return nil
}

// engineerFields are mandatory on every engineer entry, except that Rank and
// RankProgress may be missing before the engineer is unlocked.
var engineerFields = []string{"Engineer", "EngineerID", "Rank", "Progress", "RankProgress"}

func minimalProgress(label string) bool {
	return label == "Invited" || label == "Known"
}

func checkEngineer(entry gjson.Result) error {
	for _, f := range engineerFields {
		if entry.Get(f).Exists() {
			continue
		}
		if f == "Rank" || f == "RankProgress" {
			if p := entry.Get("Progress"); p.Exists() && p.Type != gjson.Null && minimalProgress(p.String()) {
				continue
			}
		}
		return fmt.Errorf("%w: entry without %s", ErrInvalidEngineerProgress, f)
	}
	return nil
}

// validateEngineerProgress accepts exactly one of a non-empty Engineers list
// (startup summary) or a single engineer's Progress (an update).
func validateEngineerProgress(ev *journal.Event) error {
	hasList, hasOne := ev.Has("Engineers"), ev.Has("Progress")
	switch {
	case !hasList && !hasOne:
		return fmt.Errorf("%w: neither Engineers nor Progress", ErrInvalidEngineerProgress)
	case hasList && hasOne:
		return fmt.Errorf("%w: both Engineers and Progress", ErrInvalidEngineerProgress)
	}

	if hasList {
		list := ev.Get("Engineers")
		if !list.IsArray() {
			return fmt.Errorf("%w: Engineers is not a list", ErrInvalidEngineerProgress)
		}
		entries := list.Array()
		if len(entries) == 0 {
			return fmt.Errorf("%w: Engineers is empty", ErrInvalidEngineerProgress)
		}
		for _, entry := range entries {
			if err := checkEngineer(entry); err != nil {
				return err
			}
		}
		return nil
	}

	return checkEngineer(gjson.ParseBytes(ev.Raw))
}

func engineerProgress(entry gjson.Result) state.EngineerProgress {
	if entry.Get("Rank").Exists() {
		return state.EngineerProgress{
			Ranked:       true,
			Rank:         entry.Get("Rank").Int(),
			RankProgress: entry.Get("RankProgress").Int(),
		}
	}
	return state.EngineerProgress{Label: entry.Get("Progress").String()}
}

func (e *Engine) engineerProgress(ev *journal.Event, st *state.CommanderState) error {
	if err := validateEngineerProgress(ev); err != nil {
		return err
	}

	if ev.Has("Engineers") {
		engineers := make(map[string]state.EngineerProgress)
		for _, entry := range ev.Get("Engineers").Array() {
			engineers[entry.Get("Engineer").String()] = engineerProgress(entry)
		}
		st.Engineers = engineers
		return nil
	}

	st.Engineers[ev.Get("Engineer").String()] = engineerProgress(gjson.ParseBytes(ev.Raw))
	return nil
}
