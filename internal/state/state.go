// Package state holds the commander state aggregate rebuilt from the journal.
package state

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bytedance/sonic"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
)

// ErrUnknownCategory is returned for an inventory category the state does not track.
var ErrUnknownCategory = errors.New("unknown inventory category")

func unknownCategory(name string) error {
	return fmt.Errorf("%w: %q", ErrUnknownCategory, name)
}

// RankProgress is a rank and the percentage progress towards the next one.
type RankProgress struct {
	Rank     int64
	Progress int64
}

// MarshalJSON writes the pair as [rank, progress].
func (r RankProgress) MarshalJSON() ([]byte, error) {
	return sonic.Marshal([2]int64{r.Rank, r.Progress})
}

// EngineerProgress is either a rank pair or, before the engineer is unlocked,
// a progress label such as "Invited" or "Known".
type EngineerProgress struct {
	Ranked       bool
	Rank         int64
	RankProgress int64
	Label        string
}

// MarshalJSON writes [rank, progress] for ranked engineers, the label otherwise.
func (e EngineerProgress) MarshalJSON() ([]byte, error) {
	if e.Ranked {
		return sonic.Marshal([2]int64{e.Rank, e.RankProgress})
	}
	return sonic.Marshal(e.Label)
}

// Set is a set of names.
type Set map[string]struct{}

// Add inserts name.
func (s Set) Add(name string) { s[name] = struct{}{} }

// Discard removes name if present.
func (s Set) Discard(name string) { delete(s, name) }

// Has reports membership.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the members in order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON writes the members as a sorted list.
func (s Set) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(s.Sorted())
}

// CommanderState is the current known truth about the commander. It is owned by
// a single goroutine; readers elsewhere take a Snapshot.
type CommanderState struct {
	// Session
	Live    bool      `json:"Live"`
	Version string    `json:"Version"`
	IsBeta  bool      `json:"IsBeta"`
	Cmdr    string    `json:"Commander"`
	Mode    string    `json:"Mode"`
	Group   string    `json:"Group"`
	Started time.Time `json:"Started"`
	FID     string    `json:"FID"`

	GameLanguage string `json:"GameLanguage"`
	GameVersion  string `json:"GameVersion"`
	GameBuild    string `json:"GameBuild"`

	// Location
	System          string      `json:"StarSystem"`
	SystemAddress   int64       `json:"SystemAddress"`
	Population      int64       `json:"Population"`
	Coordinates     *[3]float64 `json:"StarPos"`
	Station         string      `json:"StationName"`
	MarketID        int64       `json:"MarketID"`
	StationType     string      `json:"StationType"`
	StationServices []string    `json:"StationServices"`
	Planet          string      `json:"Body"`

	// Crew
	Captain string `json:"Captain"`
	Role    string `json:"Role"`

	// Money
	Credits int64 `json:"Credits"`
	Loan    int64 `json:"Loan"`

	Horizons bool `json:"Horizons"`
	Odyssey  bool `json:"Odyssey"`
	OnFoot   bool `json:"OnFoot"`

	// Inventory
	Cargo        Inventory `json:"Cargo"`
	Raw          Inventory `json:"Raw"`
	Manufactured Inventory `json:"Manufactured"`
	Encoded      Inventory `json:"Encoded"`
	Component    Inventory `json:"Component"`
	Item         Inventory `json:"Item"`
	Consumable   Inventory `json:"Consumable"`
	Data         Inventory `json:"Data"`
	BackPack     Backpack  `json:"BackPack"`

	// Progression
	Engineers  map[string]EngineerProgress `json:"Engineers"`
	Rank       map[string]RankProgress     `json:"Rank"`
	Reputation *journal.Document           `json:"Reputation"`
	Statistics *journal.Document           `json:"Statistics"`
	Friends    Set                         `json:"Friends"`

	// Ship
	ShipID       *int64                       `json:"ShipID"`
	ShipIdent    string                       `json:"ShipIdent"`
	ShipName     string                       `json:"ShipName"`
	ShipType     string                       `json:"ShipType"`
	HullValue    int64                        `json:"HullValue"`
	ModulesValue int64                        `json:"ModulesValue"`
	Rebuy        int64                        `json:"Rebuy"`
	Modules      map[string]*journal.Document `json:"Modules"`

	// Suits
	Suits              map[int64]*Suit        `json:"Suits"`
	SuitLoadouts       map[int64]*SuitLoadout `json:"SuitLoadouts"`
	SuitCurrent        *Suit                  `json:"SuitCurrent"`
	SuitLoadoutCurrent *SuitLoadout           `json:"SuitLoadoutCurrent"`
}

// New creates an empty commander state.
func New() *CommanderState {
	s := &CommanderState{}
	s.Reset()
	return s
}

// Reset re-initializes every field to its default.
func (s *CommanderState) Reset() {
	*s = CommanderState{
		Cargo:        Inventory{},
		Raw:          Inventory{},
		Manufactured: Inventory{},
		Encoded:      Inventory{},
		Component:    Inventory{},
		Item:         Inventory{},
		Consumable:   Inventory{},
		Data:         Inventory{},
		BackPack:     NewBackpack(),
		Engineers:    map[string]EngineerProgress{},
		Rank:         map[string]RankProgress{},
		Reputation:   journal.NewDocument(),
		Statistics:   journal.NewDocument(),
		Friends:      Set{},
		Suits:        map[int64]*Suit{},
		SuitLoadouts: map[int64]*SuitLoadout{},
	}
}

// ClearLocation forgets the system, body and station.
func (s *CommanderState) ClearLocation() {
	s.Planet = ""
	s.System = ""
	s.SystemAddress = 0
	s.Coordinates = nil
	s.ClearStation()
}

// ClearStation forgets the station-scoped fields only.
func (s *CommanderState) ClearStation() {
	s.Station = ""
	s.MarketID = 0
	s.StationType = ""
	s.StationServices = nil
}

// Docked reports whether a station is known.
func (s *CommanderState) Docked() bool {
	return s.Station != ""
}

// Category returns the inventory named by a journal category.
func (s *CommanderState) Category(name string) (Inventory, error) {
	switch name {
	case "Cargo":
		return s.Cargo, nil
	case "Raw":
		return s.Raw, nil
	case "Manufactured":
		return s.Manufactured, nil
	case "Encoded":
		return s.Encoded, nil
	case "Component":
		return s.Component, nil
	case "Item":
		return s.Item, nil
	case "Consumable":
		return s.Consumable, nil
	case "Data":
		return s.Data, nil
	}
	return nil, unknownCategory(name)
}

// Materials returns the Raw, Manufactured and Encoded inventories in that order.
func (s *CommanderState) Materials() []Inventory {
	return []Inventory{s.Raw, s.Manufactured, s.Encoded}
}

// ResetShipLocker empties the ship locker categories.
func (s *CommanderState) ResetShipLocker() {
	s.Component = Inventory{}
	s.Consumable = Inventory{}
	s.Item = Inventory{}
	s.Data = Inventory{}
}

// Snapshot returns a deep copy that shares nothing with s.
func (s *CommanderState) Snapshot() *CommanderState {
	c := *s

	if s.Coordinates != nil {
		coords := *s.Coordinates
		c.Coordinates = &coords
	}
	if s.ShipID != nil {
		id := *s.ShipID
		c.ShipID = &id
	}
	if s.StationServices != nil {
		c.StationServices = append([]string(nil), s.StationServices...)
	}

	c.Cargo = s.Cargo.Clone()
	c.Raw = s.Raw.Clone()
	c.Manufactured = s.Manufactured.Clone()
	c.Encoded = s.Encoded.Clone()
	c.Component = s.Component.Clone()
	c.Item = s.Item.Clone()
	c.Consumable = s.Consumable.Clone()
	c.Data = s.Data.Clone()
	c.BackPack = s.BackPack.Clone()

	c.Engineers = make(map[string]EngineerProgress, len(s.Engineers))
	for k, v := range s.Engineers {
		c.Engineers[k] = v
	}
	c.Rank = make(map[string]RankProgress, len(s.Rank))
	for k, v := range s.Rank {
		c.Rank[k] = v
	}
	c.Reputation = s.Reputation.Clone()
	c.Statistics = s.Statistics.Clone()
	c.Friends = make(Set, len(s.Friends))
	for k := range s.Friends {
		c.Friends.Add(k)
	}

	if s.Modules != nil {
		c.Modules = make(map[string]*journal.Document, len(s.Modules))
		for slot, m := range s.Modules {
			c.Modules[slot] = m.Clone()
		}
	}

	s.snapshotSuits(&c)
	return &c
}
