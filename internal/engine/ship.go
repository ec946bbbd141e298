package engine

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/state"
)

func (e *Engine) registerShip() {
	e.on(e.setUserShipName, journal.KindSetUserShipName)
	e.on(e.shipyardBuy, journal.KindShipyardBuy)
	e.on(e.shipyardSwap, journal.KindShipyardSwap)
	e.on(e.loadout, journal.KindLoadout)
	e.on(e.moduleBuy, journal.KindModuleBuy)
	e.on(e.moduleRetrieve, journal.KindModuleRetrieve)
	e.on(e.moduleSell, journal.KindModuleSell)
	e.on(e.moduleSellRemote, journal.KindModuleSellRemote)
	e.on(e.moduleStore, journal.KindModuleStore)
	e.on(e.moduleSwap, journal.KindModuleSwap)
}

func (e *Engine) setUserShipName(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "ShipID", "Ship"); err != nil {
		return err
	}
	id := ev.Get("ShipID").Int()
	st.ShipID = &id
	if ev.Has("UserShipId") {
		st.ShipIdent = ev.Get("UserShipId").String()
	}
	st.ShipName = ev.Get("UserShipName").String()
	st.ShipType = journal.Canonicalize(ev.Get("Ship").String())
	return nil
}

// newShip forgets everything known about the previous ship.
func newShip(st *state.CommanderState, id *int64, shipType string) {
	st.ShipID = id
	st.ShipIdent = ""
	st.ShipName = ""
	st.ShipType = journal.Canonicalize(shipType)
	st.HullValue = 0
	st.ModulesValue = 0
	st.Rebuy = 0
	st.Modules = nil
}

func (e *Engine) shipyardBuy(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "ShipType"); err != nil {
		return err
	}
	newShip(st, nil, ev.Get("ShipType").String())
	st.Credits -= ev.Get("ShipPrice").Int()
	return nil
}

func (e *Engine) shipyardSwap(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "ShipID", "ShipType"); err != nil {
		return err
	}
	id := ev.Get("ShipID").Int()
	newShip(st, &id, ev.Get("ShipType").String())
	return nil
}

// loadout replaces the full module set of the current ship. Fighters and SRVs
// are not tracked.
func (e *Engine) loadout(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "Ship", "ShipID", "ShipIdent", "ShipName", "Modules"); err != nil {
		return err
	}
	ship := journal.Canonicalize(ev.Get("Ship").String())
	if strings.Contains(ship, "fighter") || strings.Contains(ship, "buggy") {
		return nil
	}

	modules, err := loadoutModules(ev.Get("Modules"))
	if err != nil {
		return err
	}

	id := ev.Get("ShipID").Int()
	st.ShipID = &id
	st.ShipIdent = ev.Get("ShipIdent").String()
	// New ships report "" and relogs report " ".
	if name := ev.Get("ShipName").String(); name != "" && name != " " {
		st.ShipName = name
	}
	st.ShipType = ship
	st.HullValue = ev.Get("HullValue").Int()
	st.ModulesValue = ev.Get("ModulesValue").Int()
	st.Rebuy = ev.Get("Rebuy").Int()
	st.Modules = modules
	return nil
}

func loadoutModules(list gjson.Result) (map[string]*journal.Document, error) {
	if !list.IsArray() {
		return nil, fmt.Errorf("Modules is not a list")
	}

	modules := make(map[string]*journal.Document)
	var err error
	list.ForEach(func(_, value gjson.Result) bool {
		var m *journal.Document
		m, err = journal.ParseDocument([]byte(value.Raw))
		if err != nil {
			err = fmt.Errorf("failed to decode module: %w", err)
			return false
		}
		slot := value.Get("Slot").String()
		if slot == "" {
			err = fmt.Errorf("%w: Slot", ErrMissingField)
			return false
		}
		m.Set("Item", journal.Canonicalize(value.Get("Item").String()))

		// Lasers report a constant 1/1 ammo count that only adds noise.
		clip, hopper := value.Get("AmmoInClip"), value.Get("AmmoInHopper")
		if strings.Contains(slot, "Hardpoint") && !strings.HasPrefix(slot, "TinyHardpoint") &&
			clip.Exists() && hopper.Exists() && clip.Int() == 1 && hopper.Int() == 1 {
			m.Delete("AmmoInClip")
			m.Delete("AmmoInHopper")
		}
		modules[slot] = m
		return true
	})
	if err != nil {
		return nil, err
	}
	return modules, nil
}

func knownModules(st *state.CommanderState) error {
	if st.Modules == nil {
		return ErrModulesUnknown
	}
	return nil
}

func (e *Engine) moduleBuy(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "Slot", "BuyItem", "BuyPrice"); err != nil {
		return err
	}
	if err := knownModules(st); err != nil {
		return err
	}

	slot := ev.Get("Slot").String()
	price := ev.Get("BuyPrice").Int()
	st.Modules[slot] = journal.NewDocument().
		Set("Slot", slot).
		Set("Item", journal.Canonicalize(ev.Get("BuyItem").String())).
		Set("On", true).
		Set("Priority", 1).
		Set("Health", 1.0).
		Set("Value", price)
	st.Credits -= price
	return nil
}

func (e *Engine) moduleRetrieve(ev *journal.Event, st *state.CommanderState) error {
	st.Credits -= ev.Get("Cost").Int()
	return nil
}

func (e *Engine) moduleSell(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "Slot"); err != nil {
		return err
	}
	if err := knownModules(st); err != nil {
		return err
	}
	delete(st.Modules, ev.Get("Slot").String())
	st.Credits += ev.Get("SellPrice").Int()
	return nil
}

func (e *Engine) moduleSellRemote(ev *journal.Event, st *state.CommanderState) error {
	st.Credits += ev.Get("SellPrice").Int()
	return nil
}

func (e *Engine) moduleStore(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "Slot"); err != nil {
		return err
	}
	if err := knownModules(st); err != nil {
		return err
	}
	delete(st.Modules, ev.Get("Slot").String())
	st.Credits -= ev.Get("Cost").Int()
	return nil
}

// moduleSwap exchanges two slots, or moves a module into an empty slot.
func (e *Engine) moduleSwap(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "FromSlot", "ToSlot"); err != nil {
		return err
	}
	if err := knownModules(st); err != nil {
		return err
	}

	from, to := ev.Get("FromSlot").String(), ev.Get("ToSlot").String()
	moving, ok := st.Modules[from]
	if !ok {
		return fmt.Errorf("no module in slot %q", from)
	}
	toItem := st.Modules[to]
	st.Modules[to] = moving
	if toItem != nil {
		st.Modules[from] = toItem
	} else {
		delete(st.Modules, from)
	}
	return nil
}

// engineering checks an engineering event against the installed module and
// returns the module with the record to attach to it. st is not changed.
func engineering(ev *journal.Event, st *state.CommanderState) (*journal.Document, *journal.Document, error) {
	if err := require(ev, "Slot", "Module", "Engineer", "EngineerID", "BlueprintName",
		"BlueprintID", "Level", "Quality", "Modifiers"); err != nil {
		return nil, nil, err
	}
	if err := knownModules(st); err != nil {
		return nil, nil, err
	}

	slot := ev.Get("Slot").String()
	module, ok := st.Modules[slot]
	if !ok {
		return nil, nil, fmt.Errorf("no module in slot %q", slot)
	}
	if want := journal.Canonicalize(ev.Get("Module").String()); module.String("Item") != want {
		return nil, nil, fmt.Errorf("slot %q holds %q, not %q", slot, module.String("Item"), want)
	}

	record := journal.NewDocument()
	for _, key := range []string{"Engineer", "EngineerID", "BlueprintName", "BlueprintID", "Level", "Quality", "Modifiers"} {
		v, _ := ev.Fields.Get(key)
		record.Set(key, v)
	}
	for _, key := range []string{"ExperimentalEffect", "ExperimentalEffect_Localised"} {
		if v, ok := ev.Fields.Get(key); ok {
			record.Set(key, v)
		}
	}
	return module, record, nil
}
