package engine

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/state"
)

func (e *Engine) registerSuits() {
	e.on(e.switchSuitLoadout, journal.KindSuitLoadout, journal.KindSwitchSuitLoadout)
	e.on(e.createSuitLoadout, journal.KindCreateSuitLoadout)
	e.on(e.deleteSuitLoadout, journal.KindDeleteSuitLoadout)
	e.on(e.renameSuitLoadout, journal.KindRenameSuitLoadout)
	e.on(e.buySuit, journal.KindBuySuit)
	e.on(e.sellSuit, journal.KindSellSuit)
	e.on(e.upgradeSuit, journal.KindUpgradeSuit)
	e.on(e.loadoutEquipModule, journal.KindLoadoutEquipModule)
	e.on(e.loadoutRemoveModule, journal.KindLoadoutRemoveModule)
	e.on(e.buyWeapon, journal.KindBuyWeapon)
	e.on(e.sellWeapon, journal.KindSellWeapon)
}

// weaponSlots are the loadout slots that hold weapons.
var weaponSlots = []string{"PrimaryWeapon1", "PrimaryWeapon2", "SecondaryWeapon"}

func localised(r gjson.Result, key string) string {
	if loc := r.Get(key + "_Localised"); loc.Exists() {
		return loc.String()
	}
	return r.Get(key).String()
}

func suitSlot(m gjson.Result) *state.SuitSlot {
	return &state.SuitSlot{
		Name:         m.Get("ModuleName").String(),
		WeaponRackID: m.Get("SuitModuleID").Int(),
		LocName:      localised(m, "ModuleName"),
	}
}

func loadoutSlots(modules gjson.Result) map[string]*state.SuitSlot {
	bySlot := make(map[string]gjson.Result)
	for _, m := range modules.Array() {
		bySlot[m.Get("SlotName").String()] = m
	}
	slots := make(map[string]*state.SuitSlot)
	for _, name := range weaponSlots {
		if m, ok := bySlot[name]; ok {
			slots[name] = suitSlot(m)
		}
	}
	return slots
}

// storeSuitLoadout records the suit and loadout an event describes and
// returns their ids.
func storeSuitLoadout(ev *journal.Event, st *state.CommanderState) (int64, int64, error) {
	if err := require(ev, "SuitID", "SuitName", "LoadoutID", "LoadoutName", "Modules"); err != nil {
		return 0, 0, err
	}
	root := gjson.ParseBytes(ev.Raw)
	suitID := ev.Get("SuitID").Int()

	suit, ok := st.Suits[suitID]
	if !ok {
		loc := localised(root, "SuitName")
		suit = &state.Suit{
			Name:      ev.Get("SuitName").String(),
			LocName:   loc,
			ShortName: SuitShortName(loc, st.GameLanguage),
			SuitID:    suitID,
		}
	}

	slotID := state.LoadoutSlotID(ev.Get("LoadoutID").Int())
	loadout := &state.SuitLoadout{
		SlotID: slotID,
		Suit:   suit,
		Name:   ev.Get("LoadoutName").String(),
		Slots:  loadoutSlots(ev.Get("Modules")),
	}
	st.SuitLoadouts[slotID] = loadout

	suit.Slots = loadout.Slots
	st.Suits[suitID] = suit
	return suitID, slotID, nil
}

// switchSuitLoadout handles SuitLoadout and SwitchSuitLoadout, which both
// mean the loadout is now equipped.
func (e *Engine) switchSuitLoadout(ev *journal.Event, st *state.CommanderState) error {
	suitID, slotID, err := storeSuitLoadout(ev, st)
	if err != nil {
		return err
	}
	if !st.SetCurrentSuit(suitID, slotID) {
		return fmt.Errorf("%w: suit %d, loadout %d", ErrUnknownSuit, suitID, slotID)
	}
	return nil
}

// createSuitLoadout stores the loadout without equipping it.
func (e *Engine) createSuitLoadout(ev *journal.Event, st *state.CommanderState) error {
	_, _, err := storeSuitLoadout(ev, st)
	return err
}

func (e *Engine) deleteSuitLoadout(ev *journal.Event, st *state.CommanderState) error {
	if len(st.SuitLoadouts) == 0 {
		return nil
	}
	if err := require(ev, "LoadoutID"); err != nil {
		return err
	}
	slotID := state.LoadoutSlotID(ev.Get("LoadoutID").Int())
	if _, ok := st.SuitLoadouts[slotID]; !ok {
		e.logger.Debug().Int64("slot", slotID).Msg("Deleted suit loadout was not known")
		return nil
	}
	delete(st.SuitLoadouts, slotID)
	return nil
}

func (e *Engine) renameSuitLoadout(ev *journal.Event, st *state.CommanderState) error {
	if len(st.SuitLoadouts) == 0 {
		return nil
	}
	if err := require(ev, "LoadoutID", "LoadoutName"); err != nil {
		return err
	}
	slotID := state.LoadoutSlotID(ev.Get("LoadoutID").Int())
	loadout, ok := st.SuitLoadouts[slotID]
	if !ok {
		e.logger.Debug().Int64("slot", slotID).Msg("Renamed suit loadout was not known")
		return nil
	}
	loadout.Name = ev.Get("LoadoutName").String()
	return nil
}

func (e *Engine) buySuit(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "SuitID", "Name"); err != nil {
		return err
	}
	loc := localised(gjson.ParseBytes(ev.Raw), "Name")
	suitID := ev.Get("SuitID").Int()
	st.Suits[suitID] = &state.Suit{
		Name:      ev.Get("Name").String(),
		LocName:   loc,
		ShortName: SuitShortName(loc, st.GameLanguage),
		SuitID:    suitID,
		Slots:     map[string]*state.SuitSlot{},
	}

	e.debit(ev, st, "Price")
	return nil
}

func (e *Engine) sellSuit(ev *journal.Event, st *state.CommanderState) error {
	if len(st.Suits) == 0 {
		return nil
	}
	if err := require(ev, "SuitID"); err != nil {
		return err
	}
	suitID := ev.Get("SuitID").Int()
	if _, ok := st.Suits[suitID]; ok {
		delete(st.Suits, suitID)
	} else {
		e.logger.Debug().Int64("suit", suitID).Msg("Sold suit was not known")
	}

	e.credit(ev, st, "Price")
	return nil
}

func (e *Engine) upgradeSuit(ev *journal.Event, st *state.CommanderState) error {
	st.Credits -= ev.Get("Cost").Int()
	return nil
}

func (e *Engine) loadoutEquipModule(ev *journal.Event, st *state.CommanderState) error {
	if len(st.SuitLoadouts) == 0 {
		return nil
	}
	if err := require(ev, "LoadoutID", "SlotName", "ModuleName", "SuitModuleID"); err != nil {
		return err
	}
	slotID := state.LoadoutSlotID(ev.Get("LoadoutID").Int())
	loadout, ok := st.SuitLoadouts[slotID]
	if !ok {
		return fmt.Errorf("%w: loadout %d", ErrUnknownSuit, slotID)
	}
	if loadout.Slots == nil {
		loadout.Slots = map[string]*state.SuitSlot{}
	}
	loadout.Slots[ev.Get("SlotName").String()] = suitSlot(gjson.ParseBytes(ev.Raw))
	return nil
}

func (e *Engine) loadoutRemoveModule(ev *journal.Event, st *state.CommanderState) error {
	if len(st.SuitLoadouts) == 0 {
		return nil
	}
	if err := require(ev, "LoadoutID", "SlotName"); err != nil {
		return err
	}
	slotID := state.LoadoutSlotID(ev.Get("LoadoutID").Int())
	loadout, ok := st.SuitLoadouts[slotID]
	if !ok {
		return fmt.Errorf("%w: loadout %d", ErrUnknownSuit, slotID)
	}
	slot := ev.Get("SlotName").String()
	if _, ok := loadout.Slots[slot]; !ok {
		return fmt.Errorf("loadout %d has nothing in %s", slotID, slot)
	}
	delete(loadout.Slots, slot)
	return nil
}

func (e *Engine) buyWeapon(ev *journal.Event, st *state.CommanderState) error {
	e.debit(ev, st, "Price")
	return nil
}

// sellWeapon empties every loadout slot that held the sold weapon. Weapons are
// only tracked through loadouts.
func (e *Engine) sellWeapon(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "SuitModuleID"); err != nil {
		return err
	}
	weapon := ev.Get("SuitModuleID").Int()
	for _, loadout := range st.SuitLoadouts {
		for name, slot := range loadout.Slots {
			if slot.WeaponRackID == weapon {
				delete(loadout.Slots, name)
				break
			}
		}
	}

	e.credit(ev, st, "Price")
	return nil
}

// debit subtracts a price the event should always carry, logging when it is absent.
func (e *Engine) debit(ev *journal.Event, st *state.CommanderState, field string) {
	if !ev.Has(field) {
		e.logger.Error().Str("event", string(ev.Kind)).Str("field", field).Msg("Event without price")
		return
	}
	st.Credits -= ev.Get(field).Int()
}

// credit adds a price the event should always carry, logging when it is absent.
func (e *Engine) credit(ev *journal.Event, st *state.CommanderState, field string) {
	if !ev.Has(field) {
		e.logger.Error().Str("event", string(ev.Kind)).Str("field", field).Msg("Event without price")
		return
	}
	st.Credits += ev.Get(field).Int()
}
