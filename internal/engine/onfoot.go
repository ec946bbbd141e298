package engine

import (
	"github.com/tidwall/gjson"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/state"
)

func (e *Engine) registerOnFoot() {
	e.on(e.shipLocker, journal.KindShipLocker, journal.KindShipLockerMaterials)
	// 4.0.0.200 renamed BackPack to Backpack.
	e.on(e.backpack, journal.KindBackPackMaterials, journal.KindBackPack, journal.KindBackpack)
	e.on(e.backpackChange, journal.KindBackpackChange)
	e.on(e.buyMicroResources, journal.KindBuyMicroResources)
	e.on(e.sellMicroResources, journal.KindSellMicroResources)
	e.on(e.tradeMicroResources, journal.KindTradeMicroResources)
	e.on(e.transferMicroResources, journal.KindTransferMicroResources)

	// The matching BackpackChange carries the effect of these.
	e.on(noop,
		journal.KindCollectItems,
		journal.KindDropItems,
		journal.KindUseConsumable,
		journal.KindUpgradeWeapon,
		journal.KindScanOrganic,
	)
}

// lockerLists maps each micro-resource category to its list field.
var lockerLists = []struct {
	category string
	field    string
}{
	{"Component", "Components"},
	{"Consumable", "Consumables"},
	{"Item", "Items"},
	{"Data", "Data"},
}

// fillLocker builds fresh micro-resource inventories from a full snapshot event.
func fillLocker(ev *journal.Event) (map[string]state.Inventory, error) {
	out := make(map[string]state.Inventory, len(lockerLists))
	for _, l := range lockerLists {
		list, err := items(ev, l.field)
		if err != nil {
			return nil, err
		}
		inv := state.Inventory{}
		inv.Fill(state.Coalesce(list))
		out[l.category] = inv
	}
	return out, nil
}

// shipLocker replaces the ship locker with its current totals. No backpack
// snapshot comes with it, so the backpack is emptied.
func (e *Engine) shipLocker(ev *journal.Event, st *state.CommanderState) error {
	// A bare ShipLocker only announces that ShipLocker.json was rewritten.
	if ev.Kind == journal.KindShipLocker && !ev.Has("Items") {
		return nil
	}

	locker, err := fillLocker(ev)
	if err != nil {
		return err
	}
	st.Component = locker["Component"]
	st.Consumable = locker["Consumable"]
	st.Item = locker["Item"]
	st.Data = locker["Data"]
	st.BackPack = state.NewBackpack()
	return nil
}

func (e *Engine) backpack(ev *journal.Event, st *state.CommanderState) error {
	// Backpack without contents only announces that Backpack.json was rewritten.
	if ev.Kind == journal.KindBackpack && !ev.Has("Items") {
		return nil
	}

	pack, err := fillLocker(ev)
	if err != nil {
		return err
	}
	st.BackPack = state.Backpack{
		Component:  pack["Component"],
		Consumable: pack["Consumable"],
		Item:       pack["Item"],
		Data:       pack["Data"],
	}
	return nil
}

// delta is one resolved inventory change.
type delta struct {
	inv   state.Inventory
	name  string
	count int64
}

func (e *Engine) backpackChange(ev *journal.Event, st *state.CommanderState) error {
	var changes gjson.Result
	sign := int64(1)
	switch {
	case ev.Has("Added") && ev.Get("Added").Type != gjson.Null:
		changes = ev.Get("Added")
	case ev.Has("Removed") && ev.Get("Removed").Type != gjson.Null:
		changes = ev.Get("Removed")
		sign = -1
	default:
		e.logger.Warn().RawJSON("record", ev.Raw).Msg("BackpackChange with neither Added nor Removed")
	}

	var deltas []delta
	for _, c := range changes.Array() {
		inv, err := st.BackPack.Category(journal.Categorize(c.Get("Type").String()))
		if err != nil {
			return err
		}
		deltas = append(deltas, delta{inv, journal.Canonicalize(c.Get("Name").String()), sign * c.Get("Count").Int()})
	}
	for _, d := range deltas {
		d.inv.Add(d.name, d.count)
	}

	st.BackPack.Clamp()
	return nil
}

// buyMicroResources handles both the single item form and the 4.0.0.400
// MicroResources list form.
func (e *Engine) buyMicroResources(ev *journal.Event, st *state.CommanderState) error {
	var deltas []delta
	if ev.Has("MicroResources") {
		for _, mr := range ev.Get("MicroResources").Array() {
			inv, err := st.Category(journal.Categorize(mr.Get("Category").String()))
			if err != nil {
				return err
			}
			deltas = append(deltas, delta{inv, journal.Canonicalize(mr.Get("Name").String()), mr.Get("Count").Int()})
		}
	} else {
		if err := require(ev, "Category", "Name", "Count"); err != nil {
			return err
		}
		inv, err := st.Category(journal.Categorize(ev.Get("Category").String()))
		if err != nil {
			return err
		}
		deltas = append(deltas, delta{inv, journal.Canonicalize(ev.Get("Name").String()), ev.Get("Count").Int()})
	}

	for _, d := range deltas {
		d.inv.Add(d.name, d.count)
	}
	st.Credits -= ev.Get("Price").Int()
	return nil
}

func (e *Engine) sellMicroResources(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "MicroResources"); err != nil {
		return err
	}
	var deltas []delta
	for _, mr := range ev.Get("MicroResources").Array() {
		inv, err := st.Category(journal.Categorize(mr.Get("Category").String()))
		if err != nil {
			return err
		}
		deltas = append(deltas, delta{inv, journal.Canonicalize(mr.Get("Name").String()), mr.Get("Count").Int()})
	}

	st.Credits += ev.Get("Price").Int()
	for _, d := range deltas {
		d.inv.Remove(d.name, d.count)
	}
	return nil
}

func (e *Engine) tradeMicroResources(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "Offered", "Category", "Received", "Count"); err != nil {
		return err
	}
	var offered []delta
	for _, offer := range ev.Get("Offered").Array() {
		inv, err := st.Category(journal.Categorize(offer.Get("Category").String()))
		if err != nil {
			return err
		}
		offered = append(offered, delta{inv, journal.Canonicalize(offer.Get("Name").String()), offer.Get("Count").Int()})
	}
	received, err := st.Category(journal.Categorize(ev.Get("Category").String()))
	if err != nil {
		return err
	}

	for _, d := range offered {
		d.inv.Remove(d.name, d.count)
	}
	received.Add(journal.Canonicalize(ev.Get("Received").String()), ev.Get("Count").Int())
	return nil
}

// transferMicroResources trusts the locker's new count from the event.
func (e *Engine) transferMicroResources(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "Transfers"); err != nil {
		return err
	}
	var deltas []delta
	for _, mr := range ev.Get("Transfers").Array() {
		inv, err := st.Category(journal.Categorize(mr.Get("Category").String()))
		if err != nil {
			return err
		}
		deltas = append(deltas, delta{inv, journal.Canonicalize(mr.Get("Name").String()), mr.Get("LockerNewCount").Int()})

		if dir := mr.Get("Direction").String(); dir != "ToShipLocker" && dir != "ToBackpack" {
			e.logger.Warn().Str("direction", dir).RawJSON("transfer", []byte(mr.Raw)).
				Msg("TransferMicroResources with unexpected Direction")
		}
	}

	for _, d := range deltas {
		if d.count <= 0 {
			delete(d.inv, d.name)
			continue
		}
		d.inv[d.name] = d.count
	}
	st.BackPack.Clamp()
	return nil
}
