package engine

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/state"
)

func (e *Engine) registerInventory() {
	e.on(e.cargo, journal.KindCargo)
	e.on(e.cargoTransfer, journal.KindCargoTransfer)
	e.on(e.cargoGained, journal.KindCollectCargo, journal.KindMarketBuy, journal.KindBuyDrones, journal.KindMiningRefined)
	e.on(e.cargoLost, journal.KindEjectCargo, journal.KindMarketSell, journal.KindSellDrones)
	e.on(e.searchAndRescue, journal.KindSearchAndRescue)
	e.on(e.materials, journal.KindMaterials)
	e.on(e.materialCollected, journal.KindMaterialCollected)
	e.on(e.materialDiscarded, journal.KindMaterialDiscarded, journal.KindScientificResearch)
	e.on(e.synthesis, journal.KindSynthesis)
	e.on(e.materialTrade, journal.KindMaterialTrade)
	e.on(e.engineerCraft, journal.KindEngineerCraft, journal.KindEngineerLegacyConvert)
	e.on(e.missionCompleted, journal.KindMissionCompleted)
	e.on(e.engineerContribution, journal.KindEngineerContribution)
	e.on(e.technologyBroker, journal.KindTechnologyBroker)
}

// items decodes a list of inventory entries.
func items(ev *journal.Event, key string) ([]state.Item, error) {
	if err := require(ev, key); err != nil {
		return nil, err
	}
	list := ev.Get(key)
	if !list.IsArray() {
		return nil, fmt.Errorf("%s is not a list", key)
	}
	out := make([]state.Item, 0, len(list.Array()))
	for _, v := range list.Array() {
		out = append(out, state.Item{
			Name:          v.Get("Name").String(),
			NameLocalised: v.Get("Name_Localised").String(),
			MissionID:     v.Get("MissionID").Int(),
			OwnerID:       v.Get("OwnerID").Int(),
			Count:         v.Get("Count").Int(),
			Stolen:        v.Get("Stolen").Int(),
		})
	}
	return out, nil
}

// cargo replaces the ship's cargo with a full snapshot. SRV cargo is ignored.
func (e *Engine) cargo(ev *journal.Event, st *state.CommanderState) error {
	if ev.Get("Vessel").String() != "Ship" {
		return nil
	}
	inventory, err := items(ev, "Inventory")
	if err != nil {
		return err
	}
	st.Cargo = state.Inventory{}
	st.Cargo.Fill(state.Coalesce(inventory))
	return nil
}

func (e *Engine) cargoTransfer(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "Transfers"); err != nil {
		return err
	}
	for _, c := range ev.Get("Transfers").Array() {
		name := journal.Canonicalize(c.Get("Type").String())
		if c.Get("Direction").String() == "toship" {
			st.Cargo.Add(name, c.Get("Count").Int())
		} else {
			st.Cargo.Remove(name, c.Get("Count").Int())
		}
	}
	return nil
}

func (e *Engine) cargoGained(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "Type"); err != nil {
		return err
	}
	root := gjson.ParseBytes(ev.Raw)
	st.Cargo.Add(journal.Canonicalize(ev.Get("Type").String()), countOr(root, "Count", 1))

	switch ev.Kind {
	case journal.KindBuyDrones, journal.KindMarketBuy:
		st.Credits -= ev.Get("TotalCost").Int()
	}
	return nil
}

func (e *Engine) cargoLost(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "Type"); err != nil {
		return err
	}
	root := gjson.ParseBytes(ev.Raw)
	st.Cargo.Remove(journal.Canonicalize(ev.Get("Type").String()), countOr(root, "Count", 1))

	switch ev.Kind {
	case journal.KindMarketSell, journal.KindSellDrones:
		st.Credits += ev.Get("TotalSale").Int()
	}
	return nil
}

func (e *Engine) searchAndRescue(ev *journal.Event, st *state.CommanderState) error {
	for _, item := range ev.Get("Items").Array() {
		st.Cargo.Remove(journal.Canonicalize(item.Get("Name").String()), countOr(item, "Count", 1))
	}
	return nil
}

var materialCategories = []string{"Raw", "Manufactured", "Encoded"}

// materials replaces all three material categories.
func (e *Engine) materials(ev *journal.Event, st *state.CommanderState) error {
	fresh := make(map[string]state.Inventory, len(materialCategories))
	for _, category := range materialCategories {
		inv := state.Inventory{}
		if ev.Has(category) {
			list, err := items(ev, category)
			if err != nil {
				return err
			}
			inv.Fill(state.Coalesce(list))
		}
		fresh[category] = inv
	}
	st.Raw = fresh["Raw"]
	st.Manufactured = fresh["Manufactured"]
	st.Encoded = fresh["Encoded"]
	return nil
}

func (e *Engine) materialCollected(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "Category", "Name", "Count"); err != nil {
		return err
	}
	inv, err := st.Category(journal.Categorize(ev.Get("Category").String()))
	if err != nil {
		return err
	}
	inv.Add(journal.Canonicalize(ev.Get("Name").String()), ev.Get("Count").Int())
	return nil
}

func (e *Engine) materialDiscarded(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "Category", "Name", "Count"); err != nil {
		return err
	}
	inv, err := st.Category(journal.Categorize(ev.Get("Category").String()))
	if err != nil {
		return err
	}
	inv.Remove(journal.Canonicalize(ev.Get("Name").String()), ev.Get("Count").Int())
	return nil
}

// consumeMaterials removes each ingredient from whichever material categories hold it.
func consumeMaterials(st *state.CommanderState, list gjson.Result) {
	for _, inv := range st.Materials() {
		for _, x := range list.Array() {
			inv.RemoveIfHeld(journal.Canonicalize(x.Get("Name").String()), x.Get("Count").Int())
		}
	}
}

func (e *Engine) synthesis(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "Materials"); err != nil {
		return err
	}
	consumeMaterials(st, ev.Get("Materials"))
	return nil
}

func (e *Engine) materialTrade(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "Paid", "Received"); err != nil {
		return err
	}
	paid, received := ev.Get("Paid"), ev.Get("Received")

	paidInv, err := st.Category(journal.Categorize(paid.Get("Category").String()))
	if err != nil {
		return err
	}
	receivedInv, err := st.Category(journal.Categorize(received.Get("Category").String()))
	if err != nil {
		return err
	}

	paidInv.Remove(journal.Canonicalize(paid.Get("Material").String()), paid.Get("Quantity").Int())
	receivedInv.Add(journal.Canonicalize(received.Get("Material").String()), received.Get("Quantity").Int())
	return nil
}

// engineerCraft spends the ingredients and records the new engineering on the
// module. Previews of legacy conversions change nothing.
func (e *Engine) engineerCraft(ev *journal.Event, st *state.CommanderState) error {
	if ev.Kind == journal.KindEngineerLegacyConvert && ev.Get("IsPreview").Bool() {
		return nil
	}
	module, record, err := engineering(ev, st)
	if err != nil {
		return err
	}
	consumeMaterials(st, ev.Get("Ingredients"))
	module.Set("Engineering", record)
	return nil
}

// itemChange is one resolved inventory update.
type itemChange struct {
	inv   state.Inventory
	name  string
	count int64
}

// categorized resolves every entry of list to its inventory. Entries without
// a category are skipped when optional is set. Nothing is changed, so a
// handler can reject the whole event before touching st.
func categorized(st *state.CommanderState, list gjson.Result, optional bool, count func(gjson.Result) int64) ([]itemChange, error) {
	var changes []itemChange
	for _, x := range list.Array() {
		if optional && !x.Get("Category").Exists() {
			continue
		}
		inv, err := st.Category(journal.Categorize(x.Get("Category").String()))
		if err != nil {
			return nil, err
		}
		changes = append(changes, itemChange{inv: inv, name: journal.Canonicalize(x.Get("Name").String()), count: count(x)})
	}
	return changes, nil
}

func (e *Engine) missionCompleted(ev *journal.Event, st *state.CommanderState) error {
	// Category is absent before 3.0.
	materials, err := categorized(st, ev.Get("MaterialsReward"), true, func(x gjson.Result) int64 {
		return countOr(x, "Count", 1)
	})
	if err != nil {
		return err
	}

	st.Credits += ev.Get("Reward").Int()

	for _, reward := range ev.Get("CommodityReward").Array() {
		st.Cargo.Add(journal.Canonicalize(reward.Get("Name").String()), countOr(reward, "Count", 1))
	}
	for _, m := range materials {
		m.inv.Add(m.name, m.count)
	}
	return nil
}

func (e *Engine) engineerContribution(ev *journal.Event, st *state.CommanderState) error {
	quantity := ev.Get("Quantity").Int()

	if commodity := journal.Canonicalize(ev.Get("Commodity").String()); commodity != "" {
		st.Cargo.Remove(commodity, quantity)
	}

	if material := journal.Canonicalize(ev.Get("Material").String()); material != "" {
		for _, inv := range st.Materials() {
			inv.RemoveIfHeld(material, quantity)
		}
	}
	return nil
}

func (e *Engine) technologyBroker(ev *journal.Event, st *state.CommanderState) error {
	materials, err := categorized(st, ev.Get("Materials"), false, func(x gjson.Result) int64 {
		return x.Get("Count").Int()
	})
	if err != nil {
		return err
	}

	// 3.01 lists everything as Ingredients.
	for _, thing := range ev.Get("Ingredients").Array() {
		name := journal.Canonicalize(thing.Get("Name").String())
		for _, inv := range append([]state.Inventory{st.Cargo}, st.Materials()...) {
			inv.RemoveIfHeld(name, thing.Get("Count").Int())
		}
	}

	for _, thing := range ev.Get("Commodities").Array() {
		st.Cargo.Remove(journal.Canonicalize(thing.Get("Name").String()), thing.Get("Count").Int())
	}

	for _, m := range materials {
		m.inv.Remove(m.name, m.count)
	}
	return nil
}
