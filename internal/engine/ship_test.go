package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	requirex "github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/state"
)

const loadoutLine = `{"timestamp":"2021-05-20T10:00:00Z","event":"Loadout","Ship":"Python","ShipID":7,"ShipName":"Nemo","ShipIdent":"NE-01","HullValue":56000000,"ModulesValue":9000000,"Rebuy":3250000,"Modules":[` +
	`{"Slot":"LargeHardpoint1","Item":"Hpt_BeamLaser_Gimbal_Large","On":true,"Priority":0,"AmmoInClip":1,"AmmoInHopper":1,"Health":1.0,"Value":2396160},` +
	`{"Slot":"TinyHardpoint1","Item":"Hpt_HeatSinkLauncher_Turret_Tiny","On":true,"Priority":0,"AmmoInClip":1,"AmmoInHopper":1,"Health":1.0},` +
	`{"Slot":"MediumHardpoint1","Item":"Hpt_MultiCannon_Gimbal_Medium","On":true,"Priority":0,"AmmoInClip":90,"AmmoInHopper":2100,"Health":1.0},` +
	`{"Slot":"Armour","Item":"$Python_Armour_Grade1_Name;","On":true,"Priority":1,"Health":1.0}` +
	`]}`

func TestLoadout(t *testing.T) {
	e := newTestEngine()
	st := state.New()

	feed(t, e, st, loadoutLine)

	requirex.NotNil(t, st.ShipID)
	assert.Equal(t, int64(7), *st.ShipID)
	assert.Equal(t, "python", st.ShipType)
	assert.Equal(t, "Nemo", st.ShipName)
	assert.Equal(t, "NE-01", st.ShipIdent)
	assert.Equal(t, int64(56000000), st.HullValue)
	assert.Equal(t, int64(3250000), st.Rebuy)
	requirex.Len(t, st.Modules, 4)

	laser := st.Modules["LargeHardpoint1"]
	assert.Equal(t, "hpt_beamlaser_gimbal_large", laser.String("Item"))
	assert.False(t, laser.Has("AmmoInClip"))
	assert.False(t, laser.Has("AmmoInHopper"))

	assert.True(t, st.Modules["TinyHardpoint1"].Has("AmmoInClip"), "tiny hardpoints keep ammo")
	assert.True(t, st.Modules["MediumHardpoint1"].Has("AmmoInClip"), "real ammo counts are kept")
	assert.Equal(t, "python_armour_grade1", st.Modules["Armour"].String("Item"))
	assert.Equal(t, []string{"Slot", "Item", "On", "Priority", "Health"}, st.Modules["Armour"].Keys())
}

func TestLoadoutKeepsNameOnBlank(t *testing.T) {
	e := newTestEngine()
	st := state.New()
	st.ShipName = "Nemo"

	feed(t, e, st, `{"timestamp":"2021-05-20T10:00:00Z","event":"Loadout","Ship":"Python","ShipID":7,"ShipName":" ","ShipIdent":"","Modules":[]}`)

	assert.Equal(t, "Nemo", st.ShipName)
	assert.Zero(t, st.HullValue)
	assert.NotNil(t, st.Modules)
}

func TestLoadoutSkipsFightersAndSRVs(t *testing.T) {
	e := newTestEngine()

	for _, ship := range []string{"independent_fighter", "testbuggy"} {
		st := state.New()
		st.ShipType = "python"
		feed(t, e, st, `{"timestamp":"2021-05-20T10:00:00Z","event":"Loadout","Ship":"`+ship+`","ShipID":99,"ShipName":"","ShipIdent":"","Modules":[]}`)
		assert.Equal(t, "python", st.ShipType, ship)
		assert.Nil(t, st.Modules, ship)
	}
}

func TestModuleTransactions(t *testing.T) {
	e := newTestEngine()
	st := state.New()
	feed(t, e, st, loadoutLine)
	st.Credits = 10000

	feed(t, e, st,
		`{"timestamp":"2021-05-20T10:01:00Z","event":"ModuleBuy","Slot":"Slot01_Size2","BuyItem":"$int_cargorack_size2_class1_name;","BuyPrice":3250,"Ship":"python","ShipID":7}`,
	)
	buy := st.Modules["Slot01_Size2"]
	requirex.NotNil(t, buy)
	assert.Equal(t, "int_cargorack_size2_class1", buy.String("Item"))
	assert.Equal(t, int64(3250), buy.Result("Value").Int())
	assert.Equal(t, int64(6750), st.Credits)

	feed(t, e, st,
		`{"timestamp":"2021-05-20T10:02:00Z","event":"ModuleSell","Slot":"MediumHardpoint1","SellItem":"hpt_multicannon_gimbal_medium","SellPrice":50000,"Ship":"python","ShipID":7}`,
		`{"timestamp":"2021-05-20T10:03:00Z","event":"ModuleStore","Slot":"Slot01_Size2","StoredItem":"int_cargorack_size2_class1","Cost":50,"Ship":"python","ShipID":7}`,
		`{"timestamp":"2021-05-20T10:04:00Z","event":"ModuleRetrieve","Slot":"Slot02_Size2","RetrievedItem":"x","Cost":100,"Ship":"python","ShipID":7}`,
		`{"timestamp":"2021-05-20T10:05:00Z","event":"ModuleSellRemote","StorageSlot":3,"SellItem":"x","SellPrice":25,"ServerId":1}`,
	)
	assert.NotContains(t, st.Modules, "MediumHardpoint1")
	assert.NotContains(t, st.Modules, "Slot01_Size2")
	assert.Equal(t, int64(6750+50000-50-100+25), st.Credits)
}

func TestModuleSwap(t *testing.T) {
	e := newTestEngine()
	st := state.New()
	feed(t, e, st, loadoutLine)
	laser := st.Modules["LargeHardpoint1"]
	cannon := st.Modules["MediumHardpoint1"]

	feed(t, e, st, `{"timestamp":"2021-05-20T10:01:00Z","event":"ModuleSwap","FromSlot":"LargeHardpoint1","ToSlot":"MediumHardpoint1","FromItem":"a","ToItem":"b","Ship":"python","ShipID":7}`)
	assert.Same(t, laser, st.Modules["MediumHardpoint1"])
	assert.Same(t, cannon, st.Modules["LargeHardpoint1"])

	feed(t, e, st, `{"timestamp":"2021-05-20T10:02:00Z","event":"ModuleSwap","FromSlot":"LargeHardpoint1","ToSlot":"LargeHardpoint2","FromItem":"a","ToItem":"Null","Ship":"python","ShipID":7}`)
	assert.Same(t, cannon, st.Modules["LargeHardpoint2"])
	assert.NotContains(t, st.Modules, "LargeHardpoint1")
}

func TestShipChange(t *testing.T) {
	e := newTestEngine()
	st := state.New()
	feed(t, e, st, loadoutLine)
	st.Credits = 100000

	feed(t, e, st, `{"timestamp":"2021-05-20T10:01:00Z","event":"ShipyardBuy","ShipType":"Cobra_MkIII","ShipPrice":90000,"StoreOldShip":"Python","StoreShipID":7,"MarketID":1}`)
	assert.Nil(t, st.ShipID)
	assert.Equal(t, "cobra_mkiii", st.ShipType)
	assert.Empty(t, st.ShipName)
	assert.Nil(t, st.Modules)
	assert.Equal(t, int64(10000), st.Credits)

	feed(t, e, st, `{"timestamp":"2021-05-20T10:02:00Z","event":"ShipyardSwap","ShipType":"python","ShipID":7,"StoreOldShip":"Cobra_MkIII","StoreShipID":8,"MarketID":1}`)
	requirex.NotNil(t, st.ShipID)
	assert.Equal(t, int64(7), *st.ShipID)

	feed(t, e, st, `{"timestamp":"2021-05-20T10:03:00Z","event":"SetUserShipName","Ship":"python","ShipID":7,"UserShipName":"Nautilus","UserShipId":"NA-02"}`)
	assert.Equal(t, "Nautilus", st.ShipName)
	assert.Equal(t, "NA-02", st.ShipIdent)
}

func TestEngineerCraft(t *testing.T) {
	e := newTestEngine()
	st := state.New()
	feed(t, e, st, loadoutLine)
	st.Raw["iron"] = 3
	st.Manufactured["heatconductionwiring"] = 1

	feed(t, e, st, `{"timestamp":"2021-05-20T10:01:00Z","event":"EngineerCraft","Slot":"LargeHardpoint1","Module":"hpt_beamlaser_gimbal_large","Ingredients":[{"Name":"iron","Count":1},{"Name":"heatconductionwiring","Count":1}],"Engineer":"Broo Tarquin","EngineerID":300030,"BlueprintID":128731656,"BlueprintName":"Weapon_LongRange","Level":3,"Quality":0.5,"ExperimentalEffect":"special_thermalshock","ExperimentalEffect_Localised":"Thermal Shock","Modifiers":[]}`)

	assert.Equal(t, int64(2), st.Raw["iron"])
	assert.NotContains(t, st.Manufactured, "heatconductionwiring")

	engineering := st.Modules["LargeHardpoint1"].Result("Engineering")
	assert.Equal(t, "Broo Tarquin", engineering.Get("Engineer").String())
	assert.Equal(t, int64(3), engineering.Get("Level").Int())
	assert.Equal(t, "Thermal Shock", engineering.Get("ExperimentalEffect_Localised").String())
}

func TestEngineerCraftWrongModuleChangesNothing(t *testing.T) {
	e := newTestEngine()
	st := state.New()
	feed(t, e, st, loadoutLine)
	st.Raw["iron"] = 3

	feed(t, e, st, `{"timestamp":"2021-05-20T10:01:00Z","event":"EngineerCraft","Slot":"LargeHardpoint1","Module":"hpt_railgun_fixed_medium","Ingredients":[{"Name":"iron","Count":1}],"Engineer":"Broo Tarquin","EngineerID":300030,"BlueprintID":128731656,"BlueprintName":"Weapon_LongRange","Level":3,"Quality":0.5,"Modifiers":[]}`)

	assert.Equal(t, int64(3), st.Raw["iron"])
	assert.False(t, st.Modules["LargeHardpoint1"].Has("Engineering"))
}

func TestEngineerLegacyConvertPreview(t *testing.T) {
	e := newTestEngine()
	st := state.New()
	feed(t, e, st, loadoutLine)

	feed(t, e, st, `{"timestamp":"2021-05-20T10:01:00Z","event":"EngineerLegacyConvert","Slot":"LargeHardpoint1","Module":"hpt_beamlaser_gimbal_large","IsPreview":true,"Engineer":"x","EngineerID":1,"BlueprintID":1,"BlueprintName":"b","Level":1,"Quality":0,"Modifiers":[]}`)

	assert.False(t, st.Modules["LargeHardpoint1"].Has("Engineering"))
}
