package journal

// Kind is the value of a record's "event" field.
type Kind string

// KindNone marks the null event produced for a nil or malformed record.
const KindNone Kind = ""

// Session and harness.
const (
	KindFileheader        Kind = "Fileheader"
	KindCommander         Kind = "Commander"
	KindLoadGame          Kind = "LoadGame"
	KindNewCommander      Kind = "NewCommander"
	KindStartUp           Kind = "StartUp"
	KindHarnessNewVersion Kind = "Harness-NewVersion"
	KindRefreshOver       Kind = "RefreshOver"
	KindExitProgram       Kind = "ExitProgram"
)

// Ship and modules.
const (
	KindSetUserShipName  Kind = "SetUserShipName"
	KindShipyardBuy      Kind = "ShipyardBuy"
	KindShipyardSwap     Kind = "ShipyardSwap"
	KindLoadout          Kind = "Loadout"
	KindModuleBuy        Kind = "ModuleBuy"
	KindModuleRetrieve   Kind = "ModuleRetrieve"
	KindModuleSell       Kind = "ModuleSell"
	KindModuleSellRemote Kind = "ModuleSellRemote"
	KindModuleStore      Kind = "ModuleStore"
	KindModuleSwap       Kind = "ModuleSwap"
)

// Location.
const (
	KindUndocked         Kind = "Undocked"
	KindEmbark           Kind = "Embark"
	KindDisembark        Kind = "Disembark"
	KindDropshipDeploy   Kind = "DropshipDeploy"
	KindDocked           Kind = "Docked"
	KindLocation         Kind = "Location"
	KindFSDJump          Kind = "FSDJump"
	KindStartJump        Kind = "StartJump"
	KindCarrierJump      Kind = "CarrierJump"
	KindApproachBody     Kind = "ApproachBody"
	KindLeaveBody        Kind = "LeaveBody"
	KindSupercruiseEntry Kind = "SupercruiseEntry"
)

// Progression.
const (
	KindRank             Kind = "Rank"
	KindPromotion        Kind = "Promotion"
	KindProgress         Kind = "Progress"
	KindReputation       Kind = "Reputation"
	KindStatistics       Kind = "Statistics"
	KindEngineerProgress Kind = "EngineerProgress"
)

// Cargo and materials.
const (
	KindCargo                 Kind = "Cargo"
	KindCargoTransfer         Kind = "CargoTransfer"
	KindCollectCargo          Kind = "CollectCargo"
	KindMarketBuy             Kind = "MarketBuy"
	KindBuyDrones             Kind = "BuyDrones"
	KindMiningRefined         Kind = "MiningRefined"
	KindEjectCargo            Kind = "EjectCargo"
	KindMarketSell            Kind = "MarketSell"
	KindSellDrones            Kind = "SellDrones"
	KindSearchAndRescue       Kind = "SearchAndRescue"
	KindMaterials             Kind = "Materials"
	KindMaterialCollected     Kind = "MaterialCollected"
	KindMaterialDiscarded     Kind = "MaterialDiscarded"
	KindScientificResearch    Kind = "ScientificResearch"
	KindSynthesis             Kind = "Synthesis"
	KindMaterialTrade         Kind = "MaterialTrade"
	KindEngineerCraft         Kind = "EngineerCraft"
	KindEngineerLegacyConvert Kind = "EngineerLegacyConvert"
	KindMissionCompleted      Kind = "MissionCompleted"
	KindEngineerContribution  Kind = "EngineerContribution"
	KindTechnologyBroker      Kind = "TechnologyBroker"
)

// On-foot inventory.
const (
	KindShipLocker             Kind = "ShipLocker"
	KindShipLockerMaterials    Kind = "ShipLockerMaterials"
	KindBackPackMaterials      Kind = "BackPackMaterials"
	KindBackPack               Kind = "BackPack"
	KindBackpack               Kind = "Backpack"
	KindBackpackChange         Kind = "BackpackChange"
	KindBuyMicroResources      Kind = "BuyMicroResources"
	KindSellMicroResources     Kind = "SellMicroResources"
	KindTradeMicroResources    Kind = "TradeMicroResources"
	KindTransferMicroResources Kind = "TransferMicroResources"
	KindCollectItems           Kind = "CollectItems"
	KindDropItems              Kind = "DropItems"
	KindUseConsumable          Kind = "UseConsumable"
	KindUpgradeWeapon          Kind = "UpgradeWeapon"
	KindScanOrganic            Kind = "ScanOrganic"
)

// Suits.
const (
	KindSuitLoadout         Kind = "SuitLoadout"
	KindSwitchSuitLoadout   Kind = "SwitchSuitLoadout"
	KindCreateSuitLoadout   Kind = "CreateSuitLoadout"
	KindDeleteSuitLoadout   Kind = "DeleteSuitLoadout"
	KindRenameSuitLoadout   Kind = "RenameSuitLoadout"
	KindBuySuit             Kind = "BuySuit"
	KindSellSuit            Kind = "SellSuit"
	KindUpgradeSuit         Kind = "UpgradeSuit"
	KindLoadoutEquipModule  Kind = "LoadoutEquipModule"
	KindLoadoutRemoveModule Kind = "LoadoutRemoveModule"
	KindBuyWeapon           Kind = "BuyWeapon"
	KindSellWeapon          Kind = "SellWeapon"
)

// Finance.
const (
	KindSellOrganicData          Kind = "SellOrganicData"
	KindBookDropship             Kind = "BookDropship"
	KindBookTaxi                 Kind = "BookTaxi"
	KindCancelDropship           Kind = "CancelDropship"
	KindCancelTaxi               Kind = "CancelTaxi"
	KindMultiSellExplorationData Kind = "MultiSellExplorationData"
	KindSellExplorationData      Kind = "SellExplorationData"
	KindBuyExplorationData       Kind = "BuyExplorationData"
	KindBuyTradeData             Kind = "BuyTradeData"
	KindBuyAmmo                  Kind = "BuyAmmo"
	KindCommunityGoalReward      Kind = "CommunityGoalReward"
	KindCrewHire                 Kind = "CrewHire"
	KindFetchRemoteModule        Kind = "FetchRemoteModule"
	KindMissionAbandoned         Kind = "MissionAbandoned"
	KindPayBounties              Kind = "PayBounties"
	KindPayFines                 Kind = "PayFines"
	KindPayLegacyFines           Kind = "PayLegacyFines"
	KindRedeemVoucher            Kind = "RedeemVoucher"
	KindRefuelAll                Kind = "RefuelAll"
	KindRefuelPartial            Kind = "RefuelPartial"
	KindRepair                   Kind = "Repair"
	KindRepairAll                Kind = "RepairAll"
	KindRestockVehicle           Kind = "RestockVehicle"
	KindSellShipOnRebuy          Kind = "SellShipOnRebuy"
	KindShipyardSell             Kind = "ShipyardSell"
	KindShipyardTransfer         Kind = "ShipyardTransfer"
	KindPowerplayFastTrack       Kind = "PowerplayFastTrack"
	KindPowerplaySalary          Kind = "PowerplaySalary"
	KindSquadronCreated          Kind = "SquadronCreated"
	KindCarrierBuy               Kind = "CarrierBuy"
	KindCarrierBankTransfer      Kind = "CarrierBankTransfer"
	KindCarrierDecommission      Kind = "CarrierDecommission"
	KindNpcCrewPaidWage          Kind = "NpcCrewPaidWage"
	KindResurrect                Kind = "Resurrect"
)

// Crew and social.
const (
	KindJoinACrew      Kind = "JoinACrew"
	KindChangeCrewRole Kind = "ChangeCrewRole"
	KindQuitACrew      Kind = "QuitACrew"
	KindFriends        Kind = "Friends"
)
