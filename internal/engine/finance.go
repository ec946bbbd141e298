package engine

import (
	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/state"
)

// ledger is the credits change of an event: sign times the value of field.
// An absent field changes nothing.
type ledger struct {
	field string
	sign  int64
}

func earn(field string) ledger  { return ledger{field, 1} }
func spend(field string) ledger { return ledger{field, -1} }

var ledgers = map[journal.Kind]ledger{
	journal.KindBookDropship:             spend("Cost"),
	journal.KindBookTaxi:                 spend("Cost"),
	journal.KindCancelDropship:           earn("Refund"),
	journal.KindCancelTaxi:               earn("Refund"),
	journal.KindMultiSellExplorationData: earn("TotalEarnings"),
	journal.KindSellExplorationData:      earn("TotalEarnings"),
	journal.KindBuyExplorationData:       spend("Cost"),
	journal.KindBuyTradeData:             spend("Cost"),
	journal.KindBuyAmmo:                  spend("Cost"),
	journal.KindCommunityGoalReward:      earn("Reward"),
	journal.KindCrewHire:                 spend("Cost"),
	journal.KindFetchRemoteModule:        spend("TransferCost"),
	journal.KindPayBounties:              spend("Amount"),
	journal.KindPayFines:                 spend("Amount"),
	journal.KindPayLegacyFines:           spend("Amount"),
	journal.KindRedeemVoucher:            earn("Amount"),
	journal.KindRefuelAll:                spend("Cost"),
	journal.KindRefuelPartial:            spend("Cost"),
	journal.KindRepair:                   spend("Cost"),
	journal.KindRepairAll:                spend("Cost"),
	journal.KindRestockVehicle:           spend("Cost"),
	journal.KindSellShipOnRebuy:          earn("ShipPrice"),
	journal.KindShipyardSell:             earn("ShipPrice"),
	journal.KindShipyardTransfer:         spend("TransferPrice"),
	journal.KindPowerplayFastTrack:       spend("Cost"),
	journal.KindPowerplaySalary:          earn("Amount"),
	journal.KindCarrierBuy:               spend("Price"),
	journal.KindNpcCrewPaidWage:          spend("Amount"),
	journal.KindResurrect:                spend("Cost"),
}

func (e *Engine) registerFinance() {
	for kind := range ledgers {
		e.on(e.applyLedger, kind)
	}
	e.on(e.sellOrganicData, journal.KindSellOrganicData)
	e.on(e.carrierBankTransfer, journal.KindCarrierBankTransfer)

	// Fines are paid later and the other two carry no amount.
	e.on(noop,
		journal.KindMissionAbandoned,
		journal.KindSquadronCreated,
		journal.KindCarrierDecommission,
	)
}

func (e *Engine) applyLedger(ev *journal.Event, st *state.CommanderState) error {
	l := ledgers[ev.Kind]
	st.Credits += l.sign * ev.Get(l.field).Int()
	return nil
}

func (e *Engine) sellOrganicData(ev *journal.Event, st *state.CommanderState) error {
	if err := require(ev, "BioData"); err != nil {
		return err
	}
	for _, bd := range ev.Get("BioData").Array() {
		st.Credits += bd.Get("Value").Int() + bd.Get("Bonus").Int()
	}
	return nil
}

// carrierBankTransfer reports the authoritative balance, not a delta.
func (e *Engine) carrierBankTransfer(ev *journal.Event, st *state.CommanderState) error {
	if balance := ev.Get("PlayerBalance").Int(); balance != 0 {
		st.Credits = balance
	}
	return nil
}
