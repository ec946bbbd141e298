package state

// LoadoutIDBase is subtracted from a journal LoadoutID to get the loadout slot id.
const LoadoutIDBase = 4293000000

// LoadoutSlotID converts a journal LoadoutID into a suit loadout slot id.
func LoadoutSlotID(journalID int64) int64 {
	return journalID - LoadoutIDBase
}

// SuitSlot is a weapon equipped in one suit loadout slot.
type SuitSlot struct {
	Name           string `json:"name"`
	ID             *int64 `json:"id"`
	WeaponRackID   int64  `json:"weaponrackId"`
	LocName        string `json:"locName"`
	LocDescription string `json:"locDescription"`
}

// Suit is an owned suit.
type Suit struct {
	Name      string               `json:"name"`
	LocName   string               `json:"locName"`
	ShortName string               `json:"shortName"`
	ID        *int64               `json:"id"`
	SuitID    int64                `json:"suitId"`
	Slots     map[string]*SuitSlot `json:"slots"`
}

// SuitLoadout is a named suit configuration.
type SuitLoadout struct {
	SlotID int64                `json:"loadoutSlotId"`
	Suit   *Suit                `json:"suit"`
	Name   string               `json:"name"`
	Slots  map[string]*SuitSlot `json:"slots"`
}

func cloneSlots(slots map[string]*SuitSlot) map[string]*SuitSlot {
	if slots == nil {
		return nil
	}
	out := make(map[string]*SuitSlot, len(slots))
	for k, v := range slots {
		s := *v
		out[k] = &s
	}
	return out
}

func (s *Suit) clone() *Suit {
	c := *s
	c.Slots = cloneSlots(s.Slots)
	return &c
}

// SetCurrentSuit points SuitCurrent and SuitLoadoutCurrent at known registry
// entries. It reports false, leaving both untouched, unless both are known.
func (s *CommanderState) SetCurrentSuit(suitID, loadoutSlotID int64) bool {
	suit, ok := s.Suits[suitID]
	if !ok {
		return false
	}
	loadout, ok := s.SuitLoadouts[loadoutSlotID]
	if !ok {
		return false
	}
	s.SuitCurrent = suit
	s.SuitLoadoutCurrent = loadout
	return true
}

// snapshotSuits deep-copies the registries and re-points the loadout suits and
// current pointers at the copies.
func (s *CommanderState) snapshotSuits(dst *CommanderState) {
	dst.Suits = make(map[int64]*Suit, len(s.Suits))
	for id, suit := range s.Suits {
		dst.Suits[id] = suit.clone()
	}

	resolve := func(suit *Suit) *Suit {
		if suit == nil {
			return nil
		}
		if c, ok := dst.Suits[suit.SuitID]; ok && s.Suits[suit.SuitID] == suit {
			return c
		}
		return suit.clone()
	}

	dst.SuitLoadouts = make(map[int64]*SuitLoadout, len(s.SuitLoadouts))
	copies := make(map[*SuitLoadout]*SuitLoadout, len(s.SuitLoadouts))
	for id, l := range s.SuitLoadouts {
		c := &SuitLoadout{
			SlotID: l.SlotID,
			Suit:   resolve(l.Suit),
			Name:   l.Name,
			Slots:  cloneSlots(l.Slots),
		}
		dst.SuitLoadouts[id] = c
		copies[l] = c
	}

	dst.SuitCurrent = resolve(s.SuitCurrent)
	dst.SuitLoadoutCurrent = nil
	if s.SuitLoadoutCurrent != nil {
		if c, ok := copies[s.SuitLoadoutCurrent]; ok {
			dst.SuitLoadoutCurrent = c
		} else {
			l := s.SuitLoadoutCurrent
			dst.SuitLoadoutCurrent = &SuitLoadout{SlotID: l.SlotID, Suit: resolve(l.Suit), Name: l.Name, Slots: cloneSlots(l.Slots)}
		}
	}
}
