package state

import (
	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
)

// Inventory maps a canonical item name to a count.
type Inventory map[string]int64

// Add increases the count of name by n.
func (inv Inventory) Add(name string, n int64) {
	inv[name] += n
}

// Remove decreases the count of name by n and drops the key once it reaches zero.
func (inv Inventory) Remove(name string, n int64) {
	inv[name] -= n
	if inv[name] <= 0 {
		delete(inv, name)
	}
}

// RemoveIfHeld is Remove, restricted to names already present.
func (inv Inventory) RemoveIfHeld(name string, n int64) bool {
	if _, ok := inv[name]; !ok {
		return false
	}
	inv.Remove(name, n)
	return true
}

// Clamp raises every negative count to zero.
func (inv Inventory) Clamp() {
	for name, n := range inv {
		if n < 0 {
			inv[name] = 0
		}
	}
}

// Fill adds every item under its canonical name. Items must already be coalesced.
func (inv Inventory) Fill(items []Item) {
	for _, it := range items {
		if it.Count <= 0 {
			continue
		}
		inv[journal.Canonicalize(it.Name)] = it.Count
	}
}

// Clone returns a copy of the inventory.
func (inv Inventory) Clone() Inventory {
	out := make(Inventory, len(inv))
	for k, v := range inv {
		out[k] = v
	}
	return out
}

// Item is one entry of a full inventory snapshot event.
type Item struct {
	Name          string `json:"Name"`
	NameLocalised string `json:"Name_Localised,omitempty"`
	MissionID     int64  `json:"MissionID,omitempty"`
	OwnerID       int64  `json:"OwnerID,omitempty"`
	Count         int64  `json:"Count"`
	Stolen        int64  `json:"Stolen,omitempty"`
}

// Coalesce merges entries whose names canonicalize equal, keeping the first
// entry of each name and summing the counts into it. The game lists one entry
// per mission for the same commodity.
func Coalesce(items []Item) []Item {
	out := make([]Item, 0, len(items))
	index := make(map[string]int, len(items))
	for _, it := range items {
		key := journal.Canonicalize(it.Name)
		if i, ok := index[key]; ok {
			out[i].Count += it.Count
			continue
		}
		index[key] = len(out)
		out = append(out, it)
	}
	return out
}

// Backpack holds the on-foot carried inventory. Its counts are approximate
// because not every pickup is journaled, so they are clamped rather than removed.
type Backpack struct {
	Component  Inventory `json:"Component"`
	Consumable Inventory `json:"Consumable"`
	Item       Inventory `json:"Item"`
	Data       Inventory `json:"Data"`
}

// NewBackpack creates an empty backpack.
func NewBackpack() Backpack {
	return Backpack{
		Component:  Inventory{},
		Consumable: Inventory{},
		Item:       Inventory{},
		Data:       Inventory{},
	}
}

// Category returns the backpack inventory for a micro-resource category.
func (b *Backpack) Category(name string) (Inventory, error) {
	switch name {
	case "Component":
		return b.Component, nil
	case "Consumable":
		return b.Consumable, nil
	case "Item":
		return b.Item, nil
	case "Data":
		return b.Data, nil
	}
	return nil, unknownCategory(name)
}

// Clamp raises every negative count in every category to zero.
func (b *Backpack) Clamp() {
	b.Component.Clamp()
	b.Consumable.Clamp()
	b.Item.Clamp()
	b.Data.Clamp()
}

// Clone returns a deep copy.
func (b Backpack) Clone() Backpack {
	return Backpack{
		Component:  b.Component.Clone(),
		Consumable: b.Consumable.Clone(),
		Item:       b.Item.Clone(),
		Data:       b.Data.Clone(),
	}
}
