// Package loadout builds read-only views of the current ship for export and
// for shipyard links.
package loadout

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/state"
)

// Shipyard hosts for EDSY links.
const (
	EDSYURL     = "http://edsy.org/#/I="
	EDSYBetaURL = "http://edsy.org/beta/#/I="
)

// standardOrder is the order core internals are listed in.
var standardOrder = []string{
	"ShipCockpit", "CargoHatch", "Armour", "PowerPlant", "MainEngines",
	"FrameShiftDrive", "LifeSupport", "PowerDistributor", "Radar", "FuelTank",
}

// transient module fields that change without the fit changing.
var transient = []string{"Health", "Value"}

var (
	sortedEncoder = sonic.Config{SortMapKeys: true}.Froze()
	numberDecoder = sonic.Config{UseNumber: true}.Froze()
)

func standardIndex(slot string) int {
	for i, s := range standardOrder {
		if s == slot {
			return i
		}
	}
	return len(standardOrder)
}

// slotLess orders hardpoints first, then core internals in standardOrder,
// then numbered slots, then everything else by name.
func slotLess(a, b string) bool {
	ah, bh := !strings.Contains(a, "Hardpoint"), !strings.Contains(b, "Hardpoint")
	if ah != bh {
		return !ah
	}
	ai, bi := standardIndex(a), standardIndex(b)
	if ai != bi {
		return ai < bi
	}
	as, bs := !strings.Contains(a, "Slot"), !strings.Contains(b, "Slot")
	if as != bs {
		return !as
	}
	return a < b
}

// Ship returns the current ship as a Loadout document, or nil while no
// modules are known.
func Ship(st *state.CommanderState, timestamped bool, now time.Time) *journal.Document {
	if len(st.Modules) == 0 {
		return nil
	}

	d := journal.NewDocument()
	if timestamped {
		d.Set("timestamp", journal.FormatTimestamp(now))
	}
	d.Set("event", string(journal.KindLoadout)).
		Set("Ship", st.ShipType).
		Set("ShipID", st.ShipID)
	if st.ShipName != "" {
		d.Set("ShipName", st.ShipName)
	}
	if st.ShipIdent != "" {
		d.Set("ShipIdent", st.ShipIdent)
	}

	slots := make([]string, 0, len(st.Modules))
	for slot := range st.Modules {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slotLess(slots[i], slots[j]) })

	modules := make([]*journal.Document, 0, len(slots))
	for _, slot := range slots {
		m := st.Modules[slot].Clone()
		for _, key := range transient {
			m.Delete(key)
		}
		modules = append(modules, m)
	}
	d.Set("Modules", modules)

	return d
}

// reserved are device names Windows will not accept as file names.
var reserved = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
	"com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
	"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

var unsafeChars = strings.NewReplacer(
	"\x00", "_", "<", "_", ">", "_", ":", "_", `"`, "_",
	"/", "_", `\`, "_", "|", "_", "?", "_", "*", "_",
)

// ShipFileName returns a name for export files that is safe on every
// platform. The ship's own name wins over its type.
func ShipFileName(shipName, shipType string) string {
	name := strings.TrimSpace(shipName)
	if name == "" {
		name = strings.TrimSpace(shipType)
	}
	name = strings.TrimRight(name, ".")
	if reserved[strings.ToLower(name)] {
		name += "_"
	}
	return unsafeChars.Replace(name)
}

// ShipyardURL returns an EDSY link that opens the loadout in the shipyard.
func ShipyardURL(loadout *journal.Document, beta bool) (string, error) {
	if loadout == nil {
		return "", fmt.Errorf("no ship loadout")
	}

	compact, err := sortedJSON(loadout)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(compact); err != nil {
		return "", fmt.Errorf("failed to compress loadout: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to compress loadout: %w", err)
	}

	host := EDSYURL
	if beta {
		host = EDSYBetaURL
	}
	encoded := strings.ReplaceAll(base64.URLEncoding.EncodeToString(buf.Bytes()), "=", "%3D")
	return host + encoded, nil
}

// sortedJSON is the most compact encoding of doc with every object's keys
// sorted.
func sortedJSON(doc *journal.Document) ([]byte, error) {
	raw, err := doc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode loadout: %w", err)
	}
	var v any
	if err := numberDecoder.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode loadout: %w", err)
	}
	out, err := sortedEncoder.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode loadout: %w", err)
	}
	return out, nil
}
