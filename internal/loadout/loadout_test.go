package loadout

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/logging"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/metrics"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/state"
)

func module(slot, item string) *journal.Document {
	return journal.NewDocument().
		Set("Slot", slot).
		Set("Item", item).
		Set("On", true).
		Set("Priority", 1).
		Set("Health", 0.97).
		Set("Value", 12000)
}

func shipState() *state.CommanderState {
	st := state.New()
	id := int64(7)
	st.ShipID = &id
	st.ShipType = "cobramkiii"
	st.ShipName = "Nomad"
	st.ShipIdent = "NM-01"
	st.Modules = map[string]*journal.Document{
		"Slot02_Size4":           module("Slot02_Size4", "int_cargorack_size4_class1"),
		"PowerPlant":             module("PowerPlant", "int_powerplant_size4_class5"),
		"MediumHardpoint1":       module("MediumHardpoint1", "hpt_pulselaser_fixed_medium"),
		"Armour":                 module("Armour", "cobramkiii_armour_grade1"),
		"PaintJob":               module("PaintJob", "paintjob_cobramkiii_default_52"),
		"Slot01_Size5":           module("Slot01_Size5", "int_fuelscoop_size5_class5"),
		"TinyHardpoint1":         module("TinyHardpoint1", "hpt_heatsinklauncher_turret_tiny"),
		"PlanetaryApproachSuite": module("PlanetaryApproachSuite", "int_planetapproachsuite"),
	}
	return st
}

func quiet() *logging.Logger {
	return logging.New(logging.Config{Level: "error", Output: io.Discard})
}

func TestShipNilWithoutModules(t *testing.T) {
	assert.Nil(t, Ship(state.New(), true, time.Now()))
}

func TestShipOrdersAndStripsModules(t *testing.T) {
	now := time.Date(2021, 5, 20, 10, 0, 0, 0, time.UTC)
	doc := Ship(shipState(), true, now)
	require.NotNil(t, doc)

	assert.Equal(t, []string{"timestamp", "event", "Ship", "ShipID", "ShipName", "ShipIdent", "Modules"}, doc.Keys())
	assert.Equal(t, "2021-05-20T10:00:00Z", doc.String("timestamp"))
	assert.Equal(t, "Loadout", doc.String("event"))

	mods := doc.Result("Modules").Array()
	var slots []string
	for _, m := range mods {
		slots = append(slots, m.Get("Slot").String())
		assert.False(t, m.Get("Health").Exists())
		assert.False(t, m.Get("Value").Exists())
	}
	assert.Equal(t, []string{
		"MediumHardpoint1",
		"TinyHardpoint1",
		"Armour",
		"PowerPlant",
		"Slot01_Size5",
		"Slot02_Size4",
		"PaintJob",
		"PlanetaryApproachSuite",
	}, slots)
}

func TestShipDoesNotMutateState(t *testing.T) {
	st := shipState()
	Ship(st, false, time.Time{})
	assert.True(t, st.Modules["Armour"].Has("Health"))
}

func TestShipOmitsEmptyNames(t *testing.T) {
	st := shipState()
	st.ShipName = ""
	st.ShipIdent = ""
	doc := Ship(st, false, time.Time{})
	assert.Equal(t, []string{"event", "Ship", "ShipID", "Modules"}, doc.Keys())
}

func TestShipFileName(t *testing.T) {
	tests := []struct {
		name, ship, typ, want string
	}{
		{"ship name wins", "Nomad", "cobramkiii", "Nomad"},
		{"type fallback", "  ", "cobramkiii", "cobramkiii"},
		{"unsafe characters", `A/B:C*D?`, "", "A_B_C_D_"},
		{"trailing dots", "Nomad...", "", "Nomad"},
		{"reserved", "CON", "", "CON_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShipFileName(tt.ship, tt.typ))
		})
	}
}

func decodeShipyard(t *testing.T, url, host string) string {
	t.Helper()
	require.True(t, strings.HasPrefix(url, host), url)
	payload := strings.ReplaceAll(strings.TrimPrefix(url, host), "%3D", "=")
	assert.NotContains(t, strings.TrimPrefix(url, host), "=")

	compressed, err := base64.URLEncoding.DecodeString(payload)
	require.NoError(t, err)
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	return string(plain)
}

func TestShipyardURL(t *testing.T) {
	doc := journal.NewDocument().
		Set("event", "Loadout").
		Set("Ship", "sidewinder").
		Set("Modules", []*journal.Document{journal.NewDocument().Set("Slot", "Armour").Set("Item", "sidewinder_armour_grade1")})

	url, err := ShipyardURL(doc, false)
	require.NoError(t, err)
	assert.Equal(t,
		`{"Modules":[{"Item":"sidewinder_armour_grade1","Slot":"Armour"}],"Ship":"sidewinder","event":"Loadout"}`,
		decodeShipyard(t, url, EDSYURL))

	beta, err := ShipyardURL(doc, true)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(beta, EDSYBetaURL))
}

func TestShipyardURLKeepsLargeNumbers(t *testing.T) {
	doc := journal.NewDocument().Set("ShipID", int64(9007199254740993))
	url, err := ShipyardURL(doc, false)
	require.NoError(t, err)
	assert.Equal(t, `{"ShipID":9007199254740993}`, decodeShipyard(t, url, EDSYURL))
}

func TestShipyardURLWithoutLoadout(t *testing.T) {
	_, err := ShipyardURL(nil, false)
	assert.Error(t, err)
}

func TestRenderIsIndented(t *testing.T) {
	data, err := Render(shipState())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{\n  \"event\": \"Loadout\",\n  \"Ship\": \"cobramkiii\","), string(data))
	assert.Contains(t, string(data), "\"Modules\": [\n    {\n      \"Slot\": \"MediumHardpoint1\",", "one module per line")
	assert.True(t, strings.HasSuffix(string(data), "\n}"), "no trailing newline")

	_, err = Render(state.New())
	assert.ErrorIs(t, err, ErrNoLoadout)
}

func TestExportSkipsIdentical(t *testing.T) {
	dir := t.TempDir()
	collector := metrics.NewCollector()
	clock := time.Date(2021, 5, 20, 10, 0, 0, 0, time.Local)
	x := NewExporter(dir, WithLogger(quiet()), WithMetrics(collector), WithClock(func() time.Time { return clock }))

	st := shipState()
	path, err := x.Export(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Nomad.2021-05-20T10.00.00.txt"), path)

	clock = clock.Add(time.Minute)
	path, err = x.Export(context.Background(), st)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.ExportsSkipped))

	st.Modules["Slot03_Size2"] = module("Slot03_Size2", "int_shieldgenerator_size2_class1")
	path, err = x.Export(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Nomad.2021-05-20T10.01.00.txt"), path)
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.ExportsWritten))

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	want, err := Render(st)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(written))
}

func TestExportWithoutModules(t *testing.T) {
	x := NewExporter(t.TempDir(), WithLogger(quiet()))
	_, err := x.Export(context.Background(), state.New())
	assert.ErrorIs(t, err, ErrNoLoadout)
}

func TestExportFallsBackToASCII(t *testing.T) {
	x := NewExporter(t.TempDir(), WithLogger(quiet()))
	var attempts [][]byte
	x.writeFile = func(_ string, data []byte, _ os.FileMode) error {
		attempts = append(attempts, data)
		if len(attempts) == 1 {
			return errors.New("encoding not supported")
		}
		return nil
	}

	st := shipState()
	st.ShipName = "Ünïcode 🚀"
	require.NoError(t, x.ExportTo(context.Background(), st, "loadout.txt"))

	require.Len(t, attempts, 2)
	assert.Contains(t, string(attempts[0]), "Ünïcode 🚀")
	assert.Contains(t, string(attempts[1]), `\u00dcn\u00efcode \ud83d\ude80`)
}

func TestExportGivesUpAfterFallback(t *testing.T) {
	collector := metrics.NewCollector()
	x := NewExporter(t.TempDir(), WithLogger(quiet()), WithMetrics(collector))
	x.writeFile = func(string, []byte, os.FileMode) error { return errors.New("disk full") }

	err := x.ExportTo(context.Background(), shipState(), "loadout.txt")
	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.ExportFailures))
}
