package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
)

var systems = []struct {
	name    string
	address int64
	pos     [3]float64
}{
	{"Sol", 10477373803, [3]float64{0, 0, 0}},
	{"Shinrarta Dezhra", 3932277478106, [3]float64{55.71875, 17.59375, 27.15625}},
	{"Deciat", 6681123623626, [3]float64{122.625, -0.8125, -47.28125}},
	{"Colonia", 3238296097059, [3]float64{-9530.5, -910.28125, 19808.125}},
}

var materials = []string{"iron", "nickel", "carbon", "sulphur", "chemicalprocessors", "wornshieldemitters"}

// generator produces a plausible single-commander session. It is not safe
// for concurrent use.
type generator struct {
	rnd       *rand.Rand
	malformed float64
	now       time.Time
	system    int
	docked    bool
}

func newGenerator(rnd *rand.Rand, malformed float64) *generator {
	return &generator{rnd: rnd, malformed: malformed, now: time.Now().UTC()}
}

func (g *generator) stamp() string {
	g.now = g.now.Add(time.Duration(1+g.rnd.Intn(30)) * time.Second)
	return g.now.Format(journal.TimestampLayout)
}

// header is what the game writes when a session starts.
func (g *generator) header() []string {
	s := systems[g.system]
	return []string{
		fmt.Sprintf(`{"timestamp":"%s","event":"Fileheader","part":1,"language":"English/UK","gameversion":"4.0.0.1450","build":"r273365/r0 "}`, g.stamp()),
		fmt.Sprintf(`{"timestamp":"%s","event":"LoadGame","Commander":"Generator","FID":"F1","Horizons":true,"Odyssey":true,"Ship":"Krait_MkII","ShipID":3,"ShipName":"Load Test","ShipIdent":"LT-01","Credits":%d,"Loan":0,"GameMode":"Open"}`, g.stamp(), 1000000+g.rnd.Intn(1000000)),
		fmt.Sprintf(`{"timestamp":"%s","event":"Loadout","Ship":"krait_mkii","ShipID":3,"ShipName":"Load Test","ShipIdent":"LT-01","Modules":[{"Slot":"PowerPlant","Item":"int_powerplant_size7_class5","On":true,"Priority":1,"Health":1.0},{"Slot":"FrameShiftDrive","Item":"int_hyperdrive_size5_class5","On":true,"Priority":0,"Health":1.0}]}`, g.stamp()),
		fmt.Sprintf(`{"timestamp":"%s","event":"Location","Docked":false,"StarSystem":"%s","SystemAddress":%d,"StarPos":[%g,%g,%g]}`, g.stamp(), s.name, s.address, s.pos[0], s.pos[1], s.pos[2]),
	}
}

// next returns one record following on from the previous ones.
func (g *generator) next() string {
	if g.malformed > 0 && g.rnd.Float64() < g.malformed {
		return fmt.Sprintf(`{"timestamp":"%s","event":"Docked",`, g.stamp())
	}

	if g.docked {
		g.docked = false
		return fmt.Sprintf(`{"timestamp":"%s","event":"Undocked","StationName":"Station %d"}`, g.stamp(), g.system)
	}

	switch g.rnd.Intn(4) {
	case 0:
		g.system = g.rnd.Intn(len(systems))
		s := systems[g.system]
		return fmt.Sprintf(`{"timestamp":"%s","event":"FSDJump","StarSystem":"%s","SystemAddress":%d,"StarPos":[%g,%g,%g],"JumpDist":%.3f}`,
			g.stamp(), s.name, s.address, s.pos[0], s.pos[1], s.pos[2], g.rnd.Float64()*50)
	case 1:
		g.docked = true
		return fmt.Sprintf(`{"timestamp":"%s","event":"Docked","StarSystem":"%s","StationName":"Station %d","StationType":"Coriolis","MarketID":%d}`,
			g.stamp(), systems[g.system].name, g.system, 3220000000+g.system)
	case 2:
		return fmt.Sprintf(`{"timestamp":"%s","event":"MaterialCollected","Category":"Raw","Name":"%s","Count":%d}`,
			g.stamp(), materials[g.rnd.Intn(len(materials))], 1+g.rnd.Intn(3))
	default:
		return fmt.Sprintf(`{"timestamp":"%s","event":"Music","MusicTrack":"Exploration"}`, g.stamp())
	}
}

func (g *generator) exitProgram() string {
	return fmt.Sprintf(`{"timestamp":"%s","event":"ExitProgram"}`, g.stamp())
}
