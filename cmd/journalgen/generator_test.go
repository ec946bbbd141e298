package main

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
)

func TestGeneratorProducesValidRecords(t *testing.T) {
	g := newGenerator(rand.New(rand.NewSource(1)), 0)

	lines := append(g.header(), g.exitProgram())
	for range 200 {
		lines = append(lines, g.next())
	}

	for _, line := range lines {
		res := journal.Parse([]byte(line))
		require.NoError(t, res.Err, line)
		assert.False(t, res.Event.IsNull(), line)
	}
}

func TestGeneratorTimestampsIncrease(t *testing.T) {
	g := newGenerator(rand.New(rand.NewSource(2)), 0)

	prev := journal.Parse([]byte(g.header()[0])).Event.Timestamp
	for range 50 {
		ts := journal.Parse([]byte(g.next())).Event.Timestamp
		assert.True(t, ts.After(prev), "%s is not after %s", ts, prev)
		prev = ts
	}
}

func TestGeneratorMalformed(t *testing.T) {
	g := newGenerator(rand.New(rand.NewSource(3)), 1)

	for range 10 {
		assert.Error(t, journal.Parse([]byte(g.next())).Err)
	}
}
