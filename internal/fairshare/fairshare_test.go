package fairshare

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreePercentageSumsToParent(t *testing.T) {
	root := NewRoot("root", 0)
	a := root.AddChild("teamA", 30)
	b := root.AddChild("teamB", 70)
	a.AddChild("alice", 1)
	a.AddChild("bob", 1)
	b.AddChild("carol", 1)

	root.RecomputeTreePercentage()

	assert.InDelta(t, 1.0, root.TreePercentage, 1e-9)
	sum := a.TreePercentage + b.TreePercentage
	assert.InDelta(t, root.TreePercentage, sum, 1e-9)

	aliceBob := 0.0
	for _, c := range a.Children {
		aliceBob += c.TreePercentage
	}
	assert.InDelta(t, a.TreePercentage, aliceBob, 1e-9)
}

func TestDecayHalvesAndRollsUp(t *testing.T) {
	root := NewRoot("root", 0)
	a := root.AddChild("teamA", 1)
	alice := a.AddChild("alice", 1)
	bob := a.AddChild("bob", 1)
	alice.Usage = 100
	bob.Usage = 50

	root.Decay(0.5)

	assert.Equal(t, 50.0, alice.Usage)
	assert.Equal(t, 25.0, bob.Usage)
	assert.Equal(t, 75.0, a.Usage)
	assert.Equal(t, 75.0, root.Usage)
}

func TestUsageFileRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	decay := time.Unix(1700000000, 0)
	records := []UsageRecord{{Name: "alice", Usage: 12.5}, {Name: "bob", Usage: 0}}

	require.NoError(t, WriteUsageFile(&buf, decay, records))

	gotDecay, got, err := ReadUsageFile(&buf)
	require.NoError(t, err)
	assert.Equal(t, decay.Unix(), gotDecay.Unix())
	assert.Equal(t, records, got)
}
