package ipranges

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertMergesAdjacent(t *testing.T) {
	l := &List{}
	l.Insert(1)
	l.Insert(2)
	l.Insert(3)
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, Pair{Low: 1, Count: 2}, l.Pairs()[0])

	l.Insert(8)
	l.Insert(9)
	l.Insert(10)
	assert.Equal(t, 2, l.Len())

	l.Insert(11)
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, Pair{Low: 8, Count: 3}, l.Pairs()[1])
}

func TestInsertFusesGap(t *testing.T) {
	l := &List{}
	l.Insert(1)
	l.Insert(3)
	assert.Equal(t, 2, l.Len())

	l.Insert(2)
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, Pair{Low: 1, Count: 2}, l.Pairs()[0])
}

func TestDeleteSplitsInterior(t *testing.T) {
	l := &List{}
	for v := T(1); v <= 5; v++ {
		l.Insert(v)
	}
	assert.Equal(t, 1, l.Len())

	l.Delete(3)
	assert.Equal(t, 2, l.Len())
	assert.False(t, l.Contains(3))
	assert.True(t, l.Contains(2))
	assert.True(t, l.Contains(4))
}

func TestRandomInsertDeleteInvariant(t *testing.T) {
	l := &List{}
	inserted := map[T]bool{}
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		v := T(r.Intn(200))
		if r.Intn(2) == 0 {
			l.Insert(v)
			inserted[v] = true
		} else {
			l.Delete(v)
			delete(inserted, v)
		}
	}

	for v := T(0); v < 200; v++ {
		assert.Equal(t, inserted[v], l.Contains(v), "mismatch at %d", v)
	}

	// Pairs must stay sorted and disjoint.
	pairs := l.Pairs()
	for i := 1; i < len(pairs); i++ {
		assert.Less(t, pairs[i-1].Low+pairs[i-1].Count, pairs[i].Low)
	}
}
