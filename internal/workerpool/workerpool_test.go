package workerpool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformInline(t *testing.T) {
	p := New(1)
	in := []int{1, 2, 3, 4}
	out, err := Transform(p, in, func(v int) (int, error) { return v * v, nil })
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 9, 16}, out)
}

func TestTransformParallel(t *testing.T) {
	p := New(4)
	in := make([]int, 1000)
	for i := range in {
		in[i] = i
	}
	out, err := Transform(p, in, func(v int) (int, error) { return v + 1, nil })
	require.NoError(t, err)
	for i, v := range out {
		assert.Equal(t, in[i]+1, v)
	}
}

func TestTransformAbortsOnError(t *testing.T) {
	p := New(4)
	in := make([]int, 100)
	for i := range in {
		in[i] = i
	}
	out, err := Transform(p, in, func(v int) (int, error) {
		if v == 50 {
			return 0, errors.New("boom")
		}
		return v, nil
	})
	assert.Error(t, err)
	assert.Nil(t, out)
}
