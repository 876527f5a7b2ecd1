package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetDeleteEstimate(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	e := Estimate{JobID: "123.server", EstimatedAt: time.Now(), Start: time.Now().Add(time.Hour), ExecVnode: "(n1:ncpus=4)", Reason: "INSUFFICIENT_RESOURCE"}
	require.NoError(t, s.PutEstimate(e))

	got, found, err := s.GetEstimate("123.server")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, e.ExecVnode, got.ExecVnode)

	require.NoError(t, s.DeleteEstimate("123.server"))
	_, found, err = s.GetEstimate("123.server")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPutEstimatesBatchAndList(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.PutEstimates([]Estimate{
		{JobID: "1.server", ExecVnode: "(n1:ncpus=1)"},
		{JobID: "2.server", ExecVnode: "(n2:ncpus=2)"},
	}))

	all, err := s.ListEstimates()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetEstimateMissingNotFound(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, found, err := s.GetEstimate("missing.server")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestReopenPersistsAcrossProcesses(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s1.PutEstimate(Estimate{JobID: "7.server", ExecVnode: "(n1:ncpus=8)"}))
	require.NoError(t, s1.Close())

	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()

	got, found, err := s2.GetEstimate("7.server")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "(n1:ncpus=8)", got.ExecVnode)
}
