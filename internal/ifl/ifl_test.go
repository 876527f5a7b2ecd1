package ifl

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillhpc/qsched/internal/wire"
)

func TestHeaderRoundTrip(t *testing.T) {
	data, err := EncodeStat(NewHeader(ReqStatNode, "scheduler"), StatRequest{Target: "n1"})
	require.NoError(t, err)

	h, req, err := DecodeStat(data)
	require.NoError(t, err)
	assert.Equal(t, ReqStatNode, h.Type)
	assert.Equal(t, "scheduler", h.User)
	assert.Equal(t, "n1", req.Target)
}

func TestAuthenticateRoundTrip(t *testing.T) {
	data, err := EncodeAuthenticate(NewHeader(ReqAuthenticate, "scheduler"), AuthenticateRequest{
		Method: "pbs_iff", EncryptMethod: "secretbox", Port: 15001,
	})
	require.NoError(t, err)
	h, req, err := DecodeAuthenticate(data)
	require.NoError(t, err)
	assert.Equal(t, ReqAuthenticate, h.Type)
	assert.Equal(t, "pbs_iff", req.Method)
	assert.Equal(t, "secretbox", req.EncryptMethod)
	assert.EqualValues(t, 15001, req.Port)
}

func TestSelStatRoundTrip(t *testing.T) {
	data, err := EncodeStat(NewHeader(ReqStatJob, "scheduler"), StatRequest{
		Attrs: []string{"Resource_List.ncpus", "job_state", "queue"},
	})
	require.NoError(t, err)
	_, req, err := DecodeStat(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"Resource_List.ncpus", "job_state", "queue"}, req.Attrs)
}

func TestRunJobRoundTrip(t *testing.T) {
	data, err := EncodeRunJob(NewHeader(ReqRunJob, "scheduler"), RunJobRequest{
		JobID: "123.server", Mode: RunAsyncWithAck, CorrelationID: "abc-123",
	})
	require.NoError(t, err)
	_, req, err := DecodeRunJob(data)
	require.NoError(t, err)
	assert.Equal(t, "123.server", req.JobID)
	assert.Equal(t, RunAsyncWithAck, req.Mode)
	assert.Equal(t, "abc-123", req.CorrelationID)
}

func TestSigJobRoundTrip(t *testing.T) {
	data, err := EncodeSigJob(NewHeader(ReqSigJob, "scheduler"), SigJobRequest{
		JobID: "45.server", Action: SigAdminSuspend,
	})
	require.NoError(t, err)
	_, req, err := DecodeSigJob(data)
	require.NoError(t, err)
	assert.Equal(t, "45.server", req.JobID)
	assert.Equal(t, SigAdminSuspend, req.Action)
}

func TestAlterJobRoundTrip(t *testing.T) {
	data, err := EncodeAlterJob(NewHeader(ReqAlterJob, "scheduler"), AlterJobRequest{
		JobID: "7.server", Attrs: map[string]string{"Resource_List.walltime": "02:00:00"},
	})
	require.NoError(t, err)
	_, req, err := DecodeAlterJob(data)
	require.NoError(t, err)
	assert.Equal(t, "02:00:00", req.Attrs["Resource_List.walltime"])
}

func TestConfirmResvRoundTrip(t *testing.T) {
	start := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	data, err := EncodeConfirmResv(NewHeader(ReqConfirmResv, "scheduler"), ConfirmResvRequest{
		ResvID: "R1.server", ExecVnode: "(n1:ncpus=8)+(n2:ncpus=8)", Start: start, Outcome: "SUCCESS:partition=default",
	})
	require.NoError(t, err)
	_, req, err := DecodeConfirmResv(data)
	require.NoError(t, err)
	assert.Equal(t, "(n1:ncpus=8)+(n2:ncpus=8)", req.ExecVnode)
	assert.True(t, start.Equal(req.Start))
	assert.Equal(t, "SUCCESS:partition=default", req.Outcome)
}

func TestPreemptJobsRoundTrip(t *testing.T) {
	data, err := EncodePreemptJobs(NewHeader(ReqPreemptJobs, "scheduler"), PreemptJobsRequest{
		JobIDs: []string{"1.server", "2.server"},
	})
	require.NoError(t, err)
	_, req, err := DecodePreemptJobs(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.server", "2.server"}, req.JobIDs)
}

func TestAckRoundTrip(t *testing.T) {
	data, err := EncodeAck(Ack{CorrelationID: "xyz", Success: true, Message: "started"})
	require.NoError(t, err)
	a, err := DecodeAck(data)
	require.NoError(t, err)
	assert.Equal(t, "xyz", a.CorrelationID)
	assert.True(t, a.Success)
	assert.Equal(t, "started", a.Message)
}

// TestClientRunJobSyncOverChannel exercises a full Client.RunJob(sync)
// call against a fake server goroutine that decodes the request and
// replies with an Ack, over a real wire.Channel handshake.
func TestClientRunJobSyncOverChannel(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	clientCh := wire.NewChannel(clientConn, wire.CleartextMethod{}, wire.CleartextMethod{})
	serverCh := wire.NewChannel(serverConn, wire.CleartextMethod{}, wire.CleartextMethod{})

	handshakeDone := make(chan error, 1)
	go func() { handshakeDone <- serverCh.ServerHandshake(wire.ConnService, "") }()
	require.NoError(t, clientCh.ClientHandshake(wire.ConnService, ""))
	require.NoError(t, <-handshakeDone)

	serverDone := make(chan error, 1)
	go func() {
		payload, err := serverCh.Recv()
		if err != nil {
			serverDone <- err
			return
		}
		_, req, err := DecodeRunJob(payload)
		if err != nil {
			serverDone <- err
			return
		}
		ack, err := EncodeAck(Ack{CorrelationID: req.CorrelationID, Success: true, Message: "run started"})
		if err != nil {
			serverDone <- err
			return
		}
		serverDone <- serverCh.Send(ack)
	}()

	client := NewClient(clientCh, "scheduler", zerolog.Nop())
	_, ack, err := client.RunJob("99.server", RunSync)
	require.NoError(t, err)
	require.NoError(t, <-serverDone)
	require.NotNil(t, ack)
	assert.True(t, ack.Success)
	assert.Equal(t, "run started", ack.Message)
}
