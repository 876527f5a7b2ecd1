package ifl

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quillhpc/qsched/internal/wire"
)

// Client issues the application-level requests over an already
// handshaken wire.Channel. Every method that sends an
// asynchronous-with-ack request stamps a fresh correlation id and hands
// it back so the caller can match a later Ack; methods that wait
// synchronously read the Ack themselves.
type Client struct {
	ch   *wire.Channel
	user string
	log  zerolog.Logger
}

func NewClient(ch *wire.Channel, user string, log zerolog.Logger) *Client {
	return &Client{ch: ch, user: user, log: log.With().Str("component", "ifl").Logger()}
}

func (c *Client) send(payload []byte) error {
	return c.ch.Send(payload)
}

func (c *Client) recvAck() (Ack, error) {
	payload, err := c.ch.Recv()
	if err != nil {
		return Ack{}, fmt.Errorf("ifl: waiting for ack: %w", err)
	}
	return DecodeAck(payload)
}

// Authenticate negotiates the application-level auth/encryption method
// names, layered above the wire channel's own transport handshake.
func (c *Client) Authenticate(method, encryptMethod string, port uint64) error {
	data, err := EncodeAuthenticate(NewHeader(ReqAuthenticate, c.user), AuthenticateRequest{
		Method: method, EncryptMethod: encryptMethod, Port: port,
	})
	if err != nil {
		return fmt.Errorf("ifl: encode authenticate: %w", err)
	}
	return c.send(data)
}

func (c *Client) statRequest(typ RequestType, target string, attrs []string) ([]byte, error) {
	return EncodeStat(NewHeader(typ, c.user), StatRequest{Target: target, Attrs: attrs})
}

// RecvStatReply waits for and decodes the StatReply that follows a stat
// request. Every Stat*/SelStat call is answered by exactly one reply
// before the next request may be issued (spec §4.C).
func (c *Client) RecvStatReply() (StatReply, error) {
	payload, err := c.ch.Recv()
	if err != nil {
		return StatReply{}, fmt.Errorf("ifl: waiting for stat reply: %w", err)
	}
	return DecodeStatReply(payload)
}

func (c *Client) StatServer() error {
	data, err := c.statRequest(ReqStatServer, "", nil)
	if err != nil {
		return err
	}
	return c.send(data)
}

func (c *Client) StatQueue(name string) error {
	data, err := c.statRequest(ReqStatQueue, name, nil)
	if err != nil {
		return err
	}
	return c.send(data)
}

func (c *Client) StatNode(name string) error {
	data, err := c.statRequest(ReqStatNode, name, nil)
	if err != nil {
		return err
	}
	return c.send(data)
}

func (c *Client) StatResv(name string) error {
	data, err := c.statRequest(ReqStatResv, name, nil)
	if err != nil {
		return err
	}
	return c.send(data)
}

func (c *Client) StatSched() error {
	data, err := c.statRequest(ReqStatSched, "", nil)
	if err != nil {
		return err
	}
	return c.send(data)
}

// SelStat issues a stat-job request over exactly the attributes named
// (spec §4.C: "a selstat over jobs with exactly the attributes needed").
func (c *Client) SelStat(attrs []string) error {
	data, err := c.statRequest(ReqStatJob, "", attrs)
	if err != nil {
		return err
	}
	return c.send(data)
}

// RunJob runs jobID per mode. Sync waits for and returns the Ack;
// AsyncWithAck sends and returns the correlation id for the caller to
// match against a later Recv; Async fires and forgets.
func (c *Client) RunJob(jobID string, mode RunMode) (correlationID string, ack *Ack, err error) {
	if mode != RunAsync {
		correlationID = uuid.NewString()
	}
	data, err := EncodeRunJob(NewHeader(ReqRunJob, c.user), RunJobRequest{
		JobID: jobID, Mode: mode, CorrelationID: correlationID,
	})
	if err != nil {
		return "", nil, fmt.Errorf("ifl: encode run-job: %w", err)
	}
	if err := c.send(data); err != nil {
		return "", nil, err
	}
	if mode == RunSync {
		a, err := c.recvAck()
		if err != nil {
			return "", nil, err
		}
		return correlationID, &a, nil
	}
	return correlationID, nil, nil
}

func (c *Client) SigJob(jobID string, action SigAction) error {
	data, err := EncodeSigJob(NewHeader(ReqSigJob, c.user), SigJobRequest{JobID: jobID, Action: action})
	if err != nil {
		return fmt.Errorf("ifl: encode sig-job: %w", err)
	}
	return c.send(data)
}

func (c *Client) AlterJob(jobID string, attrs map[string]string) error {
	data, err := EncodeAlterJob(NewHeader(ReqAlterJob, c.user), AlterJobRequest{JobID: jobID, Attrs: attrs})
	if err != nil {
		return fmt.Errorf("ifl: encode alter-job: %w", err)
	}
	return c.send(data)
}

// ConfirmResv issues confirm-resv and waits for the server's Ack, since
// the cycle driver needs to know the confirmation was accepted before
// mirroring the allocation into the live universe (spec §4.J step 3).
func (c *Client) ConfirmResv(resvID, execVnode string, start time.Time, outcome string) (Ack, error) {
	data, err := EncodeConfirmResv(NewHeader(ReqConfirmResv, c.user), ConfirmResvRequest{
		ResvID: resvID, ExecVnode: execVnode, Start: start, Outcome: outcome,
	})
	if err != nil {
		return Ack{}, fmt.Errorf("ifl: encode confirm-resv: %w", err)
	}
	if err := c.send(data); err != nil {
		return Ack{}, err
	}
	return c.recvAck()
}

func (c *Client) PreemptJobs(jobIDs []string) error {
	data, err := EncodePreemptJobs(NewHeader(ReqPreemptJobs, c.user), PreemptJobsRequest{JobIDs: jobIDs})
	if err != nil {
		return fmt.Errorf("ifl: encode preempt-jobs: %w", err)
	}
	return c.send(data)
}
