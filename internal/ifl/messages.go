package ifl

import (
	"bufio"
	"bytes"
	"fmt"
	"time"

	"github.com/quillhpc/qsched/internal/codec"
)

// AuthenticateRequest negotiates the user-level authentication and
// (optional) encryption method names and port, layered on top of the wire
// channel's own transport handshake (spec §6: "authenticate request
// (method name, optional encryption method name, port)").
type AuthenticateRequest struct {
	Method        string
	EncryptMethod string
	Port          uint64
}

func EncodeAuthenticate(h Header, req AuthenticateRequest) ([]byte, error) {
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	if err := h.Encode(w); err != nil {
		return nil, err
	}
	if err := w.WriteCountedString(req.Method); err != nil {
		return nil, err
	}
	if err := w.WriteCountedString(req.EncryptMethod); err != nil {
		return nil, err
	}
	if err := w.WriteUint(req.Port); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeAuthenticate(data []byte) (Header, AuthenticateRequest, error) {
	r := codec.NewReader(bufio.NewReader(bytes.NewReader(data)))
	h, err := DecodeHeader(r)
	if err != nil {
		return h, AuthenticateRequest{}, err
	}
	var req AuthenticateRequest
	if req.Method, err = r.ReadCountedString(); err != nil {
		return h, req, err
	}
	if req.EncryptMethod, err = r.ReadCountedString(); err != nil {
		return h, req, err
	}
	if req.Port, err = r.ReadUint(); err != nil {
		return h, req, err
	}
	return h, req, nil
}

// StatRequest asks for one or all objects of a kind determined by the
// header's RequestType (stat-server carries no target; stat-queue(*),
// stat-node(*), stat-resv(*) use Target == "" to mean "all"; stat-job
// (selstat) carries an attribute filter list instead of a single target).
type StatRequest struct {
	Target    string
	Attrs     []string // selstat attribute filter, spec §4.C "exactly the attributes needed"
}

func EncodeStat(h Header, req StatRequest) ([]byte, error) {
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	if err := h.Encode(w); err != nil {
		return nil, err
	}
	if err := w.WriteCountedString(req.Target); err != nil {
		return nil, err
	}
	if err := writeStringList(w, req.Attrs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeStat(data []byte) (Header, StatRequest, error) {
	r := codec.NewReader(bufio.NewReader(bytes.NewReader(data)))
	h, err := DecodeHeader(r)
	if err != nil {
		return h, StatRequest{}, err
	}
	var req StatRequest
	if req.Target, err = r.ReadCountedString(); err != nil {
		return h, req, err
	}
	if req.Attrs, err = readStringList(r); err != nil {
		return h, req, err
	}
	return h, req, nil
}

// RunJobRequest runs a job, synchronously, asynchronously, or
// asynchronously with a correlation id the caller can match an Ack
// against (spec §6, SPEC_FULL.md E2: google/uuid correlation tags).
type RunJobRequest struct {
	JobID         string
	Mode          RunMode
	CorrelationID string
}

func EncodeRunJob(h Header, req RunJobRequest) ([]byte, error) {
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	if err := h.Encode(w); err != nil {
		return nil, err
	}
	if err := w.WriteCountedString(req.JobID); err != nil {
		return nil, err
	}
	if err := w.WriteUint(uint64(req.Mode)); err != nil {
		return nil, err
	}
	if err := w.WriteCountedString(req.CorrelationID); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeRunJob(data []byte) (Header, RunJobRequest, error) {
	r := codec.NewReader(bufio.NewReader(bytes.NewReader(data)))
	h, err := DecodeHeader(r)
	if err != nil {
		return h, RunJobRequest{}, err
	}
	var req RunJobRequest
	if req.JobID, err = r.ReadCountedString(); err != nil {
		return h, req, err
	}
	mode, err := r.ReadUint()
	if err != nil {
		return h, req, err
	}
	req.Mode = RunMode(mode)
	if req.CorrelationID, err = r.ReadCountedString(); err != nil {
		return h, req, err
	}
	return h, req, nil
}

// SigJobRequest delivers one of the sig-job actions to a running job.
type SigJobRequest struct {
	JobID  string
	Action SigAction
}

func EncodeSigJob(h Header, req SigJobRequest) ([]byte, error) {
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	if err := h.Encode(w); err != nil {
		return nil, err
	}
	if err := w.WriteCountedString(req.JobID); err != nil {
		return nil, err
	}
	if err := w.WriteUint(uint64(req.Action)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeSigJob(data []byte) (Header, SigJobRequest, error) {
	r := codec.NewReader(bufio.NewReader(bytes.NewReader(data)))
	h, err := DecodeHeader(r)
	if err != nil {
		return h, SigJobRequest{}, err
	}
	var req SigJobRequest
	if req.JobID, err = r.ReadCountedString(); err != nil {
		return h, req, err
	}
	action, err := r.ReadUint()
	if err != nil {
		return h, req, err
	}
	req.Action = SigAction(action)
	return h, req, nil
}

// AlterJobRequest carries an asynchronous attribute update (spec §6:
// "alter-job (asynchronous; updated attribute list)").
type AlterJobRequest struct {
	JobID string
	Attrs map[string]string
}

func EncodeAlterJob(h Header, req AlterJobRequest) ([]byte, error) {
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	if err := h.Encode(w); err != nil {
		return nil, err
	}
	if err := w.WriteCountedString(req.JobID); err != nil {
		return nil, err
	}
	if err := writeStringMap(w, req.Attrs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeAlterJob(data []byte) (Header, AlterJobRequest, error) {
	r := codec.NewReader(bufio.NewReader(bytes.NewReader(data)))
	h, err := DecodeHeader(r)
	if err != nil {
		return h, AlterJobRequest{}, err
	}
	var req AlterJobRequest
	if req.JobID, err = r.ReadCountedString(); err != nil {
		return h, req, err
	}
	if req.Attrs, err = readStringMap(r); err != nil {
		return h, req, err
	}
	return h, req, nil
}

// ConfirmResvRequest reports a reservation confirmation decision (spec
// §6: "confirm-resv (execvnode sequence, start time, outcome string
// SUCCESS:partition=<p> or FAIL)").
type ConfirmResvRequest struct {
	ResvID    string
	ExecVnode string
	Start     time.Time
	Outcome   string
}

func EncodeConfirmResv(h Header, req ConfirmResvRequest) ([]byte, error) {
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	if err := h.Encode(w); err != nil {
		return nil, err
	}
	if err := w.WriteCountedString(req.ResvID); err != nil {
		return nil, err
	}
	if err := w.WriteCountedString(req.ExecVnode); err != nil {
		return nil, err
	}
	if err := w.WriteInt(req.Start.Unix()); err != nil {
		return nil, err
	}
	if err := w.WriteCountedString(req.Outcome); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeConfirmResv(data []byte) (Header, ConfirmResvRequest, error) {
	r := codec.NewReader(bufio.NewReader(bytes.NewReader(data)))
	h, err := DecodeHeader(r)
	if err != nil {
		return h, ConfirmResvRequest{}, err
	}
	var req ConfirmResvRequest
	if req.ResvID, err = r.ReadCountedString(); err != nil {
		return h, req, err
	}
	if req.ExecVnode, err = r.ReadCountedString(); err != nil {
		return h, req, err
	}
	startSec, err := r.ReadInt()
	if err != nil {
		return h, req, err
	}
	req.Start = time.Unix(startSec, 0).UTC()
	if req.Outcome, err = r.ReadCountedString(); err != nil {
		return h, req, err
	}
	return h, req, nil
}

// PreemptJobsRequest lists the jobs the server should preempt (spec §6:
// "preempt-jobs (list of job ids)").
type PreemptJobsRequest struct {
	JobIDs []string
}

func EncodePreemptJobs(h Header, req PreemptJobsRequest) ([]byte, error) {
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	if err := h.Encode(w); err != nil {
		return nil, err
	}
	if err := writeStringList(w, req.JobIDs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodePreemptJobs(data []byte) (Header, PreemptJobsRequest, error) {
	r := codec.NewReader(bufio.NewReader(bytes.NewReader(data)))
	h, err := DecodeHeader(r)
	if err != nil {
		return h, PreemptJobsRequest{}, err
	}
	var req PreemptJobsRequest
	if req.JobIDs, err = readStringList(r); err != nil {
		return h, req, err
	}
	return h, req, nil
}

// StatObject is one object's worth of a batch-status reply: a name plus an
// unordered attribute-name/value map, mirroring struct batch_status's
// (name, attrl list) pairs.
type StatObject struct {
	Name  string
	Attrs map[string]string
}

// StatReply is the full reply to a stat-server/stat-queue(*)/stat-node(*)/
// stat-resv(*)/selstat request: zero or more StatObjects (a stat-server
// reply always carries exactly one, with an empty Name).
type StatReply struct {
	Objects []StatObject
}

func EncodeStatReply(reply StatReply) ([]byte, error) {
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	if err := w.WriteUint(uint64(len(reply.Objects))); err != nil {
		return nil, err
	}
	for _, obj := range reply.Objects {
		if err := w.WriteCountedString(obj.Name); err != nil {
			return nil, err
		}
		if err := writeStringMap(w, obj.Attrs); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func DecodeStatReply(data []byte) (StatReply, error) {
	r := codec.NewReader(bufio.NewReader(bytes.NewReader(data)))
	n, err := r.ReadUint()
	if err != nil {
		return StatReply{}, err
	}
	reply := StatReply{Objects: make([]StatObject, 0, n)}
	for i := uint64(0); i < n; i++ {
		name, err := r.ReadCountedString()
		if err != nil {
			return StatReply{}, fmt.Errorf("ifl: reading stat reply object %d name: %w", i, err)
		}
		attrs, err := readStringMap(r)
		if err != nil {
			return StatReply{}, fmt.Errorf("ifl: reading stat reply object %d attrs: %w", i, err)
		}
		reply.Objects = append(reply.Objects, StatObject{Name: name, Attrs: attrs})
	}
	return reply, nil
}

// Ack is the asynchronous-with-ack reply, matched back to its request by
// CorrelationID.
type Ack struct {
	CorrelationID string
	Success       bool
	Message       string
}

func EncodeAck(a Ack) ([]byte, error) {
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	if err := w.WriteCountedString(a.CorrelationID); err != nil {
		return nil, err
	}
	success := uint64(0)
	if a.Success {
		success = 1
	}
	if err := w.WriteUint(success); err != nil {
		return nil, err
	}
	if err := w.WriteCountedString(a.Message); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeAck(data []byte) (Ack, error) {
	r := codec.NewReader(bufio.NewReader(bytes.NewReader(data)))
	var a Ack
	var err error
	if a.CorrelationID, err = r.ReadCountedString(); err != nil {
		return a, err
	}
	success, err := r.ReadUint()
	if err != nil {
		return a, err
	}
	a.Success = success != 0
	if a.Message, err = r.ReadCountedString(); err != nil {
		return a, err
	}
	return a, nil
}

func writeStringList(w *codec.Writer, items []string) error {
	if err := w.WriteUint(uint64(len(items))); err != nil {
		return err
	}
	for _, s := range items {
		if err := w.WriteCountedString(s); err != nil {
			return err
		}
	}
	return nil
}

func readStringList(r *codec.Reader) ([]string, error) {
	n, err := r.ReadUint()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		s, err := r.ReadCountedString()
		if err != nil {
			return nil, fmt.Errorf("ifl: reading string list element %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func writeStringMap(w *codec.Writer, m map[string]string) error {
	if err := w.WriteUint(uint64(len(m))); err != nil {
		return err
	}
	for k, v := range m {
		if err := w.WriteCountedString(k); err != nil {
			return err
		}
		if err := w.WriteCountedString(v); err != nil {
			return err
		}
	}
	return nil
}

func readStringMap(r *codec.Reader) (map[string]string, error) {
	n, err := r.ReadUint()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, n)
	for i := uint64(0); i < n; i++ {
		k, err := r.ReadCountedString()
		if err != nil {
			return nil, fmt.Errorf("ifl: reading map key %d: %w", i, err)
		}
		v, err := r.ReadCountedString()
		if err != nil {
			return nil, fmt.Errorf("ifl: reading map value %d: %w", i, err)
		}
		out[k] = v
	}
	return out, nil
}
