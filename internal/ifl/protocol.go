// Package ifl implements thin wrappers over the wire channel and typed
// value codec for the scheduler's application-level requests to the
// server (spec §6 "External Interfaces" / libifl DIS_encode/DIS_decode):
// authenticate, stat-*, run-job, sig-job, alter-job, confirm-resv, and
// preempt-jobs. Every request starts with a fixed header (protocol type,
// protocol version, request type, user) followed by type-specific fields.
package ifl

import (
	"github.com/quillhpc/qsched/internal/codec"
)

// ProtocolType and ProtocolVersion identify the application protocol
// carried inside a wire.PacketApplication / AUTH_ENCRYPTED_DATA payload,
// distinct from the wire channel's own framing version ("PKTV1").
const (
	ProtocolType    = 2
	ProtocolVersion = 1
)

// RequestType tags the kind of application request (spec §6).
type RequestType uint64

const (
	ReqAuthenticate RequestType = iota + 1
	ReqStatServer
	ReqStatQueue
	ReqStatNode
	ReqStatResv
	ReqStatSched
	ReqStatJob
	ReqRunJob
	ReqSigJob
	ReqAlterJob
	ReqConfirmResv
	ReqPreemptJobs
)

func (t RequestType) String() string {
	switch t {
	case ReqAuthenticate:
		return "authenticate"
	case ReqStatServer:
		return "stat-server"
	case ReqStatQueue:
		return "stat-queue"
	case ReqStatNode:
		return "stat-node"
	case ReqStatResv:
		return "stat-resv"
	case ReqStatSched:
		return "stat-sched"
	case ReqStatJob:
		return "stat-job"
	case ReqRunJob:
		return "run-job"
	case ReqSigJob:
		return "sig-job"
	case ReqAlterJob:
		return "alter-job"
	case ReqConfirmResv:
		return "confirm-resv"
	case ReqPreemptJobs:
		return "preempt-jobs"
	default:
		return "unknown"
	}
}

// RunMode distinguishes how a run-job request expects to be acknowledged
// (spec §6: "run-job (synchronous, asynchronous, asynchronous-with-ack)").
type RunMode int

const (
	RunSync RunMode = iota
	RunAsync
	RunAsyncWithAck
)

// SigAction is one of the sig-job actions (spec §6).
type SigAction int

const (
	SigSuspend SigAction = iota
	SigResume
	SigAdminSuspend
	SigAdminResume
	SigTermJob
	SigRerun
)

func (a SigAction) String() string {
	switch a {
	case SigSuspend:
		return "suspend"
	case SigResume:
		return "resume"
	case SigAdminSuspend:
		return "admin-suspend"
	case SigAdminResume:
		return "admin-resume"
	case SigTermJob:
		return "TermJob"
	case SigRerun:
		return "Rerun"
	default:
		return "unknown"
	}
}

// Header is the fixed preamble of every request (spec §6: "a header
// (protocol type, protocol version, request type, user)").
type Header struct {
	ProtocolType    uint64
	ProtocolVersion uint64
	Type            RequestType
	User            string
}

func (h Header) Encode(w *codec.Writer) error {
	if err := w.WriteUint(h.ProtocolType); err != nil {
		return err
	}
	if err := w.WriteUint(h.ProtocolVersion); err != nil {
		return err
	}
	if err := w.WriteUint(uint64(h.Type)); err != nil {
		return err
	}
	return w.WriteCountedString(h.User)
}

func DecodeHeader(r *codec.Reader) (Header, error) {
	var h Header
	var err error
	if h.ProtocolType, err = r.ReadUint(); err != nil {
		return h, err
	}
	if h.ProtocolVersion, err = r.ReadUint(); err != nil {
		return h, err
	}
	typ, err := r.ReadUint()
	if err != nil {
		return h, err
	}
	h.Type = RequestType(typ)
	if h.User, err = r.ReadCountedString(); err != nil {
		return h, err
	}
	return h, nil
}

// NewHeader builds a header for the current protocol, stamped with user.
func NewHeader(typ RequestType, user string) Header {
	return Header{ProtocolType: ProtocolType, ProtocolVersion: ProtocolVersion, Type: typ, User: user}
}
