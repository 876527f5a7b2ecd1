package uni

import (
	"time"

	"github.com/quillhpc/qsched/internal/resource"
	"github.com/quillhpc/qsched/internal/schderr"
)

// Kind tags a ResResv as carrying job or reservation data. Exactly one of
// Job/Resv is non-nil, matching the Kind (spec §3, §9 DESIGN NOTES:
// "replace is_job/is_resv booleans with a tagged-variant enum").
type Kind int

const (
	KindJob Kind = iota
	KindResv
)

// ResResv is the resource_resv superclass: the polymorphic record carrying
// whichever of job/reservation applies, plus everything placement needs
// regardless of kind.
type ResResv struct {
	ID   string
	Kind Kind

	Select *SelSpec
	Place  *Place

	// Execution select: rewritten after placement to pin specific nodes,
	// so retry/restart place on the same vnodes (spec §4.E step 5).
	ExecSelect *SelSpec

	Nodes  []int // indices into Universe.Nodes actually chosen
	NSpecs []NSpec

	Start        time.Time
	End          time.Time
	Duration     time.Duration
	HardDuration time.Duration
	MinDuration  time.Duration // for shrink-to-fit

	CanNotRun   bool
	CanNeverRun bool
	CanNotFit   bool
	IsInvalid   bool
	IsPeerOb    bool

	SeqRank int

	RunEventID int // index into Universe.Events, 0 meaning "none" via HasRunEvent
	EndEventID int
	HasRunEvent bool
	HasEndEvent bool

	Errors schderr.List

	Job  *JobData
	Resv *ResvData
}

func (r *ResResv) IsJob() bool  { return r.Kind == KindJob }
func (r *ResResv) IsResv() bool { return r.Kind == KindResv }

// Runnable reports whether this resource_resv is a candidate for
// is_ok_to_run consideration this cycle: the cycle driver's main loop calls
// it as the first gate before checking run limits and placement.
func (r *ResResv) Runnable() bool {
	if r.CanNeverRun || r.IsInvalid {
		return false
	}
	if r.IsJob() && (r.Job.State.Has(JobHeld) || r.Job.State.Has(JobRunning) || r.Job.State.Has(JobSuspended)) {
		return false
	}
	return true
}

// TotalRequest flattens the select spec into one resource_req list summed
// across chunks, used for quick server/queue-level limit checks.
func (r *ResResv) TotalRequest() resource.ReqList {
	if r.Select == nil {
		return nil
	}
	totals := map[string]resource.Req{}
	for _, c := range r.Select.Chunks {
		for _, req := range c.Reqs {
			cur, ok := totals[req.Def.Name]
			if !ok {
				cur = resource.Req{Def: req.Def, Value: req.Value}
				if req.Def.Kind.Consumable() {
					cur.Value = zeroOf(req.Def.Kind)
				}
			}
			if req.Def.Kind.Consumable() {
				cur.Value = addAmount(cur.Value, req.Value.Amount()*float64(c.Count))
			}
			totals[req.Def.Name] = cur
		}
	}
	out := make(resource.ReqList, 0, len(totals))
	for _, v := range totals {
		out = append(out, v)
	}
	return out
}

func zeroOf(k resource.Kind) resource.Value {
	switch k {
	case resource.KindSize:
		return resource.Size(0)
	case resource.KindTime:
		return resource.Time(0)
	case resource.KindFloat:
		return resource.Float(0)
	default:
		return resource.Long(0)
	}
}

func addAmount(v resource.Value, amount float64) resource.Value {
	switch v.Kind {
	case resource.KindSize:
		return resource.Size(v.KB + int64(amount))
	case resource.KindTime:
		return resource.Time(v.Sec + int64(amount))
	case resource.KindFloat:
		return resource.Float(v.Num + amount)
	default:
		return resource.Long(v.Num + amount)
	}
}
