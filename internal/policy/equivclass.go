package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quillhpc/qsched/internal/resource"
	"github.com/quillhpc/qsched/internal/uni"
)

// BuildEquivClasses clusters jobs that will have an identical placement
// outcome (spec §4.H): same place, queue, user/group/project, and the
// values of the resources named in classBy. Jobs sharing a key can skip
// redundant placement attempts once one member's outcome is known.
func BuildEquivClasses(u *uni.Universe, classBy resource.DefSet) []*uni.EquivClass {
	byKey := map[string]*uni.EquivClass{}
	var order []string

	for _, rr := range u.Jobs {
		if !rr.IsJob() || rr.Select == nil || rr.Place == nil {
			continue
		}
		key := equivKey(rr, classBy)
		ec, ok := byKey[key]
		if !ok {
			ec = &uni.EquivClass{Key: key}
			byKey[key] = ec
			order = append(order, key)
		}
		ec.Members = append(ec.Members, rr.ID)
	}

	sort.Strings(order)
	out := make([]*uni.EquivClass, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out
}

func equivKey(rr *uni.ResResv, classBy resource.DefSet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "place=%s/%s/%s|q=%s|u=%s|g=%s|p=%s",
		rr.Place.Arrangement, rr.Place.Sharing, rr.Place.Group,
		rr.Job.Queue, rr.Job.Owner, rr.Job.Group, rr.Job.Project)

	total := rr.TotalRequest()
	names := make([]string, 0, len(total))
	byName := map[string]resource.Req{}
	for _, req := range total {
		if classBy != nil && !classBy.Contains(req.Def.Name) {
			continue
		}
		names = append(names, req.Def.Name)
		byName[req.Def.Name] = req
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(&b, "|%s=%s", n, byName[n].Value.String())
	}
	return b.String()
}

// ApplyClassResult propagates a can_not_run verdict reached for one member
// of an equivalence class to every other member, so the remainder inherit
// the result without retrying placement (spec §4.H).
func ApplyClassResult(u *uni.Universe, ec *uni.EquivClass, canNeverRun bool) {
	for _, id := range ec.Members {
		rr, ok := u.JobByID(id)
		if !ok {
			continue
		}
		rr.CanNotRun = true
		if canNeverRun {
			rr.CanNeverRun = true
		}
	}
}
