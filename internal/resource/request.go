package resource

// Req is one resource request entry (resource_req): a (def, value) pair
// owned by the requesting entity (job, reservation, or chunk). Requests
// are stored as a slice rather than the reference implementation's linked
// list per the spec's own DESIGN NOTES ("linear search is fine at these
// sizes and iteration cache behavior improves").
type Req struct {
	Def   *Def
	Value Value
}

// ReqList is an ordered collection of Req, value-compared by ReqListEqual.
type ReqList []Req

func (l ReqList) Find(defName string) (Req, bool) {
	for _, r := range l {
		if r.Def.Name == defName {
			return r, true
		}
	}
	return Req{}, false
}

func (l ReqList) Clone() ReqList {
	out := make(ReqList, len(l))
	copy(out, l)
	return out
}

// Equal reports whether two request lists are value-equal, optionally
// restricted to a DefSet: every request in a (after filtering) must have a
// matching request in b with an equal value, and vice versa (spec §3:
// "Lists are value-equal iff (after filtering by an optional definition
// set) every request matches both ways.").
func (l ReqList) Equal(other ReqList, filter DefSet) bool {
	af := l.filtered(filter)
	bf := other.filtered(filter)
	if len(af) != len(bf) {
		return false
	}
	for _, a := range af {
		b, ok := bf.Find(a.Def.Name)
		if !ok || !valueEqual(a.Value, b.Value) {
			return false
		}
	}
	for _, b := range bf {
		a, ok := af.Find(b.Def.Name)
		if !ok || !valueEqual(a.Value, b.Value) {
			return false
		}
	}
	return true
}

func (l ReqList) filtered(filter DefSet) ReqList {
	if filter == nil {
		return l
	}
	out := make(ReqList, 0, len(l))
	for _, r := range l {
		if filter.Contains(r.Def.Name) {
			out = append(out, r)
		}
	}
	return out
}

func valueEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindLong, KindFloat:
		return a.Num == b.Num
	case KindSize:
		return a.KB == b.KB
	case KindTime:
		return a.Sec == b.Sec
	case KindString:
		return a.Str == b.Str
	case KindStringArray:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if a.List[i] != b.List[i] {
				return false
			}
		}
		return true
	case KindBoolean:
		return a.Bool == b.Bool
	default:
		return false
	}
}
