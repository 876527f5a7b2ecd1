package resource

import (
	"strings"

	"golang.org/x/text/cases"
)

var hostFold = cases.Fold()

// Available is a node or queue's advertised resource (schd_resource):
// its definition, what it advertises, what is currently assigned against
// it, and an optional indirect redirect (spec §4.D: "a resource may name
// another vnode's resource of the same name and defer entirely to it").
type Available struct {
	Def      *Def
	Avail    Value
	Assigned Value
	Indirect *Available
}

// resolve follows an Indirect chain to the resource actually backing this
// one's accounting, per spec §4.D. A self-referential or cyclic chain
// resolves to the last resource visited rather than looping forever.
func (a *Available) resolve() *Available {
	seen := map[*Available]bool{}
	cur := a
	for cur.Indirect != nil && !seen[cur] {
		seen[cur] = true
		cur = cur.Indirect
	}
	return cur
}

// Remaining returns the consumable amount still available: avail minus
// assigned on the resolved (indirect-following) resource, floored at zero
// per spec §4.D.
func (a *Available) Remaining() float64 {
	r := a.resolve()
	rem := r.Avail.Amount() - r.Assigned.Amount()
	if rem < 0 {
		return 0
	}
	return rem
}

// CanSatisfy reports whether this resource can satisfy req, per kind:
//   - consumable: req.Value.Amount() <= Remaining()
//   - boolean: tri-valued truth table match (§4.D)
//   - string/string_array: exact match, case-insensitive for "host" and "vnode"
func (a *Available) CanSatisfy(req Value) bool {
	switch a.Def.Kind {
	case KindLong, KindFloat, KindSize, KindTime:
		return req.Amount() <= a.Remaining()
	case KindBoolean:
		return satisfiesBoolean(a.resolve().Avail.Bool, req.Bool)
	case KindString:
		return stringMatches(a.Def.Name, a.resolve().Avail.Str, req.Str)
	case KindStringArray:
		return stringArrayMatches(a.Def.Name, a.resolve().Avail.List, req.Str)
	default:
		return false
	}
}

// satisfiesBoolean implements the tri-valued boolean match: an available
// resource of TriEither satisfies any request; otherwise the request must
// equal the available value, and TriEither requests are satisfied by
// either available value.
func satisfiesBoolean(avail, req TriBool) bool {
	if avail == TriEither || req == TriEither {
		return true
	}
	return avail == req
}

func stringMatches(defName, avail, req string) bool {
	if strings.EqualFold(defName, "host") || strings.EqualFold(defName, "vnode") {
		return hostFold.String(avail) == hostFold.String(req)
	}
	return avail == req
}

func stringArrayMatches(defName string, avail []string, req string) bool {
	fold := strings.EqualFold(defName, "host") || strings.EqualFold(defName, "vnode")
	for _, v := range avail {
		if fold {
			if hostFold.String(v) == hostFold.String(req) {
				return true
			}
		} else if v == req {
			return true
		}
	}
	return false
}

// Assign adds amount to the resolved resource's Assigned value, for
// consumable kinds; a no-op for non-consumable kinds, which have no
// assignment accounting.
func (a *Available) Assign(amount float64) {
	if !a.Def.Kind.Consumable() {
		return
	}
	r := a.resolve()
	switch r.Def.Kind {
	case KindLong, KindFloat:
		r.Assigned.Num += amount
	case KindSize:
		r.Assigned.KB += int64(amount)
	case KindTime:
		r.Assigned.Sec += int64(amount)
	}
}

// Release subtracts amount from the resolved resource's Assigned value,
// floored at zero.
func (a *Available) Release(amount float64) {
	if !a.Def.Kind.Consumable() {
		return
	}
	r := a.resolve()
	switch r.Def.Kind {
	case KindLong, KindFloat:
		r.Assigned.Num -= amount
		if r.Assigned.Num < 0 {
			r.Assigned.Num = 0
		}
	case KindSize:
		r.Assigned.KB -= int64(amount)
		if r.Assigned.KB < 0 {
			r.Assigned.KB = 0
		}
	case KindTime:
		r.Assigned.Sec -= int64(amount)
		if r.Assigned.Sec < 0 {
			r.Assigned.Sec = 0
		}
	}
}

// Clone returns a deep copy, breaking the Indirect link only at the
// top level (the caller is responsible for re-wiring indirect chains
// across a cloned universe; see internal/uni).
func (a *Available) Clone() *Available {
	cp := *a
	cp.Indirect = nil
	return &cp
}
