package resource

import (
	"fmt"
	"strconv"
	"strings"
)

// TriBool is a resource.Def's KindBoolean availability, which spec §3 calls
// "tri-valued": true, false, or true-or-false (matches any request).
type TriBool int

const (
	TriFalse TriBool = iota
	TriTrue
	TriEither
)

// Value is the exhaustive, Kind-tagged union backing both a request's
// value and a resource's available/assigned quantity. Exactly one field
// is meaningful, selected by Kind; callers switch on Kind rather than
// testing fields, so adding a Kind without updating every switch is a
// compile error at every call site that uses an exhaustive switch.
type Value struct {
	Kind Kind

	Num  float64  // KindLong, KindFloat (amount)
	KB   int64    // KindSize, stored normalized to kb per spec §4.D
	Sec  int64    // KindTime, stored in seconds
	Str  string   // KindString
	List []string // KindStringArray
	Bool TriBool  // KindBoolean
}

func Long(v float64) Value       { return Value{Kind: KindLong, Num: v} }
func Float(v float64) Value      { return Value{Kind: KindFloat, Num: v} }
func Size(kb int64) Value        { return Value{Kind: KindSize, KB: kb} }
func Time(sec int64) Value       { return Value{Kind: KindTime, Sec: sec} }
func String(s string) Value      { return Value{Kind: KindString, Str: s} }
func StringArray(l []string) Value {
	return Value{Kind: KindStringArray, List: l}
}
func Boolean(b TriBool) Value { return Value{Kind: KindBoolean, Bool: b} }

// Amount returns the value as a float64 "amount" for consumable kinds, the
// unit the spec's resource_req.amount field uses (sizes in kb, times in
// seconds).
func (v Value) Amount() float64 {
	switch v.Kind {
	case KindLong, KindFloat:
		return v.Num
	case KindSize:
		return float64(v.KB)
	case KindTime:
		return float64(v.Sec)
	default:
		return 0
	}
}

// String implements fmt.Stringer for logging/debugging.
func (v Value) String() string {
	switch v.Kind {
	case KindLong:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindFloat:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindSize:
		return FormatSize(v.KB)
	case KindTime:
		return FormatTime(v.Sec)
	case KindString:
		return v.Str
	case KindStringArray:
		return strings.Join(v.List, ",")
	case KindBoolean:
		switch v.Bool {
		case TriTrue:
			return "True"
		case TriFalse:
			return "False"
		default:
			return "True_or_False"
		}
	default:
		return ""
	}
}

// ParseSize parses a size with an optional SI/IEC-like suffix (kb, mb, gb,
// tb, b, or bare kb) into kb, per spec §4.D "sizes parse with optional
// suffix and are stored in kb".
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("resource: empty size")
	}
	idx := len(s)
	for idx > 0 && !isDigitOrDot(s[idx-1]) {
		idx--
	}
	numPart := s[:idx]
	unit := strings.ToLower(s[idx:])

	n, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("resource: bad size %q: %w", s, err)
	}

	var mult float64
	switch unit {
	case "b":
		mult = 1.0 / 1024
	case "", "kb", "k", "kw":
		mult = 1
	case "mb", "m", "mw":
		mult = 1024
	case "gb", "g", "gw":
		mult = 1024 * 1024
	case "tb", "t", "tw":
		mult = 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("resource: unknown size unit %q in %q", unit, s)
	}
	return int64(n * mult), nil
}

func isDigitOrDot(b byte) bool {
	return (b >= '0' && b <= '9') || b == '.'
}

// FormatSize renders kb with the largest whole unit that divides evenly,
// default "kb".
func FormatSize(kb int64) string {
	switch {
	case kb != 0 && kb%(1024*1024*1024) == 0:
		return fmt.Sprintf("%dtb", kb/(1024*1024*1024))
	case kb != 0 && kb%(1024*1024) == 0:
		return fmt.Sprintf("%dgb", kb/(1024*1024))
	case kb != 0 && kb%1024 == 0:
		return fmt.Sprintf("%dmb", kb/1024)
	default:
		return fmt.Sprintf("%dkb", kb)
	}
}

// ParseTime parses a time value in "[[h:]m:]s" form or with a trailing
// unit suffix (s, m, h, d), per spec §4.D.
func ParseTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("resource: empty time")
	}
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) > 3 {
			return 0, fmt.Errorf("resource: bad time %q", s)
		}
		var total int64
		for _, p := range parts {
			n, err := strconv.ParseInt(p, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("resource: bad time component %q: %w", p, err)
			}
			total = total*60 + n
		}
		return total, nil
	}

	idx := len(s)
	for idx > 0 && !isDigitOrDot(s[idx-1]) {
		idx--
	}
	numPart, unit := s[:idx], strings.ToLower(s[idx:])
	n, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("resource: bad time %q: %w", s, err)
	}
	switch unit {
	case "", "s":
		return int64(n), nil
	case "m":
		return int64(n * 60), nil
	case "h":
		return int64(n * 3600), nil
	case "d":
		return int64(n * 86400), nil
	default:
		return 0, fmt.Errorf("resource: unknown time unit %q in %q", unit, s)
	}
}

// FormatTime renders seconds as "[h:]mm:ss".
func FormatTime(sec int64) string {
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
