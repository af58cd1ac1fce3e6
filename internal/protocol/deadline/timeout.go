package deadline

import (
	"strings"
	"time"
)

type kind uint8

const (
	kindUndefined kind = iota
	kindInfinite
	kindBounded
)

// Timeout is a per-call time allowance. It is a genuine tri-state:
//
//   - Undefined (the zero value): no cross-step budget, each step uses its own default.
//   - Infinite: explicitly no limit.
//   - bounded: a non-negative duration.
type Timeout struct {
	kind kind
	d    time.Duration
}

// Undefined defers to the transport default for every step.
var Undefined = Timeout{}

func Infinite() Timeout {
	return Timeout{kind: kindInfinite}
}

// After returns a bounded timeout. Negative durations clamp to zero.
func After(d time.Duration) Timeout {
	if d < 0 {
		d = 0
	}
	return Timeout{kind: kindBounded, d: d}
}

func Millis(ms int64) Timeout {
	return After(time.Duration(ms) * time.Millisecond)
}

func Seconds(s float64) Timeout {
	return After(time.Duration(s * float64(time.Second)))
}

func (t Timeout) IsUndefined() bool { return t.kind == kindUndefined }
func (t Timeout) IsInfinite() bool  { return t.kind == kindInfinite }
func (t Timeout) IsBounded() bool   { return t.kind == kindBounded }

// Duration reports the bounded duration. ok is false for undefined and infinite timeouts.
func (t Timeout) Duration() (d time.Duration, ok bool) {
	if t.kind != kindBounded {
		return 0, false
	}
	return t.d, true
}

// OrDefault resolves Undefined to def and leaves every other value alone.
func (t Timeout) OrDefault(def Timeout) Timeout {
	if t.kind == kindUndefined {
		return def
	}
	return t
}

func (t Timeout) String() string {
	switch t.kind {
	case kindUndefined:
		return "undefined"
	case kindInfinite:
		return "infinite"
	default:
		return t.d.String()
	}
}

// Parse reads "undefined", "infinite" or a time.ParseDuration string.
// An empty string is Undefined.
func Parse(raw string) (Timeout, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "undefined", "default":
		return Undefined, nil
	case "infinite", "none", "never":
		return Infinite(), nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return Undefined, err
	}
	return After(d), nil
}

func (t Timeout) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts the forms Parse does, so a Timeout can sit in a config struct.
func (t *Timeout) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (t Timeout) truncate() Timeout {
	if t.kind != kindBounded {
		return t
	}
	return After(t.d.Truncate(time.Millisecond))
}

func (Timeout) budget() {}
