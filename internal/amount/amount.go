// Package amount implements the unsigned 128-bit unit count used for every
// balance, supply and transfer value.
//
// Arithmetic never wraps or clamps: each operation reports overflow and the
// caller turns it into an error that aborts the enclosing invocation.
package amount

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Bits is the width of the value range.
const Bits = 128

var (
	// ErrInvalid is returned when a textual amount cannot be parsed.
	ErrInvalid = errors.New("invalid amount")
	// ErrOutOfRange is returned when a parsed amount does not fit in 128 bits.
	ErrOutOfRange = errors.New("amount exceeds 128-bit range")
)

// Amount is an unsigned integer in [0, 2^128-1]. The zero value is 0.
type Amount struct {
	v uint256.Int
}

// Zero is the additive identity.
var Zero = Amount{}

// Max is the largest representable amount, 2^128-1.
var Max = func() Amount {
	var one, m uint256.Int
	one.SetUint64(1)
	m.Lsh(&one, Bits)
	m.Sub(&m, &one)
	return Amount{v: m}
}()

// New returns an Amount holding v.
func New(v uint64) Amount {
	var a Amount
	a.v.SetUint64(v)
	return a
}

// Parse reads a base-10 string. Signs, blanks and values above Max are rejected.
func Parse(s string) (Amount, error) {
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty", ErrInvalid)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return Amount{}, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
	}
	// only the range check can fail once the input is all digits
	v, err := uint256.FromDecimal(s)
	if err != nil || v.BitLen() > Bits {
		return Amount{}, fmt.Errorf("%w: %s", ErrOutOfRange, s)
	}
	return Amount{v: *v}, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Add returns a+b and false if the sum exceeds Max.
func (a Amount) Add(b Amount) (Amount, bool) {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow || out.v.BitLen() > Bits {
		return Amount{}, false
	}
	return out, true
}

// Sub returns a-b and false if b > a.
func (a Amount) Sub(b Amount) (Amount, bool) {
	if a.v.Lt(&b.v) {
		return Amount{}, false
	}
	var out Amount
	out.v.Sub(&a.v, &b.v)
	return out, true
}

// MulDiv returns floor(a*b/d). The product is computed in 256 bits so it cannot
// overflow; false is returned when d is zero or the quotient exceeds Max.
func MulDiv(a, b, d Amount) (Amount, bool) {
	if d.IsZero() {
		return Amount{}, false
	}
	var prod, out uint256.Int
	prod.Mul(&a.v, &b.v)
	out.Div(&prod, &d.v)
	if out.BitLen() > Bits {
		return Amount{}, false
	}
	return Amount{v: out}, true
}

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a.v.Lt(&b.v) {
		return a
	}
	return b
}

// Cmp returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

// LessThan reports a < b.
func (a Amount) LessThan(b Amount) bool { return a.v.Lt(&b.v) }

// IsZero reports a == 0.
func (a Amount) IsZero() bool { return a.v.IsZero() }

// String returns the base-10 representation.
func (a Amount) String() string { return a.v.Dec() }

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// MarshalJSON encodes the amount as a quoted decimal string so 128-bit values
// survive JavaScript clients.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a quoted decimal string or a bare JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return a.UnmarshalText([]byte(s))
	}
	return a.UnmarshalText(data)
}
