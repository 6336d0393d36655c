package currency

import (
	"fmt"
	"strings"
)

// Code is one of the closed set of currencies the platform settles in.
// Codes are dense so they can index fixed-size rate matrices.
type Code uint8

const (
	USD Code = iota
	EUR
	COP
	MXN
	GBP
	PEN
	BRL
	CLP

	// Count is the number of supported currencies.
	Count = int(CLP) + 1
)

var names = [Count]string{"USD", "EUR", "COP", "MXN", "GBP", "PEN", "BRL", "CLP"}

// All returns every supported currency in index order.
func All() []Code {
	out := make([]Code, Count)
	for i := range out {
		out[i] = Code(i)
	}
	return out
}

func (c Code) String() string {
	if int(c) >= Count {
		return fmt.Sprintf("Code(%d)", uint8(c))
	}
	return names[c]
}

// Valid reports whether c is part of the closed set.
func (c Code) Valid() bool { return int(c) < Count }

// Parse converts an ISO code (case-insensitive) into a Code.
func Parse(s string) (Code, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, n := range names {
		if n == s {
			return Code(i), nil
		}
	}
	return 0, fmt.Errorf("unsupported currency: %q", s)
}

// MustParse is Parse for constants and fixtures.
func MustParse(s string) Code {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Code) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid currency code %d", uint8(c))
	}
	return []byte(names[c]), nil
}

func (c *Code) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
