package model

import "fmt"

// Cents represents a monetary amount in MXN as integer cents. Amounts never
// use float64 internally — only the HTTP boundary formats cents as decimal
// pesos for display.
type Cents int64

// CentsFromPesos converts a whole-peso integer amount to Cents. Callers that
// receive decimal pesos from an external system (e.g. "1500000.50") must
// round to the nearest cent themselves before calling this; the core never
// performs that rounding since it has no opinion on the source's rounding
// mode.
func CentsFromPesos(pesos int64) Cents {
	return Cents(pesos * 100)
}

// Pesos returns the whole-peso truncation of the amount, for display only.
func (c Cents) Pesos() int64 {
	return int64(c) / 100
}

func (c Cents) String() string {
	return fmt.Sprintf("%d.%02d", int64(c)/100, int64(c)%100)
}
