// Package dmath is the decimal arithmetic kernel for the uncertainty budget.
// Every value in the per-step computation chain is an apd.Decimal carried at
// 50 significant digits; rounding happens exactly once, when a result is
// converted for persistence via Round. Native floats never enter the chain.
package dmath

import (
	"github.com/cockroachdb/apd/v3"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// Precision is the number of significant digits carried through the
// computation chain.
const Precision = 50

// Decimal places applied at the persistence boundary.
const (
	PlacesDefault = 8 // contributors, combined/expanded uncertainty, CMC
	PlacesFactor  = 3 // effective degrees of freedom, coverage factor
)

var ctx = apd.BaseContext.WithPrecision(Precision)

// Shared constants of the computation chain.
var (
	Two     = apd.New(2, 0)
	Four    = apd.New(4, 0)
	Five    = apd.New(5, 0)
	Ten     = apd.New(10, 0)
	Hundred = apd.New(100, 0)
	Half    = apd.New(5, -1)
	Sqrt3   = mustSqrt(apd.New(3, 0))
	Sqrt5   = mustSqrt(apd.New(5, 0))
)

func mustSqrt(x *apd.Decimal) *apd.Decimal {
	var r apd.Decimal
	if _, err := ctx.Sqrt(&r, x); err != nil {
		panic(err)
	}
	return &r
}

// FromDec converts a persisted decimal into the computation domain.
func FromDec(d decimal.Decimal) *apd.Decimal {
	r, _, err := apd.NewFromString(d.String())
	if err != nil {
		// decimal.Decimal.String always yields a parseable literal.
		panic(err)
	}
	return r
}

// FromString parses a decimal literal.
func FromString(s string) (*apd.Decimal, error) {
	r, _, err := apd.NewFromString(s)
	if err != nil {
		return nil, eris.Wrapf(err, "dmath: parse %q", s)
	}
	return r, nil
}

// Round converts a chain value to a persistable decimal with the given
// number of places, rounding half away from zero.
func Round(x *apd.Decimal, places int32) decimal.Decimal {
	d, err := decimal.NewFromString(x.Text('f'))
	if err != nil {
		panic(err)
	}
	return d.Round(places)
}

// Calc performs chained decimal operations with a sticky error: after the
// first failure every subsequent operation is a no-op and Err returns the
// cause. This keeps long contributor formulas readable without dropping
// error handling.
type Calc struct {
	err error
}

// NewCalc returns a fresh calculator.
func NewCalc() *Calc {
	return &Calc{}
}

// Err returns the first error encountered, if any.
func (c *Calc) Err() error {
	return c.err
}

func (c *Calc) op(name string, f func(r *apd.Decimal) (apd.Condition, error)) *apd.Decimal {
	r := new(apd.Decimal)
	if c.err != nil {
		return r
	}
	if _, err := f(r); err != nil {
		c.err = eris.Wrap(err, "dmath: "+name)
	}
	return r
}

// Add returns a+b.
func (c *Calc) Add(a, b *apd.Decimal) *apd.Decimal {
	return c.op("add", func(r *apd.Decimal) (apd.Condition, error) { return ctx.Add(r, a, b) })
}

// Sub returns a-b.
func (c *Calc) Sub(a, b *apd.Decimal) *apd.Decimal {
	return c.op("sub", func(r *apd.Decimal) (apd.Condition, error) { return ctx.Sub(r, a, b) })
}

// Mul returns a*b.
func (c *Calc) Mul(a, b *apd.Decimal) *apd.Decimal {
	return c.op("mul", func(r *apd.Decimal) (apd.Condition, error) { return ctx.Mul(r, a, b) })
}

// Quo returns a/b. Callers guard zero divisors; a zero b still surfaces as
// an error rather than a panic.
func (c *Calc) Quo(a, b *apd.Decimal) *apd.Decimal {
	return c.op("quo", func(r *apd.Decimal) (apd.Condition, error) { return ctx.Quo(r, a, b) })
}

// Sqrt returns √a.
func (c *Calc) Sqrt(a *apd.Decimal) *apd.Decimal {
	return c.op("sqrt", func(r *apd.Decimal) (apd.Condition, error) { return ctx.Sqrt(r, a) })
}

// Square returns a².
func (c *Calc) Square(a *apd.Decimal) *apd.Decimal {
	return c.Mul(a, a)
}

// Pow4 returns a⁴.
func (c *Calc) Pow4(a *apd.Decimal) *apd.Decimal {
	return c.Square(c.Square(a))
}

// Abs returns |a|.
func (c *Calc) Abs(a *apd.Decimal) *apd.Decimal {
	return c.op("abs", func(r *apd.Decimal) (apd.Condition, error) { return ctx.Abs(r, a) })
}

// IsPositive reports a > 0.
func IsPositive(a *apd.Decimal) bool {
	return a.Sign() > 0
}

// IsZero reports a == 0.
func IsZero(a *apd.Decimal) bool {
	return a.IsZero()
}

// TruncInt64 returns the integer part of a, discarding the fraction.
func TruncInt64(a *apd.Decimal) (int64, error) {
	var t apd.Decimal
	var err error
	if a.Sign() >= 0 {
		_, err = ctx.Floor(&t, a)
	} else {
		_, err = ctx.Ceil(&t, a)
	}
	if err != nil {
		return 0, eris.Wrap(err, "dmath: trunc")
	}
	i, err := t.Int64()
	if err != nil {
		return 0, eris.Wrap(err, "dmath: trunc to int64")
	}
	return i, nil
}
