package selector

import (
	"github.com/shopspring/decimal"

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/model"
)

// narrowestCovering returns the range whose [min, max] contains v, preferring
// the smallest upper bound and then the smallest id. Nil when no range
// contains v.
func narrowestCovering(ranges []model.NomenclatureRange, v decimal.Decimal) *model.NomenclatureRange {
	var best *model.NomenclatureRange
	for i := range ranges {
		r := &ranges[i]
		if v.LessThan(r.RangeMin) || v.GreaterThan(r.RangeMax) {
			continue
		}
		if best == nil || rangeBefore(*r, *best) {
			best = r
		}
	}
	return best
}

// narrowest returns the range with the smallest upper bound, id as tie-break.
// Nil for an empty slice.
func narrowest(ranges []model.NomenclatureRange) *model.NomenclatureRange {
	var best *model.NomenclatureRange
	for i := range ranges {
		r := &ranges[i]
		if best == nil || rangeBefore(*r, *best) {
			best = r
		}
	}
	return best
}

func rangeBefore(a, b model.NomenclatureRange) bool {
	if !a.RangeMax.Equal(b.RangeMax) {
		return a.RangeMax.LessThan(b.RangeMax)
	}
	return a.ID < b.ID
}

// globalFloor returns the smallest range start across the given ranges, the
// lowest torque any active standard certifies.
func globalFloor(ranges []model.NomenclatureRange) decimal.Decimal {
	floor := ranges[0].RangeMin
	for _, r := range ranges[1:] {
		floor = decimal.Min(floor, r.RangeMin)
	}
	return floor
}

// leastUpperBound returns the master standard with the smallest certified
// upper bound, id as tie-break. Nil for an empty slice.
func leastUpperBound(standards []model.MasterStandard) *model.MasterStandard {
	var best *model.MasterStandard
	for i := range standards {
		ms := &standards[i]
		if best == nil || standardBefore(*ms, *best) {
			best = ms
		}
	}
	return best
}

func standardBefore(a, b model.MasterStandard) bool {
	if !a.RangeMax.Equal(b.RangeMax) {
		return a.RangeMax.LessThan(b.RangeMax)
	}
	return a.ID < b.ID
}
