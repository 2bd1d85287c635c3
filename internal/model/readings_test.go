package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVariationFamilyValid(t *testing.T) {
	t.Parallel()

	for _, f := range VariationFamilies {
		assert.True(t, f.Valid(), "family %q should be valid", f)
	}

	assert.False(t, VariationFamily("").Valid())
	assert.False(t, VariationFamily("torsion").Valid())
	assert.False(t, VariationFamily("Reproducibility").Valid(), "families are case sensitive")
}

func TestStepPercentsOrder(t *testing.T) {
	t.Parallel()

	// Budget rows are written in step order; the slice is that order.
	assert.Equal(t, []int{20, 60, 100}, StepPercents)
}
