package causal

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// TwoProportionZTest compares conversion rates with a pooled two-proportion
// z-test and returns z (treatment minus control) and the two-tailed
// p-value. Degenerate inputs yield z = 0, p = 1.
func TwoProportionZTest(convControl, nControl, convTreatment, nTreatment int64) (z, p float64) {
	if nControl <= 0 || nTreatment <= 0 {
		return 0, 1
	}
	pc := float64(convControl) / float64(nControl)
	pt := float64(convTreatment) / float64(nTreatment)
	pooled := float64(convControl+convTreatment) / float64(nControl+nTreatment)
	if pooled <= 0 || pooled >= 1 || pc > 1 || pt > 1 {
		return 0, 1
	}

	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(nControl) + 1/float64(nTreatment)))
	if se == 0 || math.IsNaN(se) {
		return 0, 1
	}
	z = (pt - pc) / se
	p = 2 * (1 - distuv.UnitNormal.CDF(math.Abs(z)))
	return z, p
}
