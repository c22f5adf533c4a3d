package engine

import (
	"math"

	"mixsim/domain/model"
)

// invLogit maps log-odds to probability.
func invLogit(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// responseTransform returns the map from a linear-predictor draw to the
// requested output scale. The gaussian identity link makes both scales
// coincide; only the binomial response scale transforms.
func responseTransform(family model.Family, scale OutputScale) func(float64) float64 {
	if family == model.FamilyBinomial && scale == ScaleResponse {
		return invLogit
	}
	return func(x float64) float64 { return x }
}
