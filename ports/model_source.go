package ports

import (
	"context"

	"mixsim/domain/model"
)

// ModelSource supplies the fitted-model snapshot produced by an external
// fitting library. Implementations must return a validated, immutable model;
// the engine never fits or mutates one.
type ModelSource interface {
	FittedModel(ctx context.Context) (*model.FittedModel, error)
}
