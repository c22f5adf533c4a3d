package ports

import (
	"context"

	"mixsim/domain/model"
)

// IntervalRepository persists completed interval runs.
type IntervalRepository interface {
	SaveRun(ctx context.Context, run model.IntervalRun) error
}
