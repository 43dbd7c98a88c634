package ports

import (
	"context"

	"goharmonic/domain/star"
	"goharmonic/domain/verdict"
)

// StatTest is one independent test of the battery. Run must not mutate the dataset.
type StatTest interface {
	Name() verdict.TestName
	Run(ctx context.Context, ds *star.Dataset) verdict.TestVerdict
}
