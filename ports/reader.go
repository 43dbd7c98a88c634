package ports

import (
	"context"

	"goharmonic/domain/catalog"
)

// CatalogReader loads one catalog source into a record set.
// A reader that cannot open its source returns a SOURCE_UNAVAILABLE error;
// callers treat it as an empty set and carry on.
type CatalogReader interface {
	Name() string
	Read(ctx context.Context) (*catalog.RecordSet, error)
}
