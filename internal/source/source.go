// Package source abstracts the remote metadata platform the resolver
// loads component records from. The platform's query mechanism is an
// external collaborator; this package only defines the contract, a
// memoizing decorator, and a static implementation for tests and
// offline use.
package source

import (
	"context"
	"errors"

	"github.com/omniview-labs/omniview/internal/model"
)

// ErrListingFailed wraps a failed component listing. Listing failures
// are the only fatal class in a reload: with no records there is
// nothing to process.
var ErrListingFailed = errors.New("component listing failed")

// RawRecord is one component row as returned by the platform: scalar
// metadata fields plus the raw definition blob.
type RawRecord struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Type          string              `json:"type,omitempty"`
	SubType       string              `json:"subType,omitempty"`
	Version       string              `json:"version,omitempty"`
	ComponentType model.ComponentType `json:"componentType"`
	Definition    string              `json:"definition,omitempty"` // raw nested JSON
}

// Source lists and fetches component records from the remote platform.
type Source interface {
	// ListComponents returns all records of one component type.
	ListComponents(ctx context.Context, componentType model.ComponentType) ([]RawRecord, error)

	// FetchComponentDefinition loads a single record by name. The
	// second return is false when no such component exists.
	FetchComponentDefinition(ctx context.Context, componentType model.ComponentType, name string) (RawRecord, bool, error)
}
