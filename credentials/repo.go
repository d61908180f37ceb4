package credentials

import "context"

// Repo persists the credential record for one Scope.
type Repo interface {
	// Save overwrites the stored record
	Save(ctx context.Context, record Record) error

	// Load returns the stored record or ErrNotFound
	Load(ctx context.Context) (Record, error)

	// Delete removes the stored record. Deleting nothing is not an error.
	Delete(ctx context.Context) error
}
