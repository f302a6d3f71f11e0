package domain

import (
	"context"
)

// Contract is what a control client can ask a running keeper.
type Contract interface {
	// Status returns the serving status of one role, or of the keeper itself
	// for an empty role.
	Status(ctx context.Context, role string) (string, error)
}
