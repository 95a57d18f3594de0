package reference

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

//go:generate mockgen -source=reference.go -destination=../../test/mock_reference_store.go -package=test ReferenceStore

var ErrGenerationExhausted = errors.New("could not generate a unique reference")

// ReferenceStore answers whether a reference is already present in the
// transaction log.
type ReferenceStore interface {
	ReferenceExists(ctx context.Context, reference string) (bool, error)
}

// Generator produces collision-resistant transaction references.
// Collisions are vanishingly rare with UUID entropy, but the store is
// still consulted so uniqueness holds at generation time.
type Generator struct {
	store       ReferenceStore
	maxAttempts int
}

func NewGenerator(store ReferenceStore) *Generator {
	return &Generator{
		store:       store,
		maxAttempts: 5,
	}
}

func (g *Generator) Generate(ctx context.Context) (string, error) {
	for i := 0; i < g.maxAttempts; i++ {
		ref := "TXN-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
		exists, err := g.store.ReferenceExists(ctx, ref)
		if err != nil {
			return "", err
		}
		if !exists {
			return ref, nil
		}
	}
	return "", ErrGenerationExhausted
}
