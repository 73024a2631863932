// Package directory maps subject references to subject DIDs.
//
// The batch-creation workflow knows which actor owns a subject when it makes
// the subject eligible for attestation; it registers that binding here at
// token issuance time. The attestation session later resolves the redeemed
// token's subject reference through this directory.
package directory

import (
	"context"
	"fmt"
	"sync"

	"beantrace/internal/attestation/models"
	"beantrace/internal/sentinel"
	"beantrace/pkg/domain"
)

type key struct {
	subjectType models.SubjectType
	subjectRef  string
}

// InMemory is a process-local subject directory.
type InMemory struct {
	mu       sync.RWMutex
	subjects map[key]domain.DID
}

// NewInMemory constructs an empty directory.
func NewInMemory() *InMemory {
	return &InMemory{subjects: make(map[key]domain.DID)}
}

// Register binds a subject reference to its owning DID. Re-registering the
// same reference overwrites; the last writer is the batch workflow's current
// view.
func (d *InMemory) Register(_ context.Context, subjectType models.SubjectType, subjectRef string, did domain.DID) error {
	if subjectRef == "" || did.IsZero() {
		return fmt.Errorf("subject reference and DID are required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subjects[key{subjectType, subjectRef}] = did
	return nil
}

// ResolveSubject returns the DID bound to a subject reference.
func (d *InMemory) ResolveSubject(_ context.Context, subjectType models.SubjectType, subjectRef string) (domain.DID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	did, ok := d.subjects[key{subjectType, subjectRef}]
	if !ok {
		return "", fmt.Errorf("subject %s/%s: %w", subjectType, subjectRef, sentinel.ErrNotFound)
	}
	return did, nil
}
