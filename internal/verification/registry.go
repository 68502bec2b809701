// Package verification answers the trust engine's evidence questions. The
// registry is fed by the identity, phone and vouch flows, which only ever
// report outcomes; document contents never reach it.
package verification

import (
	"context"
	"strings"
	"sync"
)

type Registry struct {
	mu        sync.RWMutex
	documents map[string]bool
	phones    map[string]bool
	vouches   map[string]string
}

func NewRegistry() *Registry {
	//nolint:exhaustruct
	return &Registry{
		documents: make(map[string]bool),
		phones:    make(map[string]bool),
		vouches:   make(map[string]string),
	}
}

func (r *Registry) RecordDocumentStored(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.documents[participantID] = true
}

func (r *Registry) RecordPhoneVerified(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.phones[participantID] = true
}

// RecordVouch stores the contact who vouched for the participant. An empty
// contact withdraws the vouch.
func (r *Registry) RecordVouch(participantID, contact string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contact = strings.TrimSpace(contact)
	if contact == "" {
		delete(r.vouches, participantID)

		return
	}

	r.vouches[participantID] = contact
}

func (r *Registry) DocumentStored(_ context.Context, participantID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.documents[participantID], nil
}

func (r *Registry) PhoneVerified(_ context.Context, participantID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.phones[participantID], nil
}

func (r *Registry) ConfirmVouch(_ context.Context, participantID string) (bool, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	contact, ok := r.vouches[participantID]

	return ok, contact, nil
}
