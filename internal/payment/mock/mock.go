package mock

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/hernancolliard/tienda-online/internal/domain"
)

// PreferenceCreator is a development payment provider that always succeeds.
// It records every preference it was asked to create.
type PreferenceCreator struct {
	baseURL string
	// Err, when set, is returned instead of a preference.
	Err error

	mu      sync.Mutex
	created []domain.PaymentPreference
}

// NewPreferenceCreator returns a mock whose redirect URLs point at baseURL.
func NewPreferenceCreator(baseURL string) *PreferenceCreator {
	return &PreferenceCreator{baseURL: baseURL}
}

// Name returns the provider name.
func (p *PreferenceCreator) Name() string {
	return "mock"
}

// CreatePreference returns a fresh mock preference id.
func (p *PreferenceCreator) CreatePreference(_ context.Context, pref domain.PaymentPreference) (*domain.PreferenceResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	p.created = append(p.created, pref)

	id := "mock_pref_" + uuid.NewString()
	return &domain.PreferenceResult{
		ID:          id,
		RedirectURL: p.baseURL + "/checkout/mock?pref_id=" + id,
	}, nil
}

// Created returns the preferences seen so far.
func (p *PreferenceCreator) Created() []domain.PaymentPreference {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.PaymentPreference(nil), p.created...)
}
