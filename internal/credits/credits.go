// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package credits implements the pre-run credit check and deduction.
// Charges happen before a generation stream opens, so a caller is never
// billed mid-stream and never streams without paying.
package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/clipforge/clipforge/internal/store"
)

// InsufficientError reports a failed charge with the figures the API
// surfaces in its 402 response.
type InsufficientError struct {
	Required int64 `json:"required"`
	Balance  int64 `json:"balance"`
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, balance %d", e.Required, e.Balance)
}

// Service charges users for pipeline work.
type Service struct {
	store *store.Store
}

// NewService wraps the store.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Charge deducts amount from the user's balance, recording the reason
// in the ledger. Returns *InsufficientError when the balance cannot
// cover the amount.
func (s *Service) Charge(ctx context.Context, userID string, amount int64, reason string) error {
	if amount == 0 {
		return nil
	}
	balance, err := s.store.DeductCredits(ctx, userID, amount, reason)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientCredits) {
			return &InsufficientError{Required: amount, Balance: balance}
		}
		return fmt.Errorf("charge %d credits for user %s: %w", amount, userID, err)
	}
	return nil
}

// Balance returns the user's current balance.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	return s.store.GetBalance(ctx, userID)
}
