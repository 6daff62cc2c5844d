package proactive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"citizen-assistant/internal/directory"
	"citizen-assistant/internal/domain"
)

// Source is the slice of the directory a snapshot is built from.
type Source interface {
	GetUser(ctx context.Context, userID string) (*domain.UserProfile, error)
	GetUserPayments(ctx context.Context, userID string) ([]domain.Payment, error)
	GetUserApplications(ctx context.Context, userID string) ([]domain.Application, error)
}

// Fetch loads the profile, payments and applications concurrently. An
// unknown user yields a snapshot with a nil Profile rather than an error.
func Fetch(ctx context.Context, src Source, userID string, now time.Time) (Snapshot, error) {
	snap := Snapshot{Now: now}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := src.GetUser(gctx, userID)
		if errors.Is(err, directory.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("proactive: get user: %w", err)
		}
		snap.Profile = u
		return nil
	})
	g.Go(func() error {
		p, err := src.GetUserPayments(gctx, userID)
		if err != nil && !errors.Is(err, directory.ErrNotFound) {
			return fmt.Errorf("proactive: get payments: %w", err)
		}
		snap.Payments = p
		return nil
	})
	g.Go(func() error {
		a, err := src.GetUserApplications(gctx, userID)
		if err != nil && !errors.Is(err, directory.ErrNotFound) {
			return fmt.Errorf("proactive: get applications: %w", err)
		}
		snap.Applications = a
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
