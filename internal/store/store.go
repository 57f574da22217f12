// Package store persists spots delivered to clients. Persistence is
// best-effort: callers never block on it and failures are only logged.
package store

import (
	"errors"

	"golang.org/x/net/context"

	"github.com/user00265/dxbridge/internal/spot"
)

// Sink accepts delivered spots.
type Sink interface {
	Store(ctx context.Context, s spot.Spot) error
}

// BatchSink is a Sink that can write several spots at once.
type BatchSink interface {
	Sink
	StoreBatch(ctx context.Context, spots []spot.Spot) error
}

// Nop discards spots.
type Nop struct{}

func (Nop) Store(context.Context, spot.Spot) error { return nil }

// Multi fans spots out to every sink, joining their errors.
type Multi []Sink

func (m Multi) Store(ctx context.Context, s spot.Spot) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Store(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) StoreBatch(ctx context.Context, spots []spot.Spot) error {
	var errs []error
	for _, sink := range m {
		if err := storeAll(ctx, sink, spots); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// storeAll writes spots through StoreBatch when sink supports it.
func storeAll(ctx context.Context, sink Sink, spots []spot.Spot) error {
	if len(spots) == 0 {
		return nil
	}
	if b, ok := sink.(BatchSink); ok {
		return b.StoreBatch(ctx, spots)
	}
	var errs []error
	for _, s := range spots {
		if err := sink.Store(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
