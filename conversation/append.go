package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	errorskg "github.com/sweetpotato0/crashguide/errors"
)

// maxAppendAttempts bounds the read-modify-write loop in Append.
const maxAppendAttempts = 3

type getSaver interface {
	Get(ctx context.Context, id string) (*State, error)
	Save(ctx context.Context, s *State) error
}

// Append implements AppendTurn on top of Get and Save. Backends share it so
// every store applies the same optimistic retry.
func Append(ctx context.Context, store getSaver, id string, t Turn) (*State, error) {
	if id == "" {
		return nil, errorskg.NewValidationError("conversation_id", "must not be empty")
	}
	var lastErr error
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		s, err := store.Get(ctx, id)
		switch {
		case errors.Is(err, errorskg.ErrNotFound):
			s = NewState(id, time.Now().UTC())
		case err != nil:
			return nil, err
		}
		s.Turns = append(s.Turns, t.Clone())
		if err := store.Save(ctx, s); err != nil {
			if errors.Is(err, errorskg.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("append turn to %s: %w", id, lastErr)
}
