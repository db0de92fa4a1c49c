package store

import (
	"context"
	"fmt"
	"time"

	"github.com/prasenjit/stub-console/internal/apierr"
	"github.com/prasenjit/stub-console/internal/models"
)

// Outcome is the result of one batch item
type Outcome string

// Batch outcomes
const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// BatchResult is the outcome for one id of a batch
type BatchResult struct {
	ID      string         `json:"id"`
	Outcome Outcome        `json:"outcome"`
	Error   *apierr.Record `json:"error,omitempty"`
}

// BatchError reports a batch in which at least one item failed. Items that
// succeeded are not rolled back.
type BatchError struct {
	Failed  int
	Total   int
	Results []BatchResult
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%d of %d operations failed", e.Failed, e.Total)
}

// BatchDelete deletes each id in order, then reloads the page once.
// Every id is attempted; failures are collected into a BatchError.
func (s *Store) BatchDelete(ctx context.Context, ids []string) ([]BatchResult, error) {
	results := make([]BatchResult, 0, len(ids))

	for _, id := range ids {
		if err := s.api.DeleteStub(ctx, id); err != nil {
			results = append(results, BatchResult{ID: id, Outcome: OutcomeFailed, Error: s.normalizer.Normalize(err)})
			continue
		}

		s.mu.Lock()
		delete(s.selected, id)
		s.mu.Unlock()
		results = append(results, BatchResult{ID: id, Outcome: OutcomeSucceeded})
	}

	return results, s.finishBatch(ctx, "batch delete", results)
}

// BatchToggle sets each id's enabled flag to enable, in order. Ids already
// in the target state are skipped. The current state is read from the
// held page, falling back to the server for ids not on it.
func (s *Store) BatchToggle(ctx context.Context, ids []string, enable bool) ([]BatchResult, error) {
	results := make([]BatchResult, 0, len(ids))

	for _, id := range ids {
		current, err := s.currentStub(ctx, id)
		if err != nil {
			results = append(results, BatchResult{ID: id, Outcome: OutcomeFailed, Error: s.normalizer.Normalize(err)})
			continue
		}
		if current.Enabled == enable {
			results = append(results, BatchResult{ID: id, Outcome: OutcomeSkipped})
			continue
		}

		if err := s.toggleTo(ctx, id, enable); err != nil {
			results = append(results, BatchResult{ID: id, Outcome: OutcomeFailed, Error: s.normalizer.Normalize(err)})
			continue
		}
		results = append(results, BatchResult{ID: id, Outcome: OutcomeSucceeded})
	}

	return results, s.finishBatch(ctx, "batch toggle", results)
}

// toggleTo flips id until the server reports enable. The toggle endpoint
// only inverts, so a stub changed by another client since it was read needs
// a second call. The held page is patched with whatever the server answered.
func (s *Store) toggleTo(ctx context.Context, id string, enable bool) error {
	for attempt := 0; attempt < 2; attempt++ {
		toggled, err := s.api.ToggleStub(ctx, id)
		if err != nil {
			return err
		}

		s.mu.Lock()
		s.patchLocked(id, toggled)
		s.mu.Unlock()

		if toggled.Enabled == enable {
			return nil
		}
		s.log.Warn().Str("id", id).Bool("enabled", toggled.Enabled).Msg("stub changed on the server, toggling again")
	}

	return &apierr.Record{
		Kind:      apierr.KindUnknown,
		Message:   fmt.Sprintf("stub %s did not reach enabled=%t", id, enable),
		Timestamp: time.Now(),
	}
}

func (s *Store) currentStub(ctx context.Context, id string) (*models.Stub, error) {
	s.mu.Lock()
	for _, st := range s.content {
		if st.ID.String() == id {
			c := st.Clone()
			s.mu.Unlock()
			return c, nil
		}
	}
	s.mu.Unlock()

	return s.lookup(ctx, id)
}

// finishBatch reloads the page and builds the summary error, if any
func (s *Store) finishBatch(ctx context.Context, action string, results []BatchResult) error {
	var failed int
	var kind apierr.Kind
	for _, r := range results {
		if r.Outcome != OutcomeFailed {
			continue
		}
		failed++
		switch {
		case kind == "":
			kind = r.Error.Kind
		case kind != r.Error.Kind:
			kind = apierr.KindUnknown
		}
	}

	s.reloadAfter(ctx, action)

	if failed == 0 {
		s.log.Info().Str("action", action).Int("total", len(results)).Msg("batch completed")
		return nil
	}

	batchErr := &BatchError{Failed: failed, Total: len(results), Results: results}
	s.log.Warn().Str("action", action).Int("failed", failed).Int("total", len(results)).Msg("batch completed with failures")
	return s.fail(&apierr.Record{
		Kind:      kind,
		Message:   batchErr.Error(),
		Err:       batchErr,
		Timestamp: time.Now(),
	})
}
