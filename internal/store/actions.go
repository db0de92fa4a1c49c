package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prasenjit/stub-console/internal/adminapi"
	"github.com/prasenjit/stub-console/internal/models"
)

// FetchPage loads one page of stubs filtered by keyword. Content, page,
// size, total and keyword are replaced together. On failure the previous
// content is kept.
func (s *Store) FetchPage(ctx context.Context, page, size int, keyword string) error {
	if page < 0 {
		page = 0
	}

	s.mu.Lock()
	if size <= 0 {
		size = s.size
	}
	s.generation++
	gen := s.generation
	s.loading = true
	s.lastErr = nil
	s.mu.Unlock()
	s.changed()

	p, err := s.api.ListPage(ctx, page, size, keyword)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.log.Debug().Uint64("generation", gen).Int("page", page).Msg("discarding stale page response")
		return ErrStaleResponse
	}
	s.loading = false
	if err != nil {
		s.mu.Unlock()
		return s.fail(err)
	}

	s.content = p.Content
	s.page = p.Number
	s.size = p.Size
	if s.size <= 0 {
		s.size = size
	}
	s.total = p.TotalElements
	s.keyword = keyword
	s.mu.Unlock()

	s.log.Debug().Int("page", p.Number).Int("size", p.Size).Int64("total", p.TotalElements).Str("keyword", keyword).Msg("page loaded")
	s.changed()
	return nil
}

// Search loads the first page for keyword
func (s *Store) Search(ctx context.Context, keyword string) error {
	s.mu.Lock()
	size := s.size
	s.mu.Unlock()
	return s.FetchPage(ctx, 0, size, keyword)
}

// Reload fetches the current page again
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	page, size, keyword := s.page, s.size, s.keyword
	s.mu.Unlock()
	return s.FetchPage(ctx, page, size, keyword)
}

// reloadAfter refreshes the page after a successful mutation. A failed
// reload is already recorded as the last error; a superseded one is
// ignored.
func (s *Store) reloadAfter(ctx context.Context, action string) {
	if err := s.Reload(ctx); err != nil && !errors.Is(err, ErrStaleResponse) {
		s.log.Warn().Str("action", action).Err(err).Msg("reload after mutation failed")
	}
}

// GetByID returns a stub, or nil when it cannot be fetched. Failures are
// logged only.
func (s *Store) GetByID(ctx context.Context, id string) *models.Stub {
	st, err := s.lookup(ctx, id)
	if err != nil {
		s.log.Warn().Str("id", id).Err(err).Msg("stub lookup failed")
		return nil
	}
	return st
}

func (s *Store) lookup(ctx context.Context, id string) (*models.Stub, error) {
	if id == "" {
		return nil, &adminapi.PayloadError{Reason: "stub id is required"}
	}
	return s.api.GetStub(ctx, id)
}

// Create validates and creates a stub, then reloads the current page
func (s *Store) Create(ctx context.Context, in *models.StubInput) (*models.Stub, error) {
	if err := s.validateInput(in); err != nil {
		return nil, s.fail(err)
	}

	created, err := s.api.CreateStub(ctx, in)
	if err != nil {
		return nil, s.fail(err)
	}

	s.log.Info().Str("id", created.ID.String()).Str("name", created.Name).Msg("stub created")
	s.reloadAfter(ctx, "create")
	return created, nil
}

// CreateBulk creates several stubs in one call, then reloads
func (s *Store) CreateBulk(ctx context.Context, ins []*models.StubInput) ([]*models.Stub, error) {
	if len(ins) == 0 {
		return nil, s.fail(&adminapi.PayloadError{Reason: "no stubs to create"})
	}
	for i, in := range ins {
		if err := s.validateInput(in); err != nil {
			return nil, s.fail(fmt.Errorf("stub %d: %w", i, err))
		}
	}

	created, err := s.api.CreateStubs(ctx, ins)
	if err != nil {
		return nil, s.fail(err)
	}

	s.log.Info().Int("count", len(created)).Msg("stubs created")
	s.reloadAfter(ctx, "create bulk")
	return created, nil
}

// ImportBulk sends a raw import document for server-side translation,
// then reloads
func (s *Store) ImportBulk(ctx context.Context, payload json.RawMessage) ([]*models.Stub, error) {
	imported, err := s.api.ImportStubs(ctx, payload)
	if err != nil {
		return nil, s.fail(err)
	}

	s.log.Info().Int("count", len(imported)).Msg("stubs imported")
	s.reloadAfter(ctx, "import")
	return imported, nil
}

// Update replaces a stub's fields, then reloads
func (s *Store) Update(ctx context.Context, id string, in *models.StubInput) (*models.Stub, error) {
	if id == "" {
		return nil, s.fail(&adminapi.PayloadError{Reason: "stub id is required"})
	}
	if err := s.validateInput(in); err != nil {
		return nil, s.fail(err)
	}

	updated, err := s.api.UpdateStub(ctx, id, in)
	if err != nil {
		return nil, s.fail(err)
	}

	s.log.Info().Str("id", id).Msg("stub updated")
	s.reloadAfter(ctx, "update")
	return updated, nil
}

// Remove deletes a stub, drops it from the selection and reloads
func (s *Store) Remove(ctx context.Context, id string) error {
	if id == "" {
		return s.fail(&adminapi.PayloadError{Reason: "stub id is required"})
	}
	if err := s.api.DeleteStub(ctx, id); err != nil {
		return s.fail(err)
	}

	s.mu.Lock()
	delete(s.selected, id)
	s.mu.Unlock()

	s.log.Info().Str("id", id).Msg("stub deleted")
	s.reloadAfter(ctx, "delete")
	return nil
}

// Toggle flips a stub's enabled flag and patches the matching entry of
// the held page. Local state is untouched on failure.
func (s *Store) Toggle(ctx context.Context, id string) (*models.Stub, error) {
	if id == "" {
		return nil, s.fail(&adminapi.PayloadError{Reason: "stub id is required"})
	}

	toggled, err := s.api.ToggleStub(ctx, id)
	if err != nil {
		return nil, s.fail(err)
	}

	s.mu.Lock()
	s.patchLocked(id, toggled)
	s.mu.Unlock()

	s.log.Info().Str("id", id).Bool("enabled", toggled.Enabled).Msg("stub toggled")
	s.changed()
	return toggled, nil
}

// patchLocked copies the enabled flag of updated onto the entry with the
// given id. Entries are replaced, never mutated, so snapshots stay intact.
func (s *Store) patchLocked(id string, updated *models.Stub) {
	for i, st := range s.content {
		if st.ID.String() != id {
			continue
		}
		patched := st.Clone()
		patched.Enabled = updated.Enabled
		if !updated.UpdatedAt.IsZero() {
			patched.UpdatedAt = updated.UpdatedAt
		}
		s.content[i] = patched
		return
	}
}

// ReloadAll asks the server to resynchronize its mappings, then reloads
// the current page
func (s *Store) ReloadAll(ctx context.Context) error {
	if err := s.api.ReloadStubs(ctx); err != nil {
		return s.fail(err)
	}

	s.log.Info().Msg("server mappings reloaded")
	if err := s.Reload(ctx); err != nil && !errors.Is(err, ErrStaleResponse) {
		return err
	}
	return nil
}

// Statistics returns aggregate counts, or nil when they cannot be fetched
func (s *Store) Statistics(ctx context.Context) *models.Statistics {
	st, err := s.api.Statistics(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("statistics unavailable")
		return nil
	}
	return st
}

func (s *Store) validateInput(in *models.StubInput) error {
	if in == nil {
		return &adminapi.PayloadError{Reason: "stub input is required"}
	}
	return s.validate.Struct(in)
}
