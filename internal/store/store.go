// Package store holds the client-side state of one console session: the
// current page of stubs, search keyword, selection set, loading flag and
// last error. All mutations go through store actions.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/prasenjit/stub-console/internal/apierr"
	"github.com/prasenjit/stub-console/internal/models"
)

// DefaultPageSize is used when no page size is configured
const DefaultPageSize = 20

// ErrStaleResponse is returned by a fetch whose response arrived after a
// newer fetch was issued. The response is discarded.
var ErrStaleResponse = errors.New("stale response discarded")

// API is the subset of the admin client the store depends on.
// *adminapi.Client satisfies it.
type API interface {
	ListPage(ctx context.Context, page, size int, keyword string) (*models.Page, error)
	GetStub(ctx context.Context, id string) (*models.Stub, error)
	CreateStub(ctx context.Context, in *models.StubInput) (*models.Stub, error)
	CreateStubs(ctx context.Context, ins []*models.StubInput) ([]*models.Stub, error)
	ImportStubs(ctx context.Context, payload json.RawMessage) ([]*models.Stub, error)
	UpdateStub(ctx context.Context, id string, in *models.StubInput) (*models.Stub, error)
	DeleteStub(ctx context.Context, id string) error
	ToggleStub(ctx context.Context, id string) (*models.Stub, error)
	ReloadStubs(ctx context.Context) error
	Statistics(ctx context.Context) (*models.Statistics, error)
}

// Store is one session's stub state. It is safe for concurrent use.
type Store struct {
	api        API
	normalizer *apierr.Normalizer
	validate   *validator.Validate
	log        zerolog.Logger

	mu         sync.Mutex
	content    []*models.Stub
	page       int
	size       int
	total      int64
	keyword    string
	selected   map[string]struct{}
	loading    bool
	lastErr    *apierr.Record
	generation uint64

	subMu       sync.RWMutex
	subscribers map[string]chan *Event
}

// Option configures a Store
type Option func(*Store)

// WithPageSize sets the initial page size
func WithPageSize(size int) Option {
	return func(s *Store) {
		if size > 0 {
			s.size = size
		}
	}
}

// WithLogger sets the logger used by the store and its error normalizer
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// WithValidator replaces the input validator
func WithValidator(v *validator.Validate) Option {
	return func(s *Store) {
		s.validate = v
	}
}

// New creates an empty store backed by api
func New(api API, opts ...Option) *Store {
	s := &Store{
		api:         api,
		log:         zerolog.Nop(),
		size:        DefaultPageSize,
		content:     make([]*models.Stub, 0),
		selected:    make(map[string]struct{}),
		subscribers: make(map[string]chan *Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.validate == nil {
		s.validate = validator.New()
	}
	s.log = s.log.With().Str("component", "store").Logger()
	s.normalizer = apierr.NewNormalizer(s.log)
	return s
}

// Snapshot is a point-in-time copy of the store state with derived values
type Snapshot struct {
	Stubs              []*models.Stub `json:"stubs"`
	Page               int            `json:"page"`
	Size               int            `json:"size"`
	Total              int64          `json:"total"`
	Keyword            string         `json:"keyword"`
	Selected           []string       `json:"selected"`
	Loading            bool           `json:"loading"`
	Error              *apierr.Record `json:"error,omitempty"`
	TotalPages         int            `json:"totalPages"`
	HasNext            bool           `json:"hasNext"`
	HasPrevious        bool           `json:"hasPrevious"`
	AllVisibleSelected bool           `json:"allVisibleSelected"`
}

// Snapshot returns a deep copy of the current state
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() *Snapshot {
	stubs := make([]*models.Stub, len(s.content))
	for i, st := range s.content {
		stubs[i] = st.Clone()
	}

	selected := make([]string, 0, len(s.selected))
	for id := range s.selected {
		selected = append(selected, id)
	}
	sort.Strings(selected)

	totalPages := models.TotalPages(s.total, s.size)
	return &Snapshot{
		Stubs:              stubs,
		Page:               s.page,
		Size:               s.size,
		Total:              s.total,
		Keyword:            s.keyword,
		Selected:           selected,
		Loading:            s.loading,
		Error:              s.lastErr,
		TotalPages:         totalPages,
		HasNext:            s.page+1 < totalPages,
		HasPrevious:        s.page > 0,
		AllVisibleSelected: s.allVisibleSelectedLocked(),
	}
}

// Stubs returns a copy of the current page content
func (s *Store) Stubs() []*models.Stub {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Stub, len(s.content))
	for i, st := range s.content {
		out[i] = st.Clone()
	}
	return out
}

// Page returns the current zero-based page index, page size and total count
func (s *Store) Page() (page, size int, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page, s.size, s.total
}

// Keyword returns the active search keyword
func (s *Store) Keyword() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyword
}

// Loading reports whether a page fetch is in flight
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// LastError returns the most recent surfaced error, or nil
func (s *Store) LastError() *apierr.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// TotalPages returns ceil(total/size)
func (s *Store) TotalPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.TotalPages(s.total, s.size)
}

// HasNext reports whether a page follows the current one
func (s *Store) HasNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page+1 < models.TotalPages(s.total, s.size)
}

// HasPrevious reports whether a page precedes the current one
func (s *Store) HasPrevious() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page > 0
}

// fail normalizes err, records it as the last error and notifies
// subscribers
func (s *Store) fail(err error) *apierr.Record {
	rec := s.normalizer.Normalize(err)

	s.mu.Lock()
	s.lastErr = rec
	s.mu.Unlock()

	s.publish(&Event{Type: EventError, Error: rec})
	return rec
}
