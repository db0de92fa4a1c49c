// Package fakeadmin is an in-memory implementation of the stub admin API.
// It backs the integration tests and the demo mode of the serve command.
package fakeadmin

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prasenjit/stub-console/internal/adminapi"
	"github.com/prasenjit/stub-console/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 1000
	maxRequests     = 1000
)

// Server is the fake admin API
type Server struct {
	mu       sync.RWMutex
	stubs    map[int64]*models.Stub
	nextID   int64
	requests []*models.LoggedRequest
	faults   map[string][]int // "METHOD path-or-template" -> queued statuses
	reloads  int

	apiKey   string
	validate *validator.Validate
	log      zerolog.Logger
	engine   *gin.Engine
}

// Option configures a Server
type Option func(*Server)

// WithAPIKey requires the X-API-Key header on every admin call
func WithAPIKey(key string) Option {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithLogger sets the request logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// New creates an empty fake admin API
func New(opts ...Option) *Server {
	s := &Server{
		stubs:    make(map[int64]*models.Stub),
		requests: make([]*models.LoggedRequest, 0),
		faults:   make(map[string][]int),
		validate: validator.New(),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "fakeadmin").Logger()

	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.engine.Use(s.logRequests())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	admin := s.engine.Group("/admin", s.faultInjection(), s.requireAPIKey())
	{
		admin.GET("/health", s.health)

		admin.GET("/stubs/page", s.listPage)
		admin.GET("/stubs/statistics", s.statistics)
		admin.POST("/stubs", s.createStub)
		admin.POST("/stubs/bulk", s.createBulk)
		admin.POST("/stubs/bulk/import", s.importBulk)
		admin.POST("/stubs/reload", s.reload)
		admin.GET("/stubs/:id", s.getStub)
		admin.PUT("/stubs/:id", s.updateStub)
		admin.DELETE("/stubs/:id", s.deleteStub)
		admin.POST("/stubs/:id/toggle", s.toggleStub)
	}

	compat := s.engine.Group(adminapi.CompatBasePath, s.faultInjection(), s.requireAPIKey())
	{
		compat.GET("/mappings", s.listMappings)
		compat.GET("/requests", s.listRequests)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// FailNext makes the next call matching route answer with status.
// route is "METHOD path" with either a concrete path (/admin/stubs/3) or
// a route template (/admin/stubs/:id). Calls queue up.
func (s *Server) FailNext(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[route] = append(s.faults[route], status)
}

// Seed stores stubs directly, bypassing validation
func (s *Server) Seed(ins ...*models.StubInput) []*models.Stub {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Stub, 0, len(ins))
	for _, in := range ins {
		out = append(out, s.insertLocked(in).Clone())
	}
	return out
}

// RecordRequest appends an entry to the request journal
func (s *Server) RecordRequest(r *models.LoggedRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Request.LoggedDate == 0 {
		r.Request.LoggedDate = time.Now().UnixMilli()
	}
	s.requests = append(s.requests, r)
	if len(s.requests) > maxRequests {
		s.requests = s.requests[len(s.requests)-maxRequests:]
	}
}

// Stub returns a copy of a stored stub, or nil
func (s *Server) Stub(id string) *models.Stub {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stubs[n].Clone()
}

// Len returns the number of stored stubs
func (s *Server) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stubs)
}

// Reloads returns how many times a reload was requested
func (s *Server) Reloads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reloads
}

func (s *Server) insertLocked(in *models.StubInput) *models.Stub {
	s.nextID++
	now := models.Timestamp{Time: time.Now().UTC()}
	st := &models.Stub{
		ID:        models.ID(strconv.FormatInt(s.nextID, 10)),
		UUID:      uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyInput(st, in)
	s.stubs[s.nextID] = st
	return st
}

func applyInput(st *models.Stub, in *models.StubInput) {
	st.Name = in.Name
	st.Description = in.Description
	st.Method = strings.ToUpper(in.Method)
	st.URL = in.URL
	st.UrlMatchType = in.UrlMatchType
	if st.UrlMatchType == "" {
		st.UrlMatchType = models.MatchEquals
	}
	st.RequestBodyPattern = in.RequestBodyPattern
	st.RequestHeadersPattern = in.RequestHeadersPattern
	st.QueryParametersPattern = in.QueryParametersPattern
	st.ResponseDefinition = in.ResponseDefinition
	st.Priority = in.Priority
	st.Enabled = in.Enabled
}

// sortedLocked returns stubs ordered by priority, then id
func (s *Server) sortedLocked() []*models.Stub {
	out := make([]*models.Stub, 0, len(s.stubs))
	for _, st := range s.stubs {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		a, _ := strconv.ParseInt(out[i].ID.String(), 10, 64)
		b, _ := strconv.ParseInt(out[j].ID.String(), 10, 64)
		return a < b
	})
	return out
}

func matchesKeyword(st *models.Stub, keyword string) bool {
	if keyword == "" {
		return true
	}
	kw := strings.ToLower(keyword)
	return strings.Contains(strings.ToLower(st.Name), kw) ||
		strings.Contains(strings.ToLower(st.URL), kw) ||
		strings.Contains(strings.ToLower(st.Description), kw)
}

// faultInjection answers with a queued status when one matches the call
func (s *Server) faultInjection() gin.HandlerFunc {
	return func(c *gin.Context) {
		keys := []string{
			c.Request.Method + " " + c.Request.URL.Path,
			c.Request.Method + " " + c.FullPath(),
		}

		s.mu.Lock()
		status := 0
		for _, key := range keys {
			if queued := s.faults[key]; len(queued) > 0 {
				status = queued[0]
				s.faults[key] = queued[1:]
				break
			}
		}
		s.mu.Unlock()

		if status != 0 {
			c.AbortWithStatusJSON(status, gin.H{
				"errorCode": "INJECTED_FAULT",
				"message":   http.StatusText(status),
			})
			return
		}
		c.Next()
	}
}

func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.apiKey == "" || c.GetHeader(adminapi.APIKeyHeader) == s.apiKey {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"errorCode": "UNAUTHORIZED",
			"message":   "Missing or invalid API key",
		})
	}
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("admin request")
	}
}
