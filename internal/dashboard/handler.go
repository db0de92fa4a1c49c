package dashboard

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/prasenjit/stub-console/internal/apierr"
	"github.com/prasenjit/stub-console/internal/models"
	"github.com/prasenjit/stub-console/internal/stats"
	"github.com/prasenjit/stub-console/internal/store"
)

const defaultRequestLimit = 100

// Handler handles dashboard API requests
type Handler struct {
	store      *store.Store
	admin      Admin
	metrics    *stats.Collector
	normalizer *apierr.Normalizer
	log        zerolog.Logger
}

// NewHandler creates a new dashboard handler
func NewHandler(st *store.Store, admin Admin, metrics *stats.Collector, log zerolog.Logger) *Handler {
	return &Handler{
		store:      st,
		admin:      admin,
		metrics:    metrics,
		normalizer: apierr.NewNormalizer(log),
		log:        log,
	}
}

type searchRequest struct {
	Keyword string `json:"keyword"`
}

type batchRequest struct {
	IDs     []string `json:"ids" binding:"required"`
	Enabled *bool    `json:"enabled"`
}

// GetState returns the store snapshot
func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Snapshot())
}

// ListStubs loads a page. Missing parameters keep the current page, size
// and keyword.
func (h *Handler) ListStubs(c *gin.Context) {
	page, size, _ := h.store.Page()
	keyword := h.store.Keyword()

	var err error
	if v := c.Query("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil {
			h.badRequest(c, "page must be a number")
			return
		}
	}
	if v := c.Query("size"); v != "" {
		if size, err = strconv.Atoi(v); err != nil {
			h.badRequest(c, "size must be a number")
			return
		}
	}
	if v, ok := c.GetQuery("keyword"); ok {
		keyword = v
	}

	if err := h.store.FetchPage(c.Request.Context(), page, size, keyword); err != nil && !errors.Is(err, store.ErrStaleResponse) {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.store.Snapshot())
}

// SearchStubs runs a keyword search from the first page
func (h *Handler) SearchStubs(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}

	if err := h.store.Search(c.Request.Context(), req.Keyword); err != nil && !errors.Is(err, store.ErrStaleResponse) {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.store.Snapshot())
}

// GetStub returns a single stub
func (h *Handler) GetStub(c *gin.Context) {
	st := h.store.GetByID(c.Request.Context(), c.Param("id"))
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Stub not found"})
		return
	}

	c.JSON(http.StatusOK, st)
}

// CreateStub creates a stub
func (h *Handler) CreateStub(c *gin.Context) {
	var input models.StubInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}

	created, err := h.store.Create(c.Request.Context(), &input)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

// CreateStubs creates several stubs in one call
func (h *Handler) CreateStubs(c *gin.Context) {
	var inputs []*models.StubInput
	if err := c.ShouldBindJSON(&inputs); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}

	created, err := h.store.CreateBulk(c.Request.Context(), inputs)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

// ImportStubs forwards a raw import document
func (h *Handler) ImportStubs(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		h.badRequest(c, "failed to read request body")
		return
	}
	if !gjson.ValidBytes(data) {
		h.badRequest(c, "import payload must be valid JSON")
		return
	}

	created, err := h.store.ImportBulk(c.Request.Context(), data)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

// UpdateStub replaces a stub
func (h *Handler) UpdateStub(c *gin.Context) {
	var input models.StubInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}

	updated, err := h.store.Update(c.Request.Context(), c.Param("id"), &input)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

// DeleteStub deletes a stub
func (h *Handler) DeleteStub(c *gin.Context) {
	if err := h.store.Remove(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ToggleStub flips a stub's enabled flag
func (h *Handler) ToggleStub(c *gin.Context) {
	updated, err := h.store.Toggle(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

// ReloadStubs asks the mock server to reload every stub
func (h *Handler) ReloadStubs(c *gin.Context) {
	if err := h.store.ReloadAll(c.Request.Context()); err != nil && !errors.Is(err, store.ErrStaleResponse) {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.store.Snapshot())
}

// BatchDelete deletes the given ids in order
func (h *Handler) BatchDelete(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}

	results, err := h.store.BatchDelete(c.Request.Context(), req.IDs)
	h.respondBatch(c, results, err)
}

// BatchToggle sets the enabled flag on the given ids
func (h *Handler) BatchToggle(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.Enabled == nil {
		h.badRequest(c, "enabled is required")
		return
	}

	results, err := h.store.BatchToggle(c.Request.Context(), req.IDs, *req.Enabled)
	h.respondBatch(c, results, err)
}

func (h *Handler) respondBatch(c *gin.Context, results []store.BatchResult, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"failed":  0,
		"total":   len(results),
		"results": results,
	})
}

// GetStatistics returns aggregate stub counts
func (h *Handler) GetStatistics(c *gin.Context) {
	st := h.store.Statistics(c.Request.Context())
	if st == nil {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, st)
}

// SelectStub adds an id to the selection
func (h *Handler) SelectStub(c *gin.Context) {
	h.store.Select(c.Param("id"))
	h.respondSelection(c)
}

// DeselectStub removes an id from the selection
func (h *Handler) DeselectStub(c *gin.Context) {
	h.store.Deselect(c.Param("id"))
	h.respondSelection(c)
}

// ClearSelection empties the selection
func (h *Handler) ClearSelection(c *gin.Context) {
	h.store.ClearSelection()
	h.respondSelection(c)
}

// SelectVisible selects every stub on the current page
func (h *Handler) SelectVisible(c *gin.Context) {
	h.store.SelectAllVisible()
	h.respondSelection(c)
}

func (h *Handler) respondSelection(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"selected":           h.store.Selected(),
		"allVisibleSelected": h.store.AllVisibleSelected(),
	})
}

// ListRequests returns the mock server's recent requests
func (h *Handler) ListRequests(c *gin.Context) {
	limit := defaultRequestLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.badRequest(c, "limit must be a positive number")
			return
		}
		limit = n
	}

	requests, err := h.admin.ListRequests(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// ListMappings returns the mock server's compiled mappings
func (h *Handler) ListMappings(c *gin.Context) {
	mappings, err := h.admin.ListMappings(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"mappings": mappings})
}

// GetMetrics returns admin API call statistics
func (h *Handler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

// ResetMetrics clears admin API call statistics
func (h *Handler) ResetMetrics(c *gin.Context) {
	h.metrics.Reset()
	c.JSON(http.StatusOK, gin.H{"message": "Metrics reset"})
}

// HealthCheck reports liveness and whether the admin API answers
func (h *Handler) HealthCheck(c *gin.Context) {
	admin := "up"
	if err := h.admin.Health(c.Request.Context()); err != nil {
		admin = "down"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"admin":       admin,
		"subscribers": h.store.Subscribers(),
		"time":        time.Now().UTC(),
	})
}
