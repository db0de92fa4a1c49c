package fakeadmin

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/prasenjit/stub-console/internal/models"
)

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"errorCode": "VALIDATION_ERROR",
		"message":   message,
	})
}

func notFound(c *gin.Context, id string) {
	c.JSON(http.StatusNotFound, gin.H{
		"errorCode": "STUB_NOT_FOUND",
		"message":   fmt.Sprintf("Stub not found: %s", id),
	})
}

// bindInput decodes and validates one stub input
func (s *Server) bindInput(c *gin.Context) (*models.StubInput, bool) {
	var in models.StubInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return nil, false
	}
	if err := s.validate.Struct(&in); err != nil {
		badRequest(c, validationMessage(err))
		return nil, false
	}
	return &in, true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Sprintf("Field '%s' failed validation: %s", verrs[0].Field(), verrs[0].Tag())
	}
	return err.Error()
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		notFound(c, c.Param("id"))
		return 0, false
	}
	return id, true
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "UP",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// listPage answers with Spring page semantics
func (s *Server) listPage(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil || page < 0 {
		badRequest(c, "page must be a non-negative integer")
		return
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(defaultPageSize)))
	if err != nil || size < 1 || size > maxPageSize {
		badRequest(c, fmt.Sprintf("size must be between 1 and %d", maxPageSize))
		return
	}
	if page > math.MaxInt/size {
		badRequest(c, "page is out of range")
		return
	}
	keyword := c.Query("keyword")

	s.mu.RLock()
	matched := make([]*models.Stub, 0)
	for _, st := range s.sortedLocked() {
		if matchesKeyword(st, keyword) {
			matched = append(matched, st.Clone())
		}
	}
	s.mu.RUnlock()

	start := page * size
	if start > len(matched) {
		start = len(matched)
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}

	c.JSON(http.StatusOK, models.Page{
		Content:       matched[start:end],
		Number:        page,
		Size:          size,
		TotalElements: int64(len(matched)),
	})
}

func (s *Server) getStub(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	s.mu.RLock()
	st, exists := s.stubs[id]
	var out *models.Stub
	if exists {
		out = st.Clone()
	}
	s.mu.RUnlock()

	if !exists {
		notFound(c, c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createStub(c *gin.Context) {
	in, ok := s.bindInput(c)
	if !ok {
		return
	}

	s.mu.Lock()
	st := s.insertLocked(in).Clone()
	s.mu.Unlock()

	c.JSON(http.StatusCreated, st)
}

func (s *Server) createBulk(c *gin.Context) {
	var ins []*models.StubInput
	if err := c.ShouldBindJSON(&ins); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if len(ins) == 0 {
		badRequest(c, "At least one stub is required")
		return
	}
	for i, in := range ins {
		if in == nil {
			badRequest(c, fmt.Sprintf("Stub %d is null", i))
			return
		}
		if err := s.validate.Struct(in); err != nil {
			badRequest(c, fmt.Sprintf("Stub %d: %s", i, validationMessage(err)))
			return
		}
	}

	c.JSON(http.StatusCreated, s.Seed(ins...))
}

func (s *Server) importBulk(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		badRequest(c, "Cannot read request body")
		return
	}

	ins, err := TranslateImport(raw)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	for i, in := range ins {
		if err := s.validate.Struct(in); err != nil {
			badRequest(c, fmt.Sprintf("Mapping %d: %s", i, validationMessage(err)))
			return
		}
	}

	c.JSON(http.StatusCreated, s.Seed(ins...))
}

func (s *Server) updateStub(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	in, ok := s.bindInput(c)
	if !ok {
		return
	}

	s.mu.Lock()
	st, exists := s.stubs[id]
	var out *models.Stub
	if exists {
		applyInput(st, in)
		st.UpdatedAt = models.Timestamp{Time: time.Now().UTC()}
		out = st.Clone()
	}
	s.mu.Unlock()

	if !exists {
		notFound(c, c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) deleteStub(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	s.mu.Lock()
	_, exists := s.stubs[id]
	delete(s.stubs, id)
	s.mu.Unlock()

	if !exists {
		notFound(c, c.Param("id"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) toggleStub(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	s.mu.Lock()
	st, exists := s.stubs[id]
	var out *models.Stub
	if exists {
		st.Enabled = !st.Enabled
		st.UpdatedAt = models.Timestamp{Time: time.Now().UTC()}
		out = st.Clone()
	}
	s.mu.Unlock()

	if !exists {
		notFound(c, c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) reload(c *gin.Context) {
	s.mu.Lock()
	s.reloads++
	count := len(s.stubs)
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"message": "Stubs reloaded",
		"count":   count,
	})
}

func (s *Server) statistics(c *gin.Context) {
	s.mu.RLock()
	stats := models.Statistics{TotalStubs: int64(len(s.stubs))}
	for _, st := range s.stubs {
		if st.Enabled {
			stats.EnabledStubs++
		} else {
			stats.DisabledStubs++
		}
	}
	s.mu.RUnlock()

	c.JSON(http.StatusOK, stats)
}

func (s *Server) listRequests(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	s.mu.RLock()
	// Newest first
	out := make([]*models.LoggedRequest, 0, len(s.requests))
	for i := len(s.requests) - 1; i >= 0; i-- {
		out = append(out, s.requests[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	total := len(s.requests)
	s.mu.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"requests": out,
		"meta":     gin.H{"total": total},
	})
}

func (s *Server) listMappings(c *gin.Context) {
	s.mu.RLock()
	stubs := s.sortedLocked()
	mappings := make([]any, 0, len(stubs))
	for _, st := range stubs {
		if !st.Enabled {
			continue
		}
		m, err := RenderMapping(st)
		if err != nil {
			s.log.Warn().Str("id", st.ID.String()).Err(err).Msg("cannot render mapping")
			continue
		}
		mappings = append(mappings, m)
	}
	s.mu.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"mappings": mappings,
		"meta":     gin.H{"total": len(mappings)},
	})
}
