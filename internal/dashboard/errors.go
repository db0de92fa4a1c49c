package dashboard

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prasenjit/stub-console/internal/apierr"
	"github.com/prasenjit/stub-console/internal/store"
)

// errorBody is the JSON shape of every failed dashboard call
type errorBody struct {
	Type      apierr.Kind `json:"type"`
	Message   string      `json:"message"`
	Retryable bool        `json:"retryable"`
	Status    int         `json:"status,omitempty"` // Upstream admin API status
	Timestamp time.Time   `json:"timestamp"`
}

func newErrorBody(rec *apierr.Record) errorBody {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return errorBody{
		Type:      rec.Kind,
		Message:   rec.Message,
		Retryable: rec.Retryable(),
		Status:    rec.StatusCode(),
		Timestamp: ts,
	}
}

// httpStatus maps an error kind to the dashboard response status
func httpStatus(rec *apierr.Record) int {
	upstream := rec.StatusCode()
	switch rec.Kind {
	case apierr.KindAuth:
		if upstream == http.StatusUnauthorized || upstream == http.StatusForbidden {
			return upstream
		}
		return http.StatusUnauthorized
	case apierr.KindValidation:
		return http.StatusBadRequest
	case apierr.KindNetwork, apierr.KindServer:
		return http.StatusBadGateway
	default:
		if upstream == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	}
}

// respondError writes err in the dashboard error shape. Batch failures
// answer 207 with the per-id results.
func (h *Handler) respondError(c *gin.Context, err error) {
	rec := h.normalizer.Normalize(err)

	var batchErr *store.BatchError
	if errors.As(err, &batchErr) {
		c.JSON(http.StatusMultiStatus, gin.H{
			"error":   newErrorBody(rec),
			"failed":  batchErr.Failed,
			"total":   batchErr.Total,
			"results": batchErr.Results,
		})
		return
	}

	c.JSON(httpStatus(rec), newErrorBody(rec))
}

// badRequest reports a malformed dashboard request
func (h *Handler) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, newErrorBody(&apierr.Record{
		Kind:    apierr.KindValidation,
		Message: msg,
	}))
}
