package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cropwatch/internal/db"
	"cropwatch/internal/history"
	"cropwatch/internal/web/models"
)

var errBadRequest = errors.New("bad request")

// writeError maps service errors onto status codes: caller mistakes 400,
// missing rows 404, everything else 500 without internal detail.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, history.ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, db.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not found"})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal error"})
	}
}

func badRequest(c *gin.Context, err error) {
	writeError(c, errors.Join(errBadRequest, err))
}
