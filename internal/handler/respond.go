package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"idportal/internal/apperr"
	"idportal/internal/middleware"
	"idportal/internal/model"
	"idportal/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// respondError renders err with the status and code of its kind. Anything
// that is not an *apperr.Error is logged and hidden behind a generic 500.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		log.Error("unhandled error",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, response.ErrorWithCode(http.StatusInternalServerError, string(apperr.KindInternal), "", "internal server error"))
		return
	}

	status := apperr.HTTPStatus(e.Kind)
	msg := e.Message
	if e.Kind == apperr.KindExternalDependency && e.Err != nil {
		log.Warn("external dependency failed", zap.String("path", c.FullPath()), zap.Error(e.Err))
	}
	c.JSON(status, response.ErrorWithCode(status, string(e.Kind), e.Field, msg))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, string(apperr.KindValidation), "", msg))
}

// bindOptionalJSON accepts an empty body as the zero value.
func bindOptionalJSON(c *gin.Context, v interface{}) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(c.Request.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "Invalid request payload: "+err.Error())
		return false
	}
	return true
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, string(apperr.KindValidation), "id", "Invalid ID format"))
		return uuid.Nil, false
	}
	return id, true
}

func queryUUID(c *gin.Context, key string) (*uuid.UUID, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, string(apperr.KindValidation), key, "Invalid "+key))
		return nil, false
	}
	return &id, true
}

// actor returns the identity set by the auth middleware. Routes behind
// RequireRole always have one.
func actor(c *gin.Context) model.Identity {
	id, _ := middleware.IdentityFromContext(c)
	return id
}
