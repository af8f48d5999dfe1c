package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/settlement/internal/api/middleware"
	"github.com/jafarshop/settlement/internal/domain"
	"github.com/jafarshop/settlement/pkg/errors"
)

// writeError maps a service error onto a status code. Unknown errors are
// logged and reported as internal.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		sigErr        *errors.ErrInvalidSignature
		validationErr *errors.ErrValidation
		unauthorized  *errors.ErrUnauthorized
		forbidden     *errors.ErrForbidden
		notFound      *errors.ErrNotFound
		stateErr      *errors.ErrInvalidState
		transition    *errors.ErrInvalidStateTransition
		reviewed      *errors.ErrAlreadyReviewed
		noItems       *errors.ErrNoEligibleItems
		limit         *errors.ErrLimitExceeded
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": validationErr.Error()})
	case errors.As(err, &sigErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": sigErr.Error()})
	case errors.As(err, &unauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": unauthorized.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": forbidden.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &stateErr):
		c.JSON(http.StatusConflict, gin.H{"error": stateErr.Error()})
	case errors.As(err, &transition):
		c.JSON(http.StatusConflict, gin.H{"error": transition.Error()})
	case errors.As(err, &reviewed):
		c.JSON(http.StatusConflict, gin.H{"error": reviewed.Error()})
	case errors.As(err, &noItems):
		c.JSON(http.StatusConflict, gin.H{"error": noItems.Error()})
	case errors.As(err, &limit):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": limit.Error()})
	default:
		logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// bindJSON decodes the body into obj, rejecting unknown fields, then runs
// the binding tag validation gin's ShouldBindJSON would.
func bindJSON(c *gin.Context, obj interface{}) error {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(obj); err != nil {
		return &errors.ErrValidation{Field: "body", Message: err.Error()}
	}
	if err := binding.Validator.ValidateStruct(obj); err != nil {
		return &errors.ErrValidation{Field: "body", Message: err.Error()}
	}
	return nil
}

func paramUUID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, &errors.ErrValidation{Field: name, Message: "must be a UUID"}
	}
	return id, nil
}

func queryUUID(c *gin.Context, name string) (*uuid.UUID, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, &errors.ErrValidation{Field: name, Message: "must be a UUID"}
	}
	return &id, nil
}

// pagination reads limit and offset the way the list endpoints accept them
func pagination(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// currentPrincipal aborts with 401 when AuthMiddleware did not run
func currentPrincipal(c *gin.Context) (*domain.Principal, bool) {
	principal, ok := middleware.GetPrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return principal, ok
}
