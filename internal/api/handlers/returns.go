package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/settlement/internal/domain"
	"github.com/jafarshop/settlement/internal/repository"
	"github.com/jafarshop/settlement/internal/service"
	"github.com/jafarshop/settlement/pkg/errors"
)

// HandleFileReturn handles POST /v1/returns
func HandleFileReturn(returns *service.ReturnService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		buyer, ok := currentPrincipal(c)
		if !ok {
			return
		}

		var req service.FileReturnRequest
		if err := bindJSON(c, &req); err != nil {
			writeError(c, logger, err)
			return
		}

		request, err := returns.FileReturn(c.Request.Context(), buyer.ID, req)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, request)
	}
}

// HandleGetReturn handles GET /v1/returns/:id
func HandleGetReturn(returns *service.ReturnService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer, ok := currentPrincipal(c)
		if !ok {
			return
		}

		requestID, err := paramUUID(c, "id")
		if err != nil {
			writeError(c, logger, err)
			return
		}

		view, err := returns.GetReturn(c.Request.Context(), viewer, requestID)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// HandleListMyReturns handles GET /v1/returns: a buyer's own requests or the
// requests concerning a seller's items.
func HandleListMyReturns(returns *service.ReturnService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer, ok := currentPrincipal(c)
		if !ok {
			return
		}

		limit, offset := pagination(c)
		filter := repository.ReturnFilter{Limit: limit, Offset: offset}
		switch viewer.Role {
		case domain.RoleBuyer:
			filter.BuyerID = &viewer.ID
		case domain.RoleSeller:
			filter.SellerID = &viewer.ID
		}
		listReturns(c, returns, logger, filter)
	}
}

// HandleListReturns handles GET /v1/admin/returns
func HandleListReturns(returns *service.ReturnService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := pagination(c)
		filter := repository.ReturnFilter{Limit: limit, Offset: offset}

		var err error
		if filter.BuyerID, err = queryUUID(c, "buyerId"); err != nil {
			writeError(c, logger, err)
			return
		}
		if filter.SellerID, err = queryUUID(c, "sellerId"); err != nil {
			writeError(c, logger, err)
			return
		}
		if filter.OrderID, err = queryUUID(c, "orderId"); err != nil {
			writeError(c, logger, err)
			return
		}
		listReturns(c, returns, logger, filter)
	}
}

func listReturns(c *gin.Context, returns *service.ReturnService, logger *zap.Logger, filter repository.ReturnFilter) {
	if status := c.Query("status"); status != "" {
		s := domain.ReturnStatus(status)
		if !s.IsValid() {
			writeError(c, logger, &errors.ErrValidation{Field: "status", Message: "unknown return status"})
			return
		}
		filter.Status = &s
	}

	list, err := returns.ListReturns(c.Request.Context(), filter)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"returns": list,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// HandleStudioFeedback handles POST /v1/seller/returns/:id/feedback
func HandleStudioFeedback(returns *service.ReturnService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		seller, ok := currentPrincipal(c)
		if !ok {
			return
		}

		requestID, err := paramUUID(c, "id")
		if err != nil {
			writeError(c, logger, err)
			return
		}

		var req service.StudioFeedbackRequest
		if err := bindJSON(c, &req); err != nil {
			writeError(c, logger, err)
			return
		}

		request, err := returns.AddStudioFeedback(c.Request.Context(), seller.ID, requestID, req.Message)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, request)
	}
}

// HandleDecideReturn handles POST /v1/admin/returns/:id/decision
func HandleDecideReturn(returns *service.ReturnService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, ok := currentPrincipal(c)
		if !ok {
			return
		}

		requestID, err := paramUUID(c, "id")
		if err != nil {
			writeError(c, logger, err)
			return
		}

		var req service.DecideReturnRequest
		if err := bindJSON(c, &req); err != nil {
			writeError(c, logger, err)
			return
		}

		request, err := returns.DecideReturn(c.Request.Context(), admin.ID, requestID, req)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, request)
	}
}

// HandleStartReview handles POST /v1/admin/returns/:id/review
func HandleStartReview(returns *service.ReturnService, logger *zap.Logger) gin.HandlerFunc {
	return handleReturnTransition(returns.StartReview, logger)
}

// HandleCompleteReturn handles POST /v1/admin/returns/:id/complete
func HandleCompleteReturn(returns *service.ReturnService, logger *zap.Logger) gin.HandlerFunc {
	return handleReturnTransition(returns.CompleteReturn, logger)
}

type returnTransition func(ctx context.Context, adminID, requestID uuid.UUID) (*domain.ReturnRequest, error)

func handleReturnTransition(apply returnTransition, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, ok := currentPrincipal(c)
		if !ok {
			return
		}

		requestID, err := paramUUID(c, "id")
		if err != nil {
			writeError(c, logger, err)
			return
		}

		request, err := apply(c.Request.Context(), admin.ID, requestID)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":     request.ID.String(),
			"status": request.Status,
		})
	}
}
