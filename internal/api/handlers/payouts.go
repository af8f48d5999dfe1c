package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/settlement/internal/domain"
	"github.com/jafarshop/settlement/internal/repository"
	"github.com/jafarshop/settlement/internal/service"
	"github.com/jafarshop/settlement/pkg/errors"
)

// HandleCreatePayout handles POST /v1/admin/payouts
func HandleCreatePayout(payouts *service.PayoutService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, ok := currentPrincipal(c)
		if !ok {
			return
		}

		var req service.CreatePayoutRequest
		if err := bindJSON(c, &req); err != nil {
			writeError(c, logger, err)
			return
		}

		payout, err := payouts.CreatePayout(c.Request.Context(), admin.ID, req)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, payout)
	}
}

// HandleUpdatePayoutStatus handles PATCH /v1/admin/payouts/:id/status
func HandleUpdatePayoutStatus(payouts *service.PayoutService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, ok := currentPrincipal(c)
		if !ok {
			return
		}

		payoutID, err := paramUUID(c, "id")
		if err != nil {
			writeError(c, logger, err)
			return
		}

		// unknown fields are rejected, so nothing outside the allow-list reaches the payout
		var req service.UpdatePayoutStatusRequest
		if err := bindJSON(c, &req); err != nil {
			writeError(c, logger, err)
			return
		}

		payout, err := payouts.UpdatePayoutStatus(c.Request.Context(), payoutID, admin.ID, req)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, payout)
	}
}

// HandleGetPayout handles GET /v1/admin/payouts/:id
func HandleGetPayout(payouts *service.PayoutService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		payoutID, err := paramUUID(c, "id")
		if err != nil {
			writeError(c, logger, err)
			return
		}

		payout, err := payouts.GetPayout(c.Request.Context(), payoutID)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, payout)
	}
}

// HandleListPayouts handles GET /v1/admin/payouts
func HandleListPayouts(payouts *service.PayoutService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := pagination(c)
		filter := repository.PayoutFilter{Limit: limit, Offset: offset}

		var err error
		if filter.SellerID, err = queryUUID(c, "sellerId"); err != nil {
			writeError(c, logger, err)
			return
		}
		if status := c.Query("status"); status != "" {
			s := domain.PayoutStatus(status)
			if !s.IsValid() {
				writeError(c, logger, &errors.ErrValidation{Field: "status", Message: "unknown payout status"})
				return
			}
			filter.Status = &s
		}

		list, err := payouts.ListPayouts(c.Request.Context(), filter)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"payouts": list,
			"limit":   limit,
			"offset":  offset,
		})
	}
}

// HandleListSellerPayouts handles GET /v1/seller/payouts
func HandleListSellerPayouts(payouts *service.PayoutService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		seller, ok := currentPrincipal(c)
		if !ok {
			return
		}

		limit, offset := pagination(c)
		list, err := payouts.ListPayouts(c.Request.Context(), repository.PayoutFilter{
			SellerID: &seller.ID,
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"payouts": list,
			"limit":   limit,
			"offset":  offset,
		})
	}
}
