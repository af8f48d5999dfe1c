package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/settlement/internal/service"
)

// HandleValidatePromo handles POST /v1/promos/validate
func HandleValidatePromo(promos *service.PromoService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		buyer, ok := currentPrincipal(c)
		if !ok {
			return
		}

		var req service.ValidatePromoRequest
		if err := bindJSON(c, &req); err != nil {
			writeError(c, logger, err)
			return
		}

		discount, err := promos.Validate(c.Request.Context(), req.Code, req.CartTotal, &buyer.ID)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, discount)
	}
}

// HandleCreatePromo handles POST /v1/admin/promos
func HandleCreatePromo(promos *service.PromoService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.CreatePromoRequest
		if err := bindJSON(c, &req); err != nil {
			writeError(c, logger, err)
			return
		}

		promo, err := promos.CreatePromo(c.Request.Context(), req)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, promo)
	}
}
