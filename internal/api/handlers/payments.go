package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/settlement/internal/service"
	"github.com/jafarshop/settlement/pkg/errors"
)

const (
	SignatureHeader = "X-Signature"
	maxWebhookBody  = 1 << 20
)

// HandlePaymentWebhook handles POST /v1/webhooks/payments. The signature is
// computed over the exact bytes received, so the body is read raw.
func HandlePaymentWebhook(payments *service.PaymentService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			writeError(c, logger, &errors.ErrValidation{Field: "body", Message: "unreadable body"})
			return
		}

		result, err := payments.HandleWebhookEvent(c.Request.Context(), body, c.GetHeader(SignatureHeader))
		if err != nil {
			writeError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"received": true,
			"status":   result.Status,
		})
	}
}

// HandleVerifyPayment handles POST /v1/payments/verify
func HandleVerifyPayment(payments *service.PaymentService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		buyer, ok := currentPrincipal(c)
		if !ok {
			return
		}

		var req service.VerifyPaymentRequest
		if err := bindJSON(c, &req); err != nil {
			writeError(c, logger, err)
			return
		}

		verification, err := payments.VerifyReturnFlow(c.Request.Context(), buyer.ID, req)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, verification)
	}
}
