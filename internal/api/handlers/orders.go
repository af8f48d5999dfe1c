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

// HandleCreateOrder handles POST /v1/orders
func HandleCreateOrder(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		buyer, ok := currentPrincipal(c)
		if !ok {
			return
		}

		var req service.CreateOrderRequest
		if err := bindJSON(c, &req); err != nil {
			writeError(c, logger, err)
			return
		}

		order, err := orders.CreateOrder(c.Request.Context(), buyer.ID, req)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, order)
	}
}

// HandleGetOrder handles GET /v1/orders/:id
func HandleGetOrder(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer, ok := currentPrincipal(c)
		if !ok {
			return
		}

		orderID, err := paramUUID(c, "id")
		if err != nil {
			writeError(c, logger, err)
			return
		}

		order, err := orders.GetOrder(c.Request.Context(), viewer, orderID)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

// HandleListMyOrders handles GET /v1/orders: a buyer's own orders or the
// orders holding a seller's items.
func HandleListMyOrders(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer, ok := currentPrincipal(c)
		if !ok {
			return
		}

		limit, offset := pagination(c)
		filter := repository.OrderFilter{Limit: limit, Offset: offset}
		switch viewer.Role {
		case domain.RoleBuyer:
			filter.BuyerID = &viewer.ID
		case domain.RoleSeller:
			filter.SellerID = &viewer.ID
		}
		if status := c.Query("status"); status != "" {
			s := domain.OrderStatus(status)
			filter.Status = &s
		}

		list, err := orders.ListOrders(c.Request.Context(), filter)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"orders": list,
			"limit":  limit,
			"offset": offset,
		})
	}
}

// HandleShippingUpdate handles POST /v1/seller/orders/:id/status
func HandleShippingUpdate(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		seller, ok := currentPrincipal(c)
		if !ok {
			return
		}

		orderID, err := paramUUID(c, "id")
		if err != nil {
			writeError(c, logger, err)
			return
		}

		var req service.ShippingUpdateRequest
		if err := bindJSON(c, &req); err != nil {
			writeError(c, logger, err)
			return
		}

		order, err := orders.ApplyShippingUpdate(c.Request.Context(), orderID, seller.ID, req)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":     order.ID.String(),
			"status": order.Status,
		})
	}
}

// HandleCancelOrder handles POST /v1/admin/orders/:id/cancel
func HandleCancelOrder(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, ok := currentPrincipal(c)
		if !ok {
			return
		}

		orderID, err := paramUUID(c, "id")
		if err != nil {
			writeError(c, logger, err)
			return
		}

		var req service.CancelOrderRequest
		if err := bindJSON(c, &req); err != nil {
			writeError(c, logger, err)
			return
		}

		order, err := orders.CancelOrder(c.Request.Context(), orderID, admin.ID, req.Reason)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":     order.ID.String(),
			"status": order.Status,
		})
	}
}

// HandleListOrders handles GET /v1/admin/orders
func HandleListOrders(orders *service.OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := pagination(c)
		filter := repository.OrderFilter{Limit: limit, Offset: offset}

		var err error
		if filter.BuyerID, err = queryUUID(c, "buyerId"); err != nil {
			writeError(c, logger, err)
			return
		}
		if filter.SellerID, err = queryUUID(c, "sellerId"); err != nil {
			writeError(c, logger, err)
			return
		}
		if status := c.Query("status"); status != "" {
			s := domain.OrderStatus(status)
			if !s.IsValid() {
				writeError(c, logger, &errors.ErrValidation{Field: "status", Message: "unknown order status"})
				return
			}
			filter.Status = &s
		}
		if paymentStatus := c.Query("paymentStatus"); paymentStatus != "" {
			s := domain.PaymentStatus(paymentStatus)
			if !s.IsValid() {
				writeError(c, logger, &errors.ErrValidation{Field: "paymentStatus", Message: "unknown payment status"})
				return
			}
			filter.PaymentStatus = &s
		}

		list, err := orders.ListOrders(c.Request.Context(), filter)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"orders": list,
			"limit":  limit,
			"offset": offset,
		})
	}
}
