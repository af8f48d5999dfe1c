package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jafarshop/settlement/internal/domain"
)

// CreateOrderRequest represents the checkout payload
type CreateOrderRequest struct {
	Items     []CreateOrderItem `json:"items" binding:"required,min=1,dive"`
	PromoCode *string           `json:"promoCode,omitempty"`
}

type CreateOrderItem struct {
	ItemRef  string          `json:"itemRef" binding:"required"`
	ItemType domain.ItemType `json:"itemType" binding:"required"`
	Name     string          `json:"name" binding:"required"`
	SellerID uuid.UUID       `json:"sellerId" binding:"required"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity" binding:"required,min=1"`
}

// ShippingUpdateRequest is a seller's fulfillment update
type ShippingUpdateRequest struct {
	Status   domain.OrderStatus `json:"status" binding:"required"`
	Message  string             `json:"message,omitempty"`
	Tracking *TrackingInfo      `json:"tracking,omitempty"`
}

type TrackingInfo struct {
	Carrier        *string `json:"carrier,omitempty"`
	TrackingNumber *string `json:"trackingNumber,omitempty"`
	TrackingURL    *string `json:"trackingUrl,omitempty"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// VerifyPaymentRequest is the buyer's checkout return
type VerifyPaymentRequest struct {
	OrderID          uuid.UUID `json:"orderId" binding:"required"`
	GatewayOrderID   string    `json:"gatewayOrderId" binding:"required"`
	GatewayPaymentID string    `json:"gatewayPaymentId" binding:"required"`
	Signature        string    `json:"signature" binding:"required"`
}

// PaymentVerification is the verified payment metadata returned to the buyer
type PaymentVerification struct {
	OrderID          uuid.UUID       `json:"orderId"`
	GatewayOrderID   string          `json:"gatewayOrderId"`
	GatewayPaymentID string          `json:"gatewayPaymentId"`
	Method           string          `json:"method,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	PaidAt           *time.Time      `json:"paidAt,omitempty"`
	AlreadyPaid      bool            `json:"alreadyPaid"`
}

// CreatePayoutRequest asks for one seller's earnings over a period
type CreatePayoutRequest struct {
	SellerID      uuid.UUID `json:"sellerId" binding:"required"`
	PeriodStart   time.Time `json:"periodStart"`
	PeriodEnd     time.Time `json:"periodEnd"`
	PaymentMethod string    `json:"paymentMethod,omitempty"`
}

// UpdatePayoutStatusRequest lists every field an admin may change on a payout
type UpdatePayoutStatusRequest struct {
	Status        domain.PayoutStatus `json:"status" binding:"required"`
	TransactionID *string             `json:"transactionId,omitempty"`
	Notes         *string             `json:"notes,omitempty"`
	FailureReason *string             `json:"failureReason,omitempty"`
	PaymentMethod *string             `json:"paymentMethod,omitempty"`
}

// FileReturnRequest is a buyer's claim against one order item
type FileReturnRequest struct {
	OrderID      uuid.UUID           `json:"orderId" binding:"required"`
	ItemID       uuid.UUID           `json:"itemId" binding:"required"`
	Type         domain.ReturnType   `json:"type" binding:"required"`
	Reason       domain.ReturnReason `json:"reason" binding:"required"`
	Description  string              `json:"description,omitempty" binding:"max=2000"`
	Evidence     []domain.Evidence   `json:"evidence,omitempty" binding:"max=10"`
	RefundAmount *decimal.Decimal    `json:"refundAmount,omitempty"`
}

// DecideReturnRequest is the admin's verdict on a return request
type DecideReturnRequest struct {
	Decision     domain.ReviewDecision `json:"decision" binding:"required"`
	Notes        string                `json:"notes,omitempty"`
	RefundAmount *decimal.Decimal      `json:"refundAmount,omitempty"`
}

type StudioFeedbackRequest struct {
	Message string `json:"message" binding:"required,max=2000"`
}

// ValidatePromoRequest asks what a code is worth for a cart
type ValidatePromoRequest struct {
	Code      string          `json:"code" binding:"required"`
	CartTotal decimal.Decimal `json:"cartTotal"`
}

// PromoDiscount is the outcome of a successful promo validation
type PromoDiscount struct {
	Code           string              `json:"code"`
	DiscountType   domain.DiscountType `json:"discountType"`
	DiscountValue  decimal.Decimal     `json:"discountValue"`
	DiscountAmount decimal.Decimal     `json:"discountAmount"`
	FinalTotal     decimal.Decimal     `json:"finalTotal"`
}

type CreatePromoRequest struct {
	Code              string              `json:"code" binding:"required,max=64"`
	DiscountType      domain.DiscountType `json:"discountType" binding:"required"`
	DiscountValue     decimal.Decimal     `json:"discountValue"`
	MaxDiscount       *decimal.Decimal    `json:"maxDiscount,omitempty"`
	MinOrderAmount    decimal.Decimal     `json:"minOrderAmount"`
	UsageLimit        *int                `json:"usageLimit,omitempty" binding:"omitempty,min=1"`
	UsageLimitPerUser *int                `json:"usageLimitPerUser,omitempty" binding:"omitempty,min=1"`
	StartDate         time.Time           `json:"startDate"`
	EndDate           time.Time           `json:"endDate"`
}

// ReturnRequestView joins a return request with the records it refers to
type ReturnRequestView struct {
	*domain.ReturnRequest
	Order    *OrderSummary     `json:"order,omitempty"`
	Reviewer *PrincipalSummary `json:"reviewer,omitempty"`
}

type OrderSummary struct {
	ID            uuid.UUID            `json:"id"`
	Status        domain.OrderStatus   `json:"status"`
	PaymentStatus domain.PaymentStatus `json:"paymentStatus"`
	Total         decimal.Decimal      `json:"total"`
	RefundDetails domain.RefundDetails `json:"refundDetails"`
	Item          *domain.OrderItem    `json:"item,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
}

type PrincipalSummary struct {
	ID    uuid.UUID   `json:"id"`
	Name  string      `json:"name"`
	Email string      `json:"email,omitempty"`
	Role  domain.Role `json:"role"`
}
