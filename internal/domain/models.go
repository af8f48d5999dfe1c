package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Principal is an authenticated caller: an admin, a seller or a buyer
type Principal struct {
	ID         uuid.UUID
	Name       string
	Email      string
	Role       Role
	APIKeyHash string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Order represents one buyer checkout, possibly spanning several sellers
type Order struct {
	ID              uuid.UUID       `json:"id"`
	BuyerID         uuid.UUID       `json:"buyerId"`
	Items           []OrderItem     `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountAmount  decimal.Decimal `json:"discountAmount"`
	Total           decimal.Decimal `json:"total"`
	Status          OrderStatus     `json:"status"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	PaymentDetails  PaymentDetails  `json:"paymentDetails"`
	RefundDetails   RefundDetails   `json:"refundDetails"`
	PromoCode       *string         `json:"promoCode,omitempty"`
	TrackingHistory []TrackingEvent `json:"trackingHistory"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// OrderItem is one line of an order. It has no identity outside its order.
type OrderItem struct {
	ID           uuid.UUID        `json:"id"`
	ItemRef      string           `json:"itemRef"`
	ItemType     ItemType         `json:"itemType"`
	Name         string           `json:"name"`
	SellerID     uuid.UUID        `json:"sellerId"`
	Price        decimal.Decimal  `json:"price"`
	Quantity     int              `json:"quantity"`
	PayoutStatus PayoutItemStatus `json:"payoutStatus"`
	PayoutID     *uuid.UUID       `json:"payoutId,omitempty"`
}

// LineTotal is price × quantity
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// PaymentDetails holds the gateway identifiers for an order's payment
type PaymentDetails struct {
	GatewayOrderID   string          `json:"gatewayOrderId"`
	GatewayPaymentID string          `json:"gatewayPaymentId,omitempty"`
	Method           string          `json:"method,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	PaidAt           *time.Time      `json:"paidAt,omitempty"`
	FailureReason    *string         `json:"failureReason,omitempty"`
}

// RefundDetails accumulates money returned to the buyer
type RefundDetails struct {
	Amount               decimal.Decimal `json:"amount"`
	Status               RefundStatus    `json:"status"`
	ProcessedAt          *time.Time      `json:"processedAt,omitempty"`
	GatewayRefundIDs     []string        `json:"gatewayRefundIds,omitempty"`
	ReturnRequestNumbers []string        `json:"returnRequestNumbers,omitempty"`
}

// TrackingEvent is one entry of an order's append-only status log
type TrackingEvent struct {
	Status         OrderStatus `json:"status"`
	Message        string      `json:"message"`
	Actor          string      `json:"actor"`
	Carrier        *string     `json:"carrier,omitempty"`
	TrackingNumber *string     `json:"trackingNumber,omitempty"`
	TrackingURL    *string     `json:"trackingUrl,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

// FindItem returns a pointer into o.Items so callers mutate through the order.
func (o *Order) FindItem(itemID uuid.UUID) *OrderItem {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i]
		}
	}
	return nil
}

// HasSeller reports whether any line of the order belongs to sellerID
func (o *Order) HasSeller(sellerID uuid.UUID) bool {
	for _, item := range o.Items {
		if item.SellerID == sellerID {
			return true
		}
	}
	return false
}

// AllItemsRefunded reports whether every line has been refunded
func (o *Order) AllItemsRefunded() bool {
	if len(o.Items) == 0 {
		return false
	}
	for _, item := range o.Items {
		if item.PayoutStatus != PayoutItemStatusRefunded {
			return false
		}
	}
	return true
}

// RefundableAmount is what can still be refunded without exceeding the total
func (o *Order) RefundableAmount() decimal.Decimal {
	remaining := o.Total.Sub(o.RefundDetails.Amount)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// Track appends a tracking event
func (o *Order) Track(status OrderStatus, actor, message string, at time.Time) {
	o.TrackingHistory = append(o.TrackingHistory, TrackingEvent{
		Status:    status,
		Message:   message,
		Actor:     actor,
		Timestamp: at,
	})
}

// Clone returns a deep copy of the order
func (o *Order) Clone() *Order {
	c := *o
	c.Items = make([]OrderItem, len(o.Items))
	for i, item := range o.Items {
		if item.PayoutID != nil {
			id := *item.PayoutID
			item.PayoutID = &id
		}
		c.Items[i] = item
	}
	c.TrackingHistory = append([]TrackingEvent(nil), o.TrackingHistory...)
	c.RefundDetails.GatewayRefundIDs = append([]string(nil), o.RefundDetails.GatewayRefundIDs...)
	c.RefundDetails.ReturnRequestNumbers = append([]string(nil), o.RefundDetails.ReturnRequestNumbers...)
	if o.PromoCode != nil {
		code := *o.PromoCode
		c.PromoCode = &code
	}
	return &c
}

// Payout represents one settlement batch paid to one seller
type Payout struct {
	ID                     uuid.UUID       `json:"id"`
	SellerID               uuid.UUID       `json:"sellerId"`
	SellerName             string          `json:"sellerName"`
	SellerEmail            string          `json:"sellerEmail"`
	OrderIDs               []uuid.UUID     `json:"orderIds"`
	ItemCount              int             `json:"itemCount"`
	PeriodStart            time.Time       `json:"periodStart"`
	PeriodEnd              time.Time       `json:"periodEnd"`
	PlatformCommissionRate decimal.Decimal `json:"platformCommissionRate"`
	PaymentProcessingRate  decimal.Decimal `json:"paymentProcessingRate"`
	GrossEarnings          decimal.Decimal `json:"grossEarnings"`
	PlatformFees           decimal.Decimal `json:"platformFees"`
	ProcessingFees         decimal.Decimal `json:"processingFees"`
	NetEarnings            decimal.Decimal `json:"netEarnings"`
	Status                 PayoutStatus    `json:"status"`
	PaymentMethod          string          `json:"paymentMethod,omitempty"`
	PaymentDetails         PayoutDetails   `json:"paymentDetails"`
	ProcessedBy            *uuid.UUID      `json:"processedBy,omitempty"`
	ProcessedAt            *time.Time      `json:"processedAt,omitempty"`
	CreatedBy              uuid.UUID       `json:"createdBy"`
	CreatedAt              time.Time       `json:"createdAt"`
	UpdatedAt              time.Time       `json:"updatedAt"`
}

// PayoutDetails is the opaque settlement reference recorded by the admin
type PayoutDetails struct {
	TransactionID *string `json:"transactionId,omitempty"`
	Notes         *string `json:"notes,omitempty"`
	FailureReason *string `json:"failureReason,omitempty"`
}

// ApplyBreakdown sets the financial fields from a computed breakdown
func (p *Payout) ApplyBreakdown(b Breakdown) {
	p.GrossEarnings = b.Gross
	p.PlatformFees = b.PlatformFees
	p.ProcessingFees = b.ProcessingFees
	p.NetEarnings = b.Net
}

func (p *Payout) Clone() *Payout {
	c := *p
	c.OrderIDs = append([]uuid.UUID(nil), p.OrderIDs...)
	return &c
}

// ReturnRequest is a buyer's claim against exactly one order item
type ReturnRequest struct {
	ID             uuid.UUID          `json:"id"`
	RequestNumber  string             `json:"requestNumber"`
	OrderID        uuid.UUID          `json:"orderId"`
	BuyerID        uuid.UUID          `json:"buyerId"`
	Item           ReturnItemSnapshot `json:"item"`
	Type           ReturnType         `json:"type"`
	Reason         ReturnReason       `json:"reason"`
	Description    string             `json:"description"`
	Evidence       []Evidence         `json:"evidence"`
	Status         ReturnStatus       `json:"status"`
	AdminReview    *AdminReview       `json:"adminReview,omitempty"`
	StudioFeedback []StudioFeedback   `json:"studioFeedback"`
	RefundAmount   decimal.Decimal    `json:"refundAmount"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// ReturnItemSnapshot freezes the item as it was ordered
type ReturnItemSnapshot struct {
	OrderItemID uuid.UUID       `json:"orderItemId"`
	ItemRef     string          `json:"itemRef"`
	ItemType    ItemType        `json:"itemType"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	SellerID    uuid.UUID       `json:"sellerId"`
}

type Evidence struct {
	Type EvidenceType `json:"type"`
	URL  string       `json:"url"`
}

// AdminReview is written once and never changed afterwards
type AdminReview struct {
	ReviewerID   uuid.UUID       `json:"reviewerId"`
	Decision     ReviewDecision  `json:"decision"`
	Notes        string          `json:"notes,omitempty"`
	RefundAmount decimal.Decimal `json:"refundAmount"`
	ReviewedAt   time.Time       `json:"reviewedAt"`
}

// StudioFeedback is a seller reply on a return request. Informational only.
type StudioFeedback struct {
	SellerID  uuid.UUID `json:"sellerId"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r *ReturnRequest) Clone() *ReturnRequest {
	c := *r
	c.Evidence = append([]Evidence(nil), r.Evidence...)
	c.StudioFeedback = append([]StudioFeedback(nil), r.StudioFeedback...)
	if r.AdminReview != nil {
		review := *r.AdminReview
		c.AdminReview = &review
	}
	return &c
}

// PromoCode is a checkout discount rule with usage accounting
type PromoCode struct {
	ID                uuid.UUID        `json:"id"`
	Code              string           `json:"code"`
	DiscountType      DiscountType     `json:"discountType"`
	DiscountValue     decimal.Decimal  `json:"discountValue"`
	MaxDiscount       *decimal.Decimal `json:"maxDiscount,omitempty"`
	MinOrderAmount    decimal.Decimal  `json:"minOrderAmount"`
	UsageLimit        *int             `json:"usageLimit,omitempty"`
	UsageLimitPerUser *int             `json:"usageLimitPerUser,omitempty"`
	UsedCount         int              `json:"usedCount"`
	StartDate         time.Time        `json:"startDate"`
	EndDate           time.Time        `json:"endDate"`
	IsActive          bool             `json:"isActive"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

func (p *PromoCode) Clone() *PromoCode {
	c := *p
	return &c
}
