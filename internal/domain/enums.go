package domain

// OrderStatus represents the fulfillment status of an order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// IsValid checks if the order status is valid
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending,
		OrderStatusConfirmed,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks if a status transition is valid.
// Any state except cancelled itself may be cancelled.
func (s OrderStatus) CanTransitionTo(newStatus OrderStatus) bool {
	if newStatus == OrderStatusCancelled {
		return s.IsValid() && s != OrderStatusCancelled
	}
	switch s {
	case OrderStatusPending:
		return newStatus == OrderStatusConfirmed
	case OrderStatusConfirmed:
		return newStatus == OrderStatusProcessing ||
			newStatus == OrderStatusShipped
	case OrderStatusProcessing:
		return newStatus == OrderStatusShipped
	case OrderStatusShipped:
		return newStatus == OrderStatusDelivered
	default:
		return false
	}
}

// PaymentStatus represents where the buyer's money is
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusPaid              PaymentStatus = "paid"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending,
		PaymentStatusPaid,
		PaymentStatusFailed,
		PaymentStatusRefunded,
		PaymentStatusPartiallyRefunded:
		return true
	default:
		return false
	}
}

// CanTransitionTo only allows forward moves, plus failed -> paid for a
// successful retry.
func (s PaymentStatus) CanTransitionTo(newStatus PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return newStatus == PaymentStatusPaid || newStatus == PaymentStatusFailed
	case PaymentStatusFailed:
		return newStatus == PaymentStatusPaid || newStatus == PaymentStatusFailed
	case PaymentStatusPaid:
		return newStatus == PaymentStatusRefunded || newStatus == PaymentStatusPartiallyRefunded
	case PaymentStatusPartiallyRefunded:
		return newStatus == PaymentStatusRefunded || newStatus == PaymentStatusPartiallyRefunded
	default:
		return false
	}
}

// IsCaptured reports whether money was collected for the order.
func (s PaymentStatus) IsCaptured() bool {
	return s == PaymentStatusPaid ||
		s == PaymentStatusPartiallyRefunded ||
		s == PaymentStatusRefunded
}

// PayoutItemStatus is the settlement status of a single order item
type PayoutItemStatus string

const (
	PayoutItemStatusPending  PayoutItemStatus = "pending"
	PayoutItemStatusPaid     PayoutItemStatus = "paid"
	PayoutItemStatusRefunded PayoutItemStatus = "refunded"
)

func (s PayoutItemStatus) IsValid() bool {
	switch s {
	case PayoutItemStatusPending, PayoutItemStatusPaid, PayoutItemStatusRefunded:
		return true
	default:
		return false
	}
}

// CanTransitionTo: refunded is terminal.
func (s PayoutItemStatus) CanTransitionTo(newStatus PayoutItemStatus) bool {
	switch s {
	case PayoutItemStatusPending:
		return newStatus == PayoutItemStatusPaid || newStatus == PayoutItemStatusRefunded
	case PayoutItemStatusPaid:
		return newStatus == PayoutItemStatusRefunded
	default:
		return false
	}
}

// ItemType is the kind of thing an order line sells
type ItemType string

const (
	ItemTypeProduct  ItemType = "product"
	ItemTypeCourse   ItemType = "course"
	ItemTypeWorkshop ItemType = "workshop"
)

func (t ItemType) IsValid() bool {
	switch t {
	case ItemTypeProduct, ItemTypeCourse, ItemTypeWorkshop:
		return true
	default:
		return false
	}
}

// IsReturnable reports whether a buyer may file a return against this item type.
// Courses and workshops are consumed on access and are not returnable.
func (t ItemType) IsReturnable() bool {
	return t == ItemTypeProduct
}

// PayoutStatus represents the lifecycle of a seller payout
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
	PayoutStatusCancelled  PayoutStatus = "cancelled"
)

func (s PayoutStatus) IsValid() bool {
	switch s {
	case PayoutStatusPending,
		PayoutStatusProcessing,
		PayoutStatusCompleted,
		PayoutStatusFailed,
		PayoutStatusCancelled:
		return true
	default:
		return false
	}
}

func (s PayoutStatus) IsTerminal() bool {
	return s == PayoutStatusCompleted || s == PayoutStatusFailed || s == PayoutStatusCancelled
}

// CanTransitionTo checks if a payout status transition is valid
func (s PayoutStatus) CanTransitionTo(newStatus PayoutStatus) bool {
	switch s {
	case PayoutStatusPending:
		return newStatus == PayoutStatusProcessing ||
			newStatus == PayoutStatusCompleted ||
			newStatus == PayoutStatusFailed ||
			newStatus == PayoutStatusCancelled
	case PayoutStatusProcessing:
		return newStatus == PayoutStatusCompleted ||
			newStatus == PayoutStatusFailed ||
			newStatus == PayoutStatusCancelled
	default:
		return false // Terminal states
	}
}

// ReturnStatus represents the review state of a return request
type ReturnStatus string

const (
	ReturnStatusPending     ReturnStatus = "pending"
	ReturnStatusUnderReview ReturnStatus = "under_review"
	ReturnStatusApproved    ReturnStatus = "approved"
	ReturnStatusRejected    ReturnStatus = "rejected"
	ReturnStatusCompleted   ReturnStatus = "completed"
)

func (s ReturnStatus) IsValid() bool {
	switch s {
	case ReturnStatusPending,
		ReturnStatusUnderReview,
		ReturnStatusApproved,
		ReturnStatusRejected,
		ReturnStatusCompleted:
		return true
	default:
		return false
	}
}

// IsOpen reports whether the request still blocks a new filing for the same item.
func (s ReturnStatus) IsOpen() bool {
	return s == ReturnStatusPending || s == ReturnStatusUnderReview || s == ReturnStatusApproved
}

func (s ReturnStatus) CanTransitionTo(newStatus ReturnStatus) bool {
	switch s {
	case ReturnStatusPending:
		return newStatus == ReturnStatusUnderReview ||
			newStatus == ReturnStatusApproved ||
			newStatus == ReturnStatusRejected
	case ReturnStatusUnderReview:
		return newStatus == ReturnStatusApproved || newStatus == ReturnStatusRejected
	case ReturnStatusApproved:
		return newStatus == ReturnStatusCompleted
	default:
		return false
	}
}

// OpenReturnStatuses lists the statuses covered by the open-request uniqueness rule.
var OpenReturnStatuses = []ReturnStatus{
	ReturnStatusPending,
	ReturnStatusUnderReview,
	ReturnStatusApproved,
}

type ReturnType string

const (
	ReturnTypeReturn ReturnType = "return"
	ReturnTypeRefund ReturnType = "refund"
)

func (t ReturnType) IsValid() bool {
	return t == ReturnTypeReturn || t == ReturnTypeRefund
}

type ReturnReason string

const (
	ReturnReasonDamaged        ReturnReason = "damaged"
	ReturnReasonDefective      ReturnReason = "defective"
	ReturnReasonWrongItem      ReturnReason = "wrong_item"
	ReturnReasonNotAsDescribed ReturnReason = "not_as_described"
	ReturnReasonNoLongerNeeded ReturnReason = "no_longer_needed"
	ReturnReasonOther          ReturnReason = "other"
)

func (r ReturnReason) IsValid() bool {
	switch r {
	case ReturnReasonDamaged,
		ReturnReasonDefective,
		ReturnReasonWrongItem,
		ReturnReasonNotAsDescribed,
		ReturnReasonNoLongerNeeded,
		ReturnReasonOther:
		return true
	default:
		return false
	}
}

// ReviewDecision is the admin outcome on a return request
type ReviewDecision string

const (
	ReviewDecisionApproved ReviewDecision = "approved"
	ReviewDecisionRejected ReviewDecision = "rejected"
)

func (d ReviewDecision) IsValid() bool {
	return d == ReviewDecisionApproved || d == ReviewDecisionRejected
}

type EvidenceType string

const (
	EvidenceTypeImage EvidenceType = "image"
	EvidenceTypeVideo EvidenceType = "video"
)

type RefundStatus string

const (
	RefundStatusNone      RefundStatus = "none"
	RefundStatusProcessed RefundStatus = "processed"
)

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

func (t DiscountType) IsValid() bool {
	return t == DiscountTypePercentage || t == DiscountTypeFixed
}

// Role is what an authenticated principal may do
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleSeller Role = "seller"
	RoleBuyer  Role = "buyer"
)

func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleSeller || r == RoleBuyer
}
