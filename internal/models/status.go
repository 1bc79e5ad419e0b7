package models

type OrderStatus string

const (
	StatusCreated            OrderStatus = "CREATED"
	StatusAccepted           OrderStatus = "ACCEPTED"
	StatusRejected           OrderStatus = "REJECTED"
	StatusShippingInProgress OrderStatus = "SHIPPING_IN_PROGRESS"
	StatusShipped            OrderStatus = "SHIPPED"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	StatusCreated:            {StatusAccepted: true, StatusRejected: true},
	StatusAccepted:           {StatusShippingInProgress: true},
	StatusRejected:           {},
	StatusShippingInProgress: {StatusShipped: true},
	StatusShipped:            {},
}

// ParseOrderStatus returns false for anything outside the five known values.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(s)
	_, ok := validNext[st]
	return st, ok
}

func (s OrderStatus) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// CanTransition reports whether the forward-only order lifecycle allows from -> to.
// Re-setting the current status is always allowed.
func CanTransition(from, to OrderStatus) bool {
	if from == to {
		return to.Valid()
	}
	return validNext[from][to]
}
