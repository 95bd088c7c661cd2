package notify

import (
	"time"

	"github.com/noah-isme/backend-merch/internal/pricing"
)

// OrderCreated is the payload sent to external sinks after an order is persisted.
type OrderCreated struct {
	OrderCode      string         `json:"orderCode"`
	StudentID      string         `json:"studentId"`
	FullName       string         `json:"fullName"`
	Email          string         `json:"email"`
	PhoneNumber    string         `json:"phoneNumber"`
	School         string         `json:"school"`
	AdditionalNote string         `json:"additionalNote,omitempty"`
	Items          []pricing.Line `json:"items"`
	TotalAmount    pricing.Money  `json:"totalAmount"`
	CreatedAt      time.Time      `json:"createdAt"`
}
