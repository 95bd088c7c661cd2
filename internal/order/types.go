package order

import (
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-merch/internal/pricing"
)

// Order statuses and actors.
const (
	StatusConfirmed = "confirmed"
	ActorSystem     = "system"
	createdNote     = "Order created by the system"
)

// Customer holds the student placing the order.
type Customer struct {
	StudentID      string `json:"studentId" bson:"studentId" validate:"required,max=64"`
	FullName       string `json:"fullName" bson:"fullName" validate:"required,max=160"`
	Email          string `json:"email" bson:"email" validate:"required,email,max=254"`
	PhoneNumber    string `json:"phoneNumber" bson:"phoneNumber" validate:"required,max=32"`
	School         string `json:"school" bson:"school" validate:"required,max=160"`
	AdditionalNote string `json:"additionalNote,omitempty" bson:"additionalNote,omitempty" validate:"max=1000"`
}

// ItemInput is one cart entry submitted by the client.
type ItemInput struct {
	ProductID string `json:"productId" validate:"required_without=IsCombo,max=64"`
	Quantity  int    `json:"quantity" validate:"gt=0,lte=1000"`
	IsCombo   bool   `json:"isCombo"`
	ComboID   string `json:"comboId" validate:"required_if=IsCombo true,max=64"`
	ComboName string `json:"comboName"`
}

// CreateInput is the createOrder request body.
type CreateInput struct {
	Customer
	Items             []ItemInput             `json:"items" validate:"required,min=1,max=100,dive"`
	UseOptimalPricing bool                    `json:"useOptimalPricing"`
	OptimalPricing    *pricing.OptimalPricing `json:"optimalPricing" validate:"required_if=UseOptimalPricing true"`
	AllowPartialCombo bool                    `json:"allowPartialCombo"`
}

// StatusEntry is one status transition.
type StatusEntry struct {
	Status    string    `json:"status" bson:"status"`
	UpdatedBy string    `json:"updatedBy" bson:"updatedBy"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
	Note      string    `json:"note,omitempty" bson:"note,omitempty"`
}

// Order is the persisted order aggregate.
type Order struct {
	ID              uuid.UUID
	OrderCode       string
	Customer        Customer
	Lines           []pricing.Line
	TotalAmount     pricing.Money
	PricingMode     pricing.Mode
	ComboInfo       *pricing.ComboInfo
	Status          string
	LastUpdatedBy   string
	StatusHistory   []StatusEntry
	CreatedAt       time.Time
	StatusUpdatedAt time.Time
}

// CreateOutput is returned to the caller after a successful createOrder.
type CreateOutput struct {
	OrderCode   string             `json:"orderCode"`
	TotalAmount pricing.Money      `json:"totalAmount"`
	Status      string             `json:"status"`
	CreatedAt   time.Time          `json:"createdAt"`
	ComboInfo   *pricing.ComboInfo `json:"comboInfo,omitempty"`
	Lines       []pricing.Line     `json:"lines"`
	Hint        string             `json:"hint,omitempty"`
}

// Summary is the read-path projection of an order.
type Summary struct {
	OrderCode       string        `json:"orderCode"`
	StudentID       string        `json:"studentId"`
	FullName        string        `json:"fullName"`
	Status          string        `json:"status"`
	TotalAmount     pricing.Money `json:"totalAmount"`
	CreatedAt       time.Time     `json:"createdAt"`
	StatusUpdatedAt time.Time     `json:"statusUpdatedAt"`
	Items           []SummaryItem `json:"items"`
}

// SummaryItem is a line as shown to the student.
type SummaryItem struct {
	ProductName string        `json:"productName"`
	Quantity    int           `json:"quantity"`
	UnitPrice   pricing.Money `json:"unitPrice"`
}

// NewOrder assembles a confirmed order from a priced cart.
func NewOrder(code string, customer Customer, priced pricing.Result, now time.Time) Order {
	now = now.UTC()
	return Order{
		ID:            uuid.New(),
		OrderCode:     code,
		Customer:      customer,
		Lines:         priced.Lines,
		TotalAmount:   priced.TotalAmount,
		PricingMode:   priced.Mode,
		ComboInfo:     priced.ComboInfo,
		Status:        StatusConfirmed,
		LastUpdatedBy: ActorSystem,
		StatusHistory: []StatusEntry{{
			Status:    StatusConfirmed,
			UpdatedBy: ActorSystem,
			UpdatedAt: now,
			Note:      createdNote,
		}},
		CreatedAt:       now,
		StatusUpdatedAt: now,
	}
}

// Summarize projects o for the read path.
func (o Order) Summarize() Summary {
	items := make([]SummaryItem, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, SummaryItem{ProductName: l.ProductName, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	return Summary{
		OrderCode:       o.OrderCode,
		StudentID:       o.Customer.StudentID,
		FullName:        o.Customer.FullName,
		Status:          o.Status,
		TotalAmount:     o.TotalAmount,
		CreatedAt:       o.CreatedAt,
		StatusUpdatedAt: o.StatusUpdatedAt,
		Items:           items,
	}
}
