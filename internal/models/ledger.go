package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Contract lifecycle states.
const (
	ContractStatusDraft     = "draft"
	ContractStatusOpen      = "open"
	ContractStatusExecuted  = "executed"
	ContractStatusCancelled = "cancelled"
)

// Counterparty is a trading partner, supplier or customer or both.
type Counterparty struct {
	ID   string `gorm:"primaryKey;type:uuid" json:"id"`
	Name string `gorm:"not null" json:"name"`
	Code string `gorm:"uniqueIndex;not null" json:"code"`

	TaxID         string `json:"tax_id"`
	City          string `json:"city"`
	Country       string `json:"country"`
	ContactPerson string `json:"contact_person"`

	IsSupplier bool `gorm:"default:false" json:"is_supplier"`
	IsCustomer bool `gorm:"default:true" json:"is_customer"`
	IsActive   bool `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Counterparty) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Commodity is a tradeable good.
type Commodity struct {
	ID        string `gorm:"primaryKey;type:uuid" json:"id"`
	ShortName string `gorm:"not null" json:"short_name"`
	FullName  string `json:"full_name"`
	Group     string `gorm:"index" json:"group"`
	IsActive  bool   `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Commodity) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Currency is ISO 4217 reference data.
type Currency struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	Code   string `gorm:"uniqueIndex;size:3;not null" json:"code"`
	Name   string `gorm:"not null" json:"name"`
	Symbol string `json:"symbol"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Currency) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Contract records a single physical trade between the company and a
// counterparty. Monetary amounts are stored as fixed-point decimal
// strings and never pass through floats.
type Contract struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	Number string `gorm:"uniqueIndex;not null" json:"number"`
	Status string `gorm:"default:draft;index" json:"status"`

	CounterpartyID string        `gorm:"type:uuid;not null;index" json:"counterparty_id"`
	Counterparty   *Counterparty `json:"counterparty,omitempty"`
	CommodityID    string        `gorm:"type:uuid;not null;index" json:"commodity_id"`
	Commodity      *Commodity    `json:"commodity,omitempty"`
	CurrencyID     string        `gorm:"type:uuid;not null" json:"currency_id"`
	Currency       *Currency     `json:"currency,omitempty"`

	// Text columns on purpose: numeric affinity would strip trailing
	// zeros from amounts like "251.00" on the way back out.
	Price         string `gorm:"not null" json:"price"`
	Quantity      string `gorm:"not null" json:"quantity"`
	UnitOfMeasure string `gorm:"default:MT" json:"unit_of_measure"`
	PaymentDays   int    `json:"payment_days"`

	DeliveryStart *time.Time `json:"delivery_start"`
	DeliveryEnd   *time.Time `json:"delivery_end"`

	CreatedByID string `gorm:"type:uuid;index" json:"created_by_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Contract) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
