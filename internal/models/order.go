package models

import (
	"time"
)

// OrderStatus represents the payment state of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// Order is a purchase recorded by the storefront. Completing an order
// issues license keys for its licensed line items; refunding it disables
// the keys it issued.
type Order struct {
	ID        uint   `gorm:"column:id;primaryKey" json:"id"`
	Reference string `gorm:"column:reference;size:64;uniqueIndex;not null" json:"reference"`

	CustomerID    uint   `gorm:"column:customer_id;index" json:"customer_id"`
	CustomerEmail string `gorm:"column:customer_email;size:255" json:"customer_email"`
	CustomerName  string `gorm:"column:customer_name;size:255" json:"customer_name"`

	Total  float64     `gorm:"column:total;type:decimal(15,2);not null" json:"total"`
	Status OrderStatus `gorm:"column:status;size:20;default:pending;index" json:"status"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items"`

	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at"`
	RefundedAt  *time.Time `gorm:"column:refunded_at" json:"refunded_at"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem is a line item of an order
type OrderItem struct {
	ID      uint `gorm:"column:id;primaryKey" json:"id"`
	OrderID uint `gorm:"column:order_id;not null;index" json:"order_id"`

	ProductID   uint    `gorm:"column:product_id;not null;index" json:"product_id"`
	ProductName string  `gorm:"column:product_name;size:200" json:"product_name"`
	Price       float64 `gorm:"column:price;type:decimal(15,2);not null" json:"price"`
	Quantity    int     `gorm:"column:quantity;default:1" json:"quantity"`
}

func (OrderItem) TableName() string {
	return "order_items"
}
