package shipper

import (
	"time"
)

// PaymentMethod is the gateway's payment mode for an order.
type PaymentMethod string

const (
	PaymentPrepaid PaymentMethod = "Prepaid"
	PaymentCOD     PaymentMethod = "COD"
)

// Package defaults applied when an order carries no dimensions.
const (
	DefaultLengthCM  = 10.0
	DefaultBreadthCM = 10.0
	DefaultHeightCM  = 10.0
	DefaultCountry   = "India"
)

// OrderItem is a single line of a shipment.
type OrderItem struct {
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	Units        int     `json:"units"`
	SellingPrice float64 `json:"selling_price"`
}

// ShipmentPayload is the gateway-facing representation of an order.
type ShipmentPayload struct {
	OrderID           string        `json:"order_id"`
	OrderDate         string        `json:"order_date"`
	PickupLocation    string        `json:"pickup_location"`
	ChannelID         string        `json:"channel_id,omitempty"`
	BillingName       string        `json:"billing_customer_name"`
	BillingLastName   string        `json:"billing_last_name"`
	BillingAddress    string        `json:"billing_address"`
	BillingAddress2   string        `json:"billing_address_2,omitempty"`
	BillingCity       string        `json:"billing_city"`
	BillingPincode    string        `json:"billing_pincode"`
	BillingState      string        `json:"billing_state"`
	BillingCountry    string        `json:"billing_country"`
	BillingEmail      string        `json:"billing_email"`
	BillingPhone      string        `json:"billing_phone"`
	ShippingIsBilling bool          `json:"shipping_is_billing"`
	Items             []OrderItem   `json:"order_items"`
	PaymentMethod     PaymentMethod `json:"payment_method"`
	SubTotal          float64       `json:"sub_total"`
	Length            float64       `json:"length"`
	Breadth           float64       `json:"breadth"`
	Height            float64       `json:"height"`
	Weight            float64       `json:"weight"`
}

// ShipmentResult is the normalized gateway response for a created shipment.
type ShipmentResult struct {
	Gateway        string    `json:"gateway"`
	GatewayOrderID string    `json:"gateway_order_id"`
	ShipmentID     string    `json:"shipment_id"`
	Status         string    `json:"status,omitempty"`
	AWBCode        string    `json:"awb_code,omitempty"`
	CourierID      string    `json:"courier_company_id,omitempty"`
	CourierName    string    `json:"courier_name,omitempty"`
	TrackingURL    string    `json:"tracking_url,omitempty"`
	DryRun         bool      `json:"dryRun,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Pickup is the result of a pickup request.
type Pickup struct {
	Status        string `json:"status"`
	ScheduledDate string `json:"scheduled_date,omitempty"`
	TokenNumber   string `json:"token_number,omitempty"`
	DryRun        bool   `json:"dryRun,omitempty"`
}
