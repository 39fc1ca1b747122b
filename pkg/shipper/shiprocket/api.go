package shiprocket

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
)

// APIClient defines the interface for Shiprocket API operations.
// The HTTP implementation talks to Shiprocket; the mock implementation
// backs dry-run mode and tests.
type APIClient interface {
	// CreateAdhocOrder creates an order and its shipment.
	CreateAdhocOrder(ctx context.Context, req *AdhocOrderRequest) (*AdhocOrderResponse, error)

	// GeneratePickup requests a courier pickup for shipments.
	GeneratePickup(ctx context.Context, req *PickupRequest) (*PickupResponse, error)
}

// ============================================================================
// API Request/Response Types (Shiprocket external API v1)
// ============================================================================

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer token.
type LoginResponse struct {
	Token string `json:"token"`
}

// AdhocOrderRequest is the body of POST /orders/create/adhoc.
type AdhocOrderRequest struct {
	OrderID             string      `json:"order_id"`
	OrderDate           string      `json:"order_date"`
	PickupLocation      string      `json:"pickup_location"`
	ChannelID           string      `json:"channel_id,omitempty"`
	BillingCustomerName string      `json:"billing_customer_name"`
	BillingLastName     string      `json:"billing_last_name"`
	BillingAddress      string      `json:"billing_address"`
	BillingAddress2     string      `json:"billing_address_2,omitempty"`
	BillingCity         string      `json:"billing_city"`
	BillingPincode      string      `json:"billing_pincode"`
	BillingState        string      `json:"billing_state"`
	BillingCountry      string      `json:"billing_country"`
	BillingEmail        string      `json:"billing_email"`
	BillingPhone        string      `json:"billing_phone"`
	ShippingIsBilling   bool        `json:"shipping_is_billing"`
	OrderItems          []OrderItem `json:"order_items"`
	PaymentMethod       string      `json:"payment_method"`
	SubTotal            float64     `json:"sub_total"`
	Length              float64     `json:"length"`
	Breadth             float64     `json:"breadth"`
	Height              float64     `json:"height"`
	Weight              float64     `json:"weight"`
}

// OrderItem is a line of an adhoc order.
type OrderItem struct {
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	Units        int     `json:"units"`
	SellingPrice float64 `json:"selling_price"`
}

// AdhocOrderResponse is the response of POST /orders/create/adhoc.
type AdhocOrderResponse struct {
	OrderID          FlexString `json:"order_id"`
	ShipmentID       FlexString `json:"shipment_id"`
	Status           string     `json:"status"`
	StatusCode       int        `json:"status_code"`
	AWBCode          FlexString `json:"awb_code"`
	CourierCompanyID FlexString `json:"courier_company_id"`
	CourierName      string     `json:"courier_name"`
}

// PickupRequest is the body of POST /courier/generate/pickup.
type PickupRequest struct {
	ShipmentIDs []string `json:"shipment_id"`
}

// PickupResponse is the response of POST /courier/generate/pickup.
type PickupResponse struct {
	PickupStatus int                `json:"pickup_status"`
	Response     PickupResponseBody `json:"response"`
}

// PickupResponseBody holds the scheduling details.
type PickupResponseBody struct {
	PickupScheduledDate string `json:"pickup_scheduled_date"`
	PickupTokenNumber   string `json:"pickup_token_number"`
	Status              int    `json:"status"`
	Data                string `json:"data"`
}

// APIError is an error body returned by Shiprocket.
type APIError struct {
	Code       string              `json:"-"`
	Message    string              `json:"message"`
	StatusCode int                 `json:"status_code"`
	Errors     map[string][]string `json:"errors,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		return e.Code + ": " + e.Message + " " + flattenFieldErrors(e.Errors)
	}
	return e.Code + ": " + e.Message
}

func flattenFieldErrors(errs map[string][]string) string {
	var buf bytes.Buffer
	buf.WriteByte('[')
	first := true
	for field, msgs := range errs {
		for _, msg := range msgs {
			if !first {
				buf.WriteString("; ")
			}
			first = false
			buf.WriteString(field)
			buf.WriteString(": ")
			buf.WriteString(msg)
		}
	}
	buf.WriteByte(']')
	return buf.String()
}

// FlexString decodes a JSON string or number into a string.
// Shiprocket returns identifiers as either type depending on the endpoint.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*f = FlexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = FlexString(n.String())
	return nil
}

// String returns the decoded value.
func (f FlexString) String() string {
	return string(f)
}
