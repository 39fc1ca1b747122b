package delivery

import (
	"strings"
	"time"

	"github.com/spinhouse/delivery/pkg/shipper"
)

const orderDateLayout = "2006-01-02 15:04"

// PayloadDefaults fill the gateway fields an order may not carry. Missing
// optional fields never block a shipment.
type PayloadDefaults struct {
	PickupLocation      string
	ChannelID           string
	DefaultItemWeightKG float64
	Country             string
}

func (d PayloadDefaults) withFallbacks() PayloadDefaults {
	if d.PickupLocation == "" {
		d.PickupLocation = "Primary"
	}
	if d.DefaultItemWeightKG <= 0 {
		d.DefaultItemWeightKG = 0.5
	}
	if d.Country == "" {
		d.Country = shipper.DefaultCountry
	}
	return d
}

// BuildPayload maps an order onto the gateway payload.
func BuildPayload(o *Order, defaults PayloadDefaults, now time.Time) *shipper.ShipmentPayload {
	d := defaults.withFallbacks()

	items := make([]shipper.OrderItem, 0, len(o.Items))
	var weight, subTotal float64
	for _, it := range o.Items {
		units := it.Quantity
		if units <= 0 {
			units = 1
		}
		sku := it.SKU
		if sku == "" {
			sku = it.ID
		}
		name := it.Name
		if name == "" {
			name = sku
		}
		itemWeight := it.WeightKG
		if itemWeight <= 0 {
			itemWeight = d.DefaultItemWeightKG
		}

		items = append(items, shipper.OrderItem{
			Name:         name,
			SKU:          sku,
			Units:        units,
			SellingPrice: it.Price,
		})
		weight += itemWeight * float64(units)
		subTotal += it.Price * float64(units)
	}
	if weight == 0 {
		weight = d.DefaultItemWeightKG
	}
	if o.SubTotal > 0 {
		subTotal = o.SubTotal
	}

	orderDate := now
	if o.CreatedAt != nil && !o.CreatedAt.IsZero() {
		orderDate = *o.CreatedAt
	}

	country := o.Address.Country
	if country == "" {
		country = d.Country
	}

	first, last := splitName(o.CustomerName)

	method := shipper.PaymentPrepaid
	if o.COD {
		method = shipper.PaymentCOD
	}

	return &shipper.ShipmentPayload{
		OrderID:           o.ID,
		OrderDate:         orderDate.Format(orderDateLayout),
		PickupLocation:    d.PickupLocation,
		ChannelID:         d.ChannelID,
		BillingName:       first,
		BillingLastName:   last,
		BillingAddress:    o.Address.Line1,
		BillingAddress2:   o.Address.Line2,
		BillingCity:       o.Address.City,
		BillingPincode:    o.Address.Pincode,
		BillingState:      o.Address.State,
		BillingCountry:    country,
		BillingEmail:      o.Email,
		BillingPhone:      o.Phone,
		ShippingIsBilling: true,
		Items:             items,
		PaymentMethod:     method,
		SubTotal:          subTotal,
		Length:            shipper.DefaultLengthCM,
		Breadth:           shipper.DefaultBreadthCM,
		Height:            shipper.DefaultHeightCM,
		Weight:            weight,
	}
}

func splitName(full string) (first, last string) {
	fields := strings.Fields(full)
	switch len(fields) {
	case 0:
		return "Customer", ""
	case 1:
		return fields[0], ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}
