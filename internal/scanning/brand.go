package scanning

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Brand identifies the delivery platform that issued a receipt
type Brand string

const (
	BrandIFood      Brand = "IFOOD"
	BrandZeDelivery Brand = "ZE_DELIVERY"
	BrandUberEats   Brand = "UBER_EATS"
	BrandRappi      Brand = "RAPPI"
	BrandOwnApp     Brand = "APLICATIVO_PROPRIO"
)

const brandDisplayNone = "Aplicativo Próprio"

var brandAliases = map[string]Brand{
	"IFOOD":             BrandIFood,
	"ZEDELIVERY":        BrandZeDelivery,
	"ZE":                BrandZeDelivery,
	"UBEREATS":          BrandUberEats,
	"UBER":              BrandUberEats,
	"RAPPI":             BrandRappi,
	"APLICATIVOPROPRIO": BrandOwnApp,
}

var brandDisplayNames = map[Brand]string{
	BrandIFood:      "iFood",
	BrandZeDelivery: "Zé Delivery",
	BrandUberEats:   "Uber Eats",
	BrandRappi:      "Rappi",
	BrandOwnApp:     brandDisplayNone,
}

// ParseBrand maps a brand name as written by the backend to its canonical
// value. Blank input yields the zero Brand; any other unrecognized name is
// treated as the establishment's own app.
func ParseBrand(s string) Brand {
	key := foldKey(s)
	if key == "" {
		return ""
	}
	if b, ok := brandAliases[key]; ok {
		return b
	}
	return BrandOwnApp
}

// DisplayName returns the human-readable platform name. Unknown and zero
// values display as the establishment's own app.
func (b Brand) DisplayName() string {
	if name, ok := brandDisplayNames[b]; ok {
		return name
	}
	return brandDisplayNone
}

// DeliveryType is how the order reaches the customer
type DeliveryType string

const (
	DeliveryPickup   DeliveryType = "pickup"
	DeliveryDelivery DeliveryType = "delivery"
)

// ParseDeliveryType recognizes pickup and delivery wording in Portuguese or
// English. Anything else yields the zero value.
func ParseDeliveryType(s string) DeliveryType {
	key := foldKey(s)
	switch {
	case key == "":
		return ""
	case strings.Contains(key, "RETIRADA"), strings.Contains(key, "PICKUP"),
		strings.Contains(key, "BALCAO"), strings.Contains(key, "RETIRAR"):
		return DeliveryPickup
	case strings.Contains(key, "ENTREGA"), strings.Contains(key, "DELIVERY"):
		return DeliveryDelivery
	}
	return ""
}

// DisplayName returns the label printed on reports, or "" for the zero value.
func (d DeliveryType) DisplayName() string {
	switch d {
	case DeliveryPickup:
		return "Retirada em Loja"
	case DeliveryDelivery:
		return "Entrega"
	}
	return ""
}

// foldKey uppercases s, strips diacritics and drops everything that is not
// a letter or digit, so "Zé Delivery" and "ze_delivery" share a key.
func foldKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range strings.ToUpper(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
