package address

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalid = errors.New("invalid shipping address")
)

// ShippingAddress is the buyer-declared delivery address. It is stored on the
// order row as a JSON text column, so it is always validated on the way in and
// on the way out.
type ShippingAddress struct {
	FullName        string `json:"fullName"`
	AddressLine1    string `json:"addressLine1"`
	AddressLine2    string `json:"addressLine2,omitempty"`
	City            string `json:"city"`
	StateOrProvince string `json:"stateOrProvince"`
	PostalCode      string `json:"postalCode"`
	Country         string `json:"country"`
	PhoneNumber     string `json:"phoneNumber,omitempty"`
}

// Validate reports the first missing required field.
func (a ShippingAddress) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"fullName", a.FullName},
		{"addressLine1", a.AddressLine1},
		{"city", a.City},
		{"postalCode", a.PostalCode},
		{"country", a.Country},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalid, f.name)
		}
	}
	if len(a.Country) != 2 {
		return fmt.Errorf("%w: country must be a two-letter code, got %q", ErrInvalid, a.Country)
	}
	return nil
}

// Normalize trims every field and upper-cases the country code.
func (a ShippingAddress) Normalize() ShippingAddress {
	a.FullName = strings.TrimSpace(a.FullName)
	a.AddressLine1 = strings.TrimSpace(a.AddressLine1)
	a.AddressLine2 = strings.TrimSpace(a.AddressLine2)
	a.City = strings.TrimSpace(a.City)
	a.StateOrProvince = strings.TrimSpace(a.StateOrProvince)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	a.PhoneNumber = strings.TrimSpace(a.PhoneNumber)
	return a
}

// Encode serializes a valid address for storage.
func Encode(a ShippingAddress) (string, error) {
	a = a.Normalize()
	if err := a.Validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode parses a stored address. Unknown fields are rejected.
func Decode(raw string) (ShippingAddress, error) {
	var a ShippingAddress
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return ShippingAddress{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := a.Validate(); err != nil {
		return ShippingAddress{}, err
	}
	return a, nil
}
