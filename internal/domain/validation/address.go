// Package validation checks user supplied Solana addresses and wires the
// same rule into go-playground/validator.
package validation

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mr-tron/base58"
)

var addressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// IsSolanaAddress applies the base58 character and length filter used by the
// aggregation endpoint.
func IsSolanaAddress(address string) bool {
	return addressPattern.MatchString(address)
}

// IsPublicKey additionally requires the address to decode to 32 bytes.
func IsPublicKey(address string) bool {
	if !IsSolanaAddress(address) {
		return false
	}
	decoded, err := base58.Decode(address)
	return err == nil && len(decoded) == 32
}

// NewValidator returns a validator with the solana_address tag registered.
// Field errors carry the JSON field name.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("solana_address", func(fl validator.FieldLevel) bool {
		return IsPublicKey(fl.Field().String())
	})
	return v
}
