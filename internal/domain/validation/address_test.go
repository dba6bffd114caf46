package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSolanaAddress(t *testing.T) {
	tests := []struct {
		address string
		want    bool
	}{
		{"So11111111111111111111111111111111111111112", true},
		{"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", true},
		{"", false},
		{"short", false},
		{"0xdeadbeef00000000000000000000000000000000", false},
		{"O0IlO0IlO0IlO0IlO0IlO0IlO0IlO0IlO0Il", false},
		{"So11111111111111111111111111111111111111112 ", false},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSolanaAddress(tt.address))
		})
	}
}

func TestIsPublicKey(t *testing.T) {
	assert.True(t, IsPublicKey("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"))
	// Passes the character filter but does not decode to 32 bytes.
	assert.False(t, IsPublicKey("11111111111111111111111111111111111"))
}

func TestNewValidator_SolanaAddressTag(t *testing.T) {
	type request struct {
		Wallet string `validate:"required,solana_address"`
	}

	v := NewValidator()
	assert.NoError(t, v.Struct(request{Wallet: "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"}))
	assert.Error(t, v.Struct(request{Wallet: "not-a-wallet"}))
}
