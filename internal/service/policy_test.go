package service

import (
	"strings"
	"testing"

	"pin-ledger/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestValidateAccountID(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		valid bool
	}{
		{"simple", "alice", true},
		{"mixed", "Alice_01.b-c", true},
		{"max length", strings.Repeat("a", 32), true},
		{"empty", "", false},
		{"too long", strings.Repeat("a", 33), false},
		{"space", "al ice", false},
		{"slash", "a/b", false},
		{"unicode", "álice", false},
		{"html", "<b>", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAccountID(tt.id, 32)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrInvalidAccountID)
			}
		})
	}
}

func TestValidatePin(t *testing.T) {
	tests := []struct {
		pin    string
		length int
		valid  bool
	}{
		{"1234", 4, true},
		{"0000", 4, true},
		{"123456", 6, true},
		{"123", 4, false},
		{"12345", 4, false},
		{"12a4", 4, false},
		{"١٢٣٤", 4, false}, // non-ASCII digits
		{"", 4, false},
		{" 123", 4, false},
	}

	for _, tt := range tests {
		t.Run(tt.pin, func(t *testing.T) {
			err := ValidatePin(tt.pin, tt.length)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrInvalidPin)
			}
		})
	}
}
