package refcode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerate(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "ORDER_42_20240101120000", Generate("order", 42, at))
	assert.Equal(t, "BOOKING_7_20240101120000", Generate("BOOKING", 7, at))
}

func TestStrip(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Underscores", "ORDER_42_20240101120000", "ORDER4220240101120000"},
		{"Spaces and dashes", "ORDER 42 - thanh toan", "ORDER42thanhtoan"},
		{"Already clean", "ORDER42", "ORDER42"},
		{"Empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Strip(tt.input))
		})
	}
}

func TestCandidates(t *testing.T) {
	candidates := Candidates("ORDER_42_20240101120000", "order", 42)

	assert.Equal(t, []string{
		"ORDER_42_20240101120000",
		"ORDER4220240101120000",
		"ORDER42",
	}, candidates)
}

func TestContainsAny(t *testing.T) {
	candidates := Candidates("BOOKING_42_20240101120000", "booking", 42)

	tests := []struct {
		name        string
		description string
		expected    bool
	}{
		{"Raw reference", "BOOKING_42_20240101120000 chuyen khoan", true},
		{"Stripped by bank", "BOOKING4220240101120000 transfer", true},
		{"Short form", "thanh toan BOOKING42", true},
		{"Lowercase", "booking_42_20240101120000", true},
		{"Bank re-spaced", "BOOKING 42 20240101120000", true},
		{"Different owner", "BOOKING_43_20240101120000", false},
		{"Unrelated", "tien an trua", false},
		{"Empty description", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ContainsAny(tt.description, candidates))
		})
	}
}
