package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "generic not found", err: ErrNotFound, want: true},
		{name: "basket not found", err: ErrBasketNotFound, want: true},
		{name: "wrapped basket not found", err: fmt.Errorf("basket 42: %w", ErrBasketNotFound), want: true},
		{name: "catalog item not found", err: ErrCatalogItemNotFound, want: true},
		{name: "order not found", err: ErrOrderNotFound, want: true},
		{name: "validation error", err: ErrInvalidQuantity, want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.want {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsValidation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "invalid quantity", err: ErrInvalidQuantity, want: true},
		{name: "invalid price", err: ErrInvalidUnitPrice, want: true},
		{name: "buyer required", err: ErrBuyerRequired, want: true},
		{name: "joined address error", err: errors.Join(ErrAddressInvalid, errors.New("city")), want: true},
		{name: "persistence error", err: errors.New("connection reset"), want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidation(tt.err); got != tt.want {
				t.Errorf("IsValidation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsIdempotencyConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "idempotency already exists", err: ErrIdempotencyKeyAlreadyExists, want: true},
		{name: "idempotency hash mismatch", err: ErrIdempotencyHashMismatch, want: true},
		{
			name: "wrapped idempotency conflict",
			err:  errors.Join(ErrIdempotencyHashMismatch, errors.New("extra context")),
			want: true,
		},
		{name: "non idempotency error", err: ErrBasketNotFound, want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsIdempotencyConflict(tt.err); got != tt.want {
				t.Errorf("IsIdempotencyConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}
