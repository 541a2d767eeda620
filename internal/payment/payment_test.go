package payment

import (
	"context"
	"testing"

	"github.com/wappzakelijk/console/internal/sync"
)

func TestCreateRejectsInvalidRequests(t *testing.T) {
	svc := NewService("http://provider.invalid", "company-1", nil)

	cases := []struct {
		name string
		req  Request
	}{
		{"zero amount", Request{Amount: 0, Description: "factuur 42"}},
		{"negative amount", Request{Amount: -250, Description: "factuur 42"}},
		{"missing description", Request{Amount: 1500}},
		{"blank description", Request{Amount: 1500, Description: "   "}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.req)
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !sync.IsValidation(err) {
				t.Fatalf("error = %v, want validation", err)
			}
		})
	}
}

func TestValidateAcceptsMinorUnitAmounts(t *testing.T) {
	req := Request{Amount: 1, Description: "één cent"}
	if err := req.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
