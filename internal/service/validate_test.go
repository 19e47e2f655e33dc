package service

import (
	"strings"
	"testing"
)

func TestValidateAddress(t *testing.T) {
	mainnet := &Service{}
	testnet := &Service{testnet: true}

	valid := "bc1q" + strings.Repeat("q", 38)

	cases := []struct {
		name    string
		svc     *Service
		address string
		ok      bool
	}{
		{"valid mainnet", mainnet, valid, true},
		{"valid testnet", testnet, "tb1q" + strings.Repeat("q", 38), true},
		{"wrong network", mainnet, "tb1q" + strings.Repeat("q", 38), false},
		{"too short", mainnet, "bc1q" + strings.Repeat("q", 37), false},
		{"too long", mainnet, "bc1q" + strings.Repeat("q", 87), false},
		{"max length", mainnet, "bc1q" + strings.Repeat("q", 86), true},
		{"uppercase", mainnet, "bc1Q" + strings.Repeat("q", 38), false},
		{"contains b", mainnet, "bc1b" + strings.Repeat("q", 38), false},
		{"contains i", mainnet, "bc1q" + strings.Repeat("q", 37) + "i", false},
		{"contains o", mainnet, "bc1qo" + strings.Repeat("q", 37), false},
		{"contains 1 in body", mainnet, "bc1q1" + strings.Repeat("q", 37), false},
		{"symbol", mainnet, "bc1q" + strings.Repeat("q", 37) + "!", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.svc.validateAddress(tc.address)
			if tc.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestPaymentURI(t *testing.T) {
	t.Run("Given a label and message When building the URI Then both are encoded", func(t *testing.T) {
		uri := paymentURI("bc1qexample", 0.0025, "steve the miner", "gg & hf")

		if !strings.HasPrefix(uri, "bitcoin:bc1qexample?") {
			t.Fatalf("unexpected URI %s", uri)
		}
		if !strings.Contains(uri, "amount=0.0025") {
			t.Errorf("amount missing from %s", uri)
		}
		if !strings.Contains(uri, "label=steve+the+miner") {
			t.Errorf("label not encoded in %s", uri)
		}
		if !strings.Contains(uri, "message=gg+%26+hf") {
			t.Errorf("message not encoded in %s", uri)
		}
	})

	t.Run("Given no metadata When building the URI Then only the amount appears", func(t *testing.T) {
		uri := paymentURI("bc1qexample", 0.5, "", "")
		if uri != "bitcoin:bc1qexample?amount=0.5" {
			t.Errorf("unexpected URI %s", uri)
		}
	})
}
