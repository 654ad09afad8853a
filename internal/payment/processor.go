// Package payment defines the external payment processor boundary. Only the
// interface matters here; gateway protocol details live in the processor
// implementation behind it.
package payment

import (
	"context"
	"errors"
	"strings"
)

// ErrCheckoutNotFound indicates the checkout reference could not be verified
var ErrCheckoutNotFound = errors.New("checkout reference not found")

// Receipt is a verified checkout result
type Receipt struct {
	Reference string
	Credits   int
}

// Processor verifies completed checkouts with the payment provider
type Processor interface {
	VerifyCheckout(ctx context.Context, reference string) (*Receipt, error)
}

// OfflineProcessor resolves checkout references against a static package
// table without talking to a provider. Used for dev and tests.
type OfflineProcessor struct {
	packages map[string]int
}

// NewOfflineProcessor creates a processor with the default credit packages
func NewOfflineProcessor() *OfflineProcessor {
	return &OfflineProcessor{
		packages: map[string]int{
			"starter": 50,
			"plus":    120,
			"studio":  300,
		},
	}
}

// VerifyCheckout accepts references in the form "test_<package>"
func (p *OfflineProcessor) VerifyCheckout(ctx context.Context, reference string) (*Receipt, error) {
	name, ok := strings.CutPrefix(reference, "test_")
	if !ok {
		return nil, ErrCheckoutNotFound
	}

	credits, ok := p.packages[name]
	if !ok {
		return nil, ErrCheckoutNotFound
	}

	return &Receipt{Reference: reference, Credits: credits}, nil
}
