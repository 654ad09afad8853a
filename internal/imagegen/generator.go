// Package imagegen defines the model-call collaborator boundary. The real
// provider API lives behind the Generator interface; the service and worker
// treat it as a black box with two outcomes.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// ErrModelUnavailable indicates the provider rejected or could not serve
// the request. Jobs hitting it are failed and refunded; users only see a
// generic retry message.
var ErrModelUnavailable = errors.New("model unavailable")

// Request carries the parameters for a single model call
type Request struct {
	Prompt      string
	Model       string
	SourceImage string // set for edit requests
}

// Result is a successful model call outcome
type Result struct {
	ImageID string
	Model   string
}

// Generator is the model-call collaborator
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// SimulatedGenerator stands in for a real provider: it sleeps for a
// configurable latency and fails a configurable fraction of calls.
type SimulatedGenerator struct {
	Latency     time.Duration
	FailureRate float64
}

// NewSimulatedGenerator returns a generator with dev-friendly defaults
func NewSimulatedGenerator() *SimulatedGenerator {
	return &SimulatedGenerator{
		Latency:     2 * time.Second,
		FailureRate: 0.1,
	}
}

func (g *SimulatedGenerator) Generate(ctx context.Context, req Request) (*Result, error) {
	select {
	case <-time.After(g.Latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if rand.Float64() < g.FailureRate {
		return nil, fmt.Errorf("simulated provider error for model %s: %w", req.Model, ErrModelUnavailable)
	}

	return &Result{
		ImageID: uuid.New().String(),
		Model:   req.Model,
	}, nil
}
