package imagegen

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedGeneratorSuccess(t *testing.T) {
	g := &SimulatedGenerator{Latency: time.Millisecond, FailureRate: 0}

	result, err := g.Generate(context.Background(), Request{Prompt: "a fox", Model: "flux-pro"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.ImageID)
	assert.Equal(t, "flux-pro", result.Model)
}

func TestSimulatedGeneratorFailure(t *testing.T) {
	g := &SimulatedGenerator{Latency: time.Millisecond, FailureRate: 1}

	_, err := g.Generate(context.Background(), Request{Prompt: "a fox", Model: "flux-pro"})
	require.ErrorIs(t, err, ErrModelUnavailable)
}

func TestSimulatedGeneratorHonorsContext(t *testing.T) {
	g := &SimulatedGenerator{Latency: time.Minute, FailureRate: 0}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := g.Generate(ctx, Request{Prompt: "a fox", Model: "flux-pro"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
