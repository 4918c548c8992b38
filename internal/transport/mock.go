package transport

import (
	"context"
	"math/rand"
)

// MockSender simulates a provider for local runs and seeding. It succeeds
// with the configured rate and occasionally reports a hard bounce.
type MockSender struct {
	SuccessRate float64 // 0..1, defaults to 0.9 when zero
	BounceRate  float64 // portion of failures reported as hard bounces
}

func (m *MockSender) Send(ctx context.Context, msg Message) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	success := m.SuccessRate
	if success == 0 {
		success = 0.9
	}
	r := rand.Float64()
	if r < success {
		return Result{Kind: Delivered}, nil
	}
	if r < success+(1-success)*m.BounceRate {
		return Result{Kind: HardBounce, Code: "550 user unknown"}, nil
	}
	return Result{Kind: TransientError, Code: "451 try again later"}, nil
}
