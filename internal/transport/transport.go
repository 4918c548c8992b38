// Package transport defines the contract between the dispatch engine and
// the mail provider. The engine treats delivery as a single abstract send
// call; connection pooling and provider-level retries live behind Sender.
package transport

import (
	"context"
	"errors"

	"github.com/brightpost/campaign-engine/internal/model"
)

// Message is one fully-rendered email ready for delivery.
type Message struct {
	FromName  string
	FromEmail string
	To        string
	Subject   string
	HTMLBody  string
}

// ResultKind is the closed set of provider responses.
type ResultKind string

const (
	Delivered      ResultKind = "delivered"
	TransientError ResultKind = "transient_error"
	PermanentError ResultKind = "permanent_error"
	HardBounce     ResultKind = "hard_bounce"
)

// Result is what the provider reported for one send call.
type Result struct {
	Kind ResultKind
	Code string
}

// Sender delivers a single message. Implementations must honor ctx
// cancellation; transport-level failures (connect, network) are returned
// as errors and treated as transient by the engine.
type Sender interface {
	Send(ctx context.Context, msg Message) (Result, error)
}

// Classify maps a transport result onto a job outcome. The mapping is
// fixed: timeouts and network errors are transient, provider 4xx-style
// rejections are permanent, hard bounces are terminal and feed the
// suppression list.
func Classify(res Result, err error) model.Outcome {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return model.TransientFailure("timeout")
		}
		return model.TransientFailure(err.Error())
	}
	switch res.Kind {
	case Delivered:
		return model.Sent()
	case TransientError:
		return model.TransientFailure(res.Code)
	case PermanentError:
		return model.PermanentFailure(res.Code)
	case HardBounce:
		return model.Bounced(res.Code)
	default:
		// Unknown provider responses are retried rather than dropped.
		return model.TransientFailure("unknown_transport_result")
	}
}
