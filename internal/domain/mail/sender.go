package mail

import (
	"context"
	"errors"
	"fmt"
)

// Sender delivers one message. This keeps the application logic away from the concrete transport.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ErrDeliveryFailed marks any transport, authentication or address failure for one message.
var ErrDeliveryFailed = errors.New("delivery failed")

// DeliveryError carries the recipient and the underlying transport error.
type DeliveryError struct {
	To    string
	Cause error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%v to %s: %v", ErrDeliveryFailed, e.To, e.Cause)
}

func (e *DeliveryError) Is(target error) bool { return target == ErrDeliveryFailed }

func (e *DeliveryError) Unwrap() error { return e.Cause }
