package marketplace

import (
	"time"

	"github.com/google/uuid"
)

// Policy toggles behaviour the legacy marketplace left open.
type Policy struct {
	// RequireFutureDeadline rejects deadlines that are not after now on create and update.
	RequireFutureDeadline bool
	// RejectPendingOnAccept rejects every other pending application when one is accepted.
	RejectPendingOnAccept bool
}

type options struct {
	suggester Suggester
	recorder  Recorder
	policy    Policy
	now       func() time.Time
	newID     func() string
}

// Option configures the lifecycle, settlement and feedback services.
type Option func(*options)

func buildOptions(opts []Option) options {
	o := options{
		recorder: nopRecorder{},
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithSuggester enables AI suggestions on task creation.
func WithSuggester(s Suggester) Option {
	return func(o *options) { o.suggester = s }
}

// WithRecorder sends events to r.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithPolicy sets the marketplace policy.
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(f func() string) Option {
	return func(o *options) { o.newID = f }
}
