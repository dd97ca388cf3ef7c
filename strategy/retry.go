package strategy

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var retryValidator = validator.New()

// RetryOptions configures per-item retry and per-node restart
// behavior for the Resilient strategy (§4.5.1). It is immutable once
// built: callers construct a value and hand it to Resilient/WithItemRetry.
type RetryOptions struct {
	// MaxItemRetries bounds retries of a single failing item.
	MaxItemRetries int `validate:"gte=0"`
	// MaxNodeRestartAttempts bounds how many times a node may be
	// restarted across the life of a run.
	MaxNodeRestartAttempts int `validate:"gte=0"`
	// MaxSequentialNodeAttempts is a global safety bound on total
	// restart attempts across all failures, preventing infinite
	// restart loops even if individual counters are reset.
	MaxSequentialNodeAttempts int `validate:"gte=0"`
	// MaxMaterializedItems bounds the resilient strategy's replay
	// buffer. Required (> 0) whenever RestartNode may be selected;
	// that conditional requirement is enforced at restart time by
	// Resilient, not here, since it depends on a decision the handler
	// makes at run time rather than on the struct's shape.
	MaxMaterializedItems int `validate:"gte=0"`
	// ShouldRetry decides, per error, whether a Retry decision should
	// actually be honored. A nil ShouldRetry retries every error the
	// node-level handler marked Retry. Must be deterministic (§3) —
	// untestable at runtime, so this is documented rather than
	// enforced.
	ShouldRetry func(error) bool `validate:"-"`
	// DelayStrategy computes the wait before each retry attempt. A
	// nil DelayStrategy retries immediately.
	DelayStrategy *DelayStrategy `validate:"-"`
}

func (o RetryOptions) shouldRetry(err error) bool {
	if o.ShouldRetry == nil {
		return true
	}
	return o.ShouldRetry(err)
}

// Validate checks the structural requirements §3 places on
// RetryOptions via struct-tag validation. It does not and cannot
// verify that ShouldRetry is deterministic — that is a caller
// obligation, documented here rather than enforced.
func (o RetryOptions) Validate() error {
	if err := retryValidator.Struct(o); err != nil {
		return fmt.Errorf("strategy: invalid RetryOptions: %w", err)
	}
	return nil
}
