package retry

import (
	"testing"
	"time"
)

func TestDefaultRunnerConfigValidates(t *testing.T) {
	if err := DefaultRunnerConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if err := DefaultPessimisticRunnerConfig().Validate(); err != nil {
		t.Fatalf("default pessimistic config should validate: %v", err)
	}
}

func TestValidateRejectsBadFields(t *testing.T) {
	cases := []Config{
		DefaultRunnerConfig().WithMaxRetries(-1),
		DefaultRunnerConfig().WithInitialBackoff(0),
		{MaxRetries: 1, InitialBackoff: time.Second, MaxBackoff: time.Millisecond, JitterFactor: 0.5},
		DefaultRunnerConfig().WithJitterFactor(2),
	}
	for i, c := range cases {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestBackoffIsBoundedByMax(t *testing.T) {
	c := DefaultRunnerConfig()
	for attempt := 0; attempt < 10; attempt++ {
		d := c.Backoff(attempt)
		if d > c.MaxBackoff+c.MaxBackoff/2 {
			t.Fatalf("attempt %d: backoff %v exceeds max*1.5 bound %v", attempt, d, c.MaxBackoff)
		}
	}
}

func TestWithBuildersAreImmutable(t *testing.T) {
	base := DefaultRunnerConfig()
	derived := base.WithMaxRetries(99)
	if base.MaxRetries == 99 {
		t.Fatalf("With* mutated the receiver")
	}
	if derived.MaxRetries != 99 {
		t.Fatalf("With* did not apply to the copy")
	}
}
