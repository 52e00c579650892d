package tbtcswap

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig is the exponential backoff policy used for operations that
// must eventually succeed because funds are at stake.
type RetryConfig struct {
	InitialInterval time.Duration `long:"initialinterval" description:"Delay before the first retry of a ledger or settlement operation."`
	MaxInterval     time.Duration `long:"maxinterval" description:"Maximum delay between two retries."`
	MaxElapsedTime  time.Duration `long:"maxelapsedtime" description:"Time after which a failing operation is escalated to an alert. Zero retries forever."`
	MaxAttempts     uint64        `long:"maxattempts" description:"Number of retries after which a failing operation is escalated to an alert. Zero retries until the max elapsed time."`
}

// DefaultRetryConfig is the retry policy used if none is configured.
var DefaultRetryConfig = RetryConfig{
	InitialInterval: time.Second,
	MaxInterval:     time.Minute,
	MaxElapsedTime:  time.Hour * 6,
}

// newBackOff returns a fresh backoff policy bound to the context.
func (c RetryConfig) newBackOff(ctx context.Context) backoff.BackOff {
	expBackOff := backoff.NewExponentialBackOff()
	expBackOff.InitialInterval = c.InitialInterval
	expBackOff.MaxInterval = c.MaxInterval
	expBackOff.MaxElapsedTime = c.MaxElapsedTime

	var policy backoff.BackOff = expBackOff
	if c.MaxAttempts > 0 {
		policy = backoff.WithMaxRetries(policy, c.MaxAttempts)
	}

	return backoff.WithContext(policy, ctx)
}

// warnLogger is the part of a logger that retries are reported to.
type warnLogger interface {
	Warnf(format string, params ...interface{})
}

// retry runs op until it succeeds, the policy gives up or the context is
// canceled. The last error is returned if op never succeeded.
func (c RetryConfig) retry(ctx context.Context, log warnLogger, name string,
	op func() error) error {

	attempt := 0
	notify := func(err error, next time.Duration) {
		attempt++
		log.Warnf("%v failed (attempt %d), retrying in %v: %v", name,
			attempt, next, err)
	}

	return backoff.RetryNotify(op, c.newBackOff(ctx), notify)
}
