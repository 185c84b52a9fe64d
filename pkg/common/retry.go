package common

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/ahrav/grasp/pkg/common/logger"
)

// RetryConfig bounds ConnectWithRetry.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryConfig retries for up to 5 minutes, starting with 5 second intervals.
var DefaultRetryConfig = RetryConfig{InitialInterval: 5 * time.Second, MaxElapsedTime: 5 * time.Minute}

// ConnectWithRetry attempts to establish a connection with exponential backoff.
// It helps ride out temporary network issues or dependencies that are still
// starting while this service boots.
func ConnectWithRetry[T any](
	ctx context.Context,
	log *logger.Logger,
	name string,
	cfg RetryConfig,
	connect func() (T, error),
) (T, error) {
	var conn T

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = cfg.MaxElapsedTime
	expBackoff.InitialInterval = cfg.InitialInterval

	operation := func() error {
		var err error
		conn, err = connect()
		if err != nil {
			log.Warn(ctx, "Connection attempt failed, will retry", "dependency", name, "error", err)
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		var zero T
		return zero, fmt.Errorf("failed to connect to %s after retries: %w", name, err)
	}

	return conn, nil
}
