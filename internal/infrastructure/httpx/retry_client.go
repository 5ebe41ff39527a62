// Package httpx builds the retrying HTTP client shared by upstream adapters.
package httpx

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/turtacn/compliance-advisor/pkg/logger"
)

// leveledLogger routes retryablehttp's retry chatter through the service logger.
type leveledLogger struct {
	log logger.Logger
}

// NewLeveledLogger adapts log to retryablehttp.LeveledLogger.
func NewLeveledLogger(log logger.Logger) retryablehttp.LeveledLogger {
	return &leveledLogger{log: log}
}

func (l *leveledLogger) Error(msg string, kv ...interface{}) {
	l.log.Error(context.Background(), msg, nil, fields(kv)...)
}

func (l *leveledLogger) Info(msg string, kv ...interface{}) {
	l.log.Info(context.Background(), msg, fields(kv)...)
}

// Debug is where retryablehttp logs every request; keep it at debug.
func (l *leveledLogger) Debug(msg string, kv ...interface{}) {
	l.log.Debug(context.Background(), msg, fields(kv)...)
}

func (l *leveledLogger) Warn(msg string, kv ...interface{}) {
	l.log.Warn(context.Background(), msg, fields(kv)...)
}

func fields(kv []interface{}) []logger.Field {
	out := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}

// NewRetryClient returns a client that retries connection errors, 429 and 5xx
// up to retryMax times and hands the final response back to the caller instead
// of converting it to an error.
func NewRetryClient(log logger.Logger, retryMax int, timeout time.Duration) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.RetryWaitMin = time.Second
	rc.RetryWaitMax = 30 * time.Second
	rc.HTTPClient.Timeout = timeout
	rc.Logger = NewLeveledLogger(log)
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc
}
