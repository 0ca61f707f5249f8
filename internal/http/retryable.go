package http

import (
	nethttp "net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/rescale/cloudfm/internal/logging"
)

// retryLogger implements the retryablehttp.LeveledLogger interface on top of
// zerolog. Info and Debug chatter from every request is dropped.
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

// NewRetryableClient wraps base in a retryablehttp client and returns it as a
// standard *http.Client. Used as the transport for SDKs that would otherwise
// run their own retry loop.
func NewRetryableClient(base *nethttp.Client, maxRetries int, logger *logging.Logger) *nethttp.Client {
	if logger == nil {
		logger = logging.Nop()
	}
	if base == nil {
		base = &nethttp.Client{}
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = base
	rc.RetryMax = maxRetries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 15 * time.Second
	rc.Logger = &retryLogger{logger: logger}
	return rc.StandardClient()
}
