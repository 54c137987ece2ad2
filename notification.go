package mailbus

import (
	"context"

	"github.com/coregx/mailbus/model"
)

// AlertService receives operational events worth a human's attention.
//
// An unreachable bucket after the full connect budget is the only condition
// treated as an alert; it is reported here and in logs/metrics, never by
// crashing the process.
type AlertService interface {
	// NotifyBucketUnavailable is called when a write gives up on a bucket.
	NotifyBucketUnavailable(ctx context.Context, bucket string, attempts int, cause error) error

	// NotifyMessageDropped is called when a message is discarded without
	// persistence for a reason other than exclusion (e.g. malformed input).
	NotifyMessageDropped(ctx context.Context, msg model.Message, reason string) error
}

// NoOpAlertService ignores all alerts.
type NoOpAlertService struct{}

// NotifyBucketUnavailable does nothing.
func (n *NoOpAlertService) NotifyBucketUnavailable(_ context.Context, _ string, _ int, _ error) error {
	return nil
}

// NotifyMessageDropped does nothing.
func (n *NoOpAlertService) NotifyMessageDropped(_ context.Context, _ model.Message, _ string) error {
	return nil
}

// LoggingAlertService writes alerts to a Logger.
type LoggingAlertService struct {
	logger Logger
}

// NewLoggingAlertService creates a new LoggingAlertService.
func NewLoggingAlertService(logger Logger) *LoggingAlertService {
	return &LoggingAlertService{logger: logger}
}

// NotifyBucketUnavailable logs the outage.
func (n *LoggingAlertService) NotifyBucketUnavailable(_ context.Context, bucket string, attempts int, cause error) error {
	n.logger.Errorf("ALERT bucket unavailable: bucket=%s, attempts=%d, cause=%v", bucket, attempts, cause)
	return nil
}

// NotifyMessageDropped logs the dropped message.
func (n *LoggingAlertService) NotifyMessageDropped(_ context.Context, msg model.Message, reason string) error {
	n.logger.Warnf("Message dropped: id=%s, domain=%s, reason=%s", msg.ID, msg.Domain, reason)
	return nil
}
