// Package jobs hosts the asynq worker, scheduler and task definitions.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-pay/internal/ippay"
	jobmetrics "github.com/meridian-erp/meridian-pay/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTokenExpiryScan retires payment tokens whose card expiry passed.
	TaskTokenExpiryScan = "token:expiry_scan"
)

// TokenExpiryScanPayload parameterises an expiry scan run.
type TokenExpiryScanPayload struct {
	RequestedAt time.Time `json:"requested_at"`
}

// NewTokenExpiryScanTask constructs an asynq task for the nightly scan.
func NewTokenExpiryScanTask(requestedAt time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(TokenExpiryScanPayload{RequestedAt: requestedAt})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTokenExpiryScan, data), nil
}

// NewTokenExpiryScanHandler builds the handler that deactivates expired
// tokens through the ippay service. Metrics may be nil.
func NewTokenExpiryScanHandler(service *ippay.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload TokenExpiryScanPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track(TaskTokenExpiryScan)
		count, err := service.DeactivateExpired(ctx)
		if err != nil {
			logger.Error("token expiry scan", slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("token expiry scan finished",
			slog.Int64("deactivated", count),
			slog.Time("requested_at", payload.RequestedAt))
		return tracker.End(nil)
	}
}
