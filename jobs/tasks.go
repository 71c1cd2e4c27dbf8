package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/theopen-institute/payroll/internal/payroll/shared"
	"github.com/theopen-institute/payroll/internal/payroll/voucher"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCreateSlips creates the missing slips for one voucher.
	TaskCreateSlips = "payroll:create_slips"
	// TaskSubmitSlips submits a voucher's slips and posts the accrual.
	TaskSubmitSlips = "payroll:submit_slips"
	// TaskEmailPayslips delivers payslip emails for a submitted voucher.
	TaskEmailPayslips = "payroll:email_payslips"
)

// VoucherPayload identifies the voucher a batch task operates on.
type VoucherPayload struct {
	VoucherID int64 `json:"voucher_id"`
}

// BatchRunner runs the voucher batches the worker processes.
type BatchRunner interface {
	RunCreateSlips(ctx context.Context, voucherID int64) (voucher.CreateResult, error)
	RunSubmitSlips(ctx context.Context, voucherID int64) (voucher.SubmitResult, error)
	RunEmailPayslips(ctx context.Context, voucherID int64) error
}

// NewCreateSlipsTask constructs an Asynq task.
func NewCreateSlipsTask(voucherID int64) (*asynq.Task, error) {
	data, err := json.Marshal(VoucherPayload{VoucherID: voucherID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCreateSlips, data), nil
}

// NewSubmitSlipsTask constructs an Asynq task.
func NewSubmitSlipsTask(voucherID int64) (*asynq.Task, error) {
	data, err := json.Marshal(VoucherPayload{VoucherID: voucherID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSubmitSlips, data), nil
}

// NewEmailPayslipsTask constructs an Asynq task.
func NewEmailPayslipsTask(voucherID int64) (*asynq.Task, error) {
	data, err := json.Marshal(VoucherPayload{VoucherID: voucherID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEmailPayslips, data), nil
}

// NewCreateSlipsHandler processes TaskCreateSlips tasks.
func NewCreateSlipsHandler(runner BatchRunner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload VoucherPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		res, err := runner.RunCreateSlips(ctx, payload.VoucherID)
		if err != nil {
			logger.Error("create slips task failed", "voucher_id", payload.VoucherID, "error", err)
			return err
		}
		logger.Info("create slips task done",
			"voucher_id", payload.VoucherID, "created", res.Created, "linked", res.Linked)
		return nil
	}
}

// NewSubmitSlipsHandler processes TaskSubmitSlips tasks.
func NewSubmitSlipsHandler(runner BatchRunner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload VoucherPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		res, err := runner.RunSubmitSlips(ctx, payload.VoucherID)
		if errors.Is(err, shared.ErrNoSubmittedSlips) {
			// Every slip was rejected; retrying cannot change the outcome.
			logger.Warn("submit slips task: nothing to post",
				"voucher_id", payload.VoucherID, "rejected", len(res.Rejected))
			return asynq.SkipRetry
		}
		if err != nil {
			logger.Error("submit slips task failed", "voucher_id", payload.VoucherID, "error", err)
			return err
		}
		logger.Info("submit slips task done", "voucher_id", payload.VoucherID,
			"submitted", len(res.Submitted), "rejected", len(res.Rejected), "outstanding", res.Outstanding)
		return nil
	}
}

// NewEmailPayslipsHandler processes TaskEmailPayslips tasks.
func NewEmailPayslipsHandler(runner BatchRunner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload VoucherPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if err := runner.RunEmailPayslips(ctx, payload.VoucherID); err != nil {
			logger.Error("email payslips task failed", "voucher_id", payload.VoucherID, "error", err)
			return err
		}
		logger.Info("email payslips task done", "voucher_id", payload.VoucherID)
		return nil
	}
}
