package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const progressTTL = time.Hour

// ProgressReport is the state of one voucher's batch stages.
type ProgressReport struct {
	VoucherID int64           `json:"voucher_id"`
	Stages    []StageProgress `json:"stages"`
}

// StageProgress tracks one stage of a voucher batch.
type StageProgress struct {
	Stage    string `json:"stage"`
	Done     int    `json:"done"`
	Total    int    `json:"total"`
	Finished bool   `json:"finished"`
}

// ProgressTracker records batch progress in Redis so operators can poll
// long runs. Writes are best effort; a Redis hiccup never fails the batch.
type ProgressTracker struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewProgressTracker builds the tracker.
func NewProgressTracker(rdb *redis.Client, logger *slog.Logger) *ProgressTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressTracker{rdb: rdb, logger: logger}
}

func progressKey(voucherID int64, stage string) string {
	return fmt.Sprintf("payroll:voucher:%d:progress:%s", voucherID, stage)
}

// Publish records how far a stage has advanced.
func (t *ProgressTracker) Publish(ctx context.Context, voucherID int64, stage string, done, total int) {
	key := progressKey(voucherID, stage)
	pipe := t.rdb.Pipeline()
	pipe.HSet(ctx, key, "done", done, "total", total, "finished", 0)
	pipe.Expire(ctx, key, progressTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn("publish progress", "voucher_id", voucherID, "stage", stage, "error", err)
	}
}

// Finish marks a stage as complete.
func (t *ProgressTracker) Finish(ctx context.Context, voucherID int64, stage string) {
	key := progressKey(voucherID, stage)
	pipe := t.rdb.Pipeline()
	pipe.HSet(ctx, key, "finished", 1)
	pipe.Expire(ctx, key, progressTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn("finish progress", "voucher_id", voucherID, "stage", stage, "error", err)
	}
}

// Read returns the recorded progress for both batch stages. Stages that
// never ran are omitted.
func (t *ProgressTracker) Read(ctx context.Context, voucherID int64) (ProgressReport, error) {
	report := ProgressReport{VoucherID: voucherID}
	for _, stage := range []string{"create", "submit"} {
		fields, err := t.rdb.HGetAll(ctx, progressKey(voucherID, stage)).Result()
		if err != nil {
			return ProgressReport{}, err
		}
		if len(fields) == 0 {
			continue
		}
		report.Stages = append(report.Stages, StageProgress{
			Stage:    stage,
			Done:     atoiField(fields, "done"),
			Total:    atoiField(fields, "total"),
			Finished: fields["finished"] == "1",
		})
	}
	return report, nil
}

func atoiField(fields map[string]string, name string) int {
	var n int
	_, _ = fmt.Sscanf(fields[name], "%d", &n)
	return n
}

func writeJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
