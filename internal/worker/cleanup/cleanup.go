// Package cleanup は期限切れデータの自動削除ジョブを提供する。
// 期限切れのセッションと、未使用のまま有効期限を過ぎた招待を定期的に削除する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SessionPurger は期限切れセッションの削除インターフェース。
type SessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// InvitationPurger は期限切れ招待の削除インターフェース。
type InvitationPurger interface {
	DeleteExpiredUnaccepted(ctx context.Context, now time.Time) (int64, error)
}

// Recorder は削除件数を記録するインターフェース。
type Recorder interface {
	RecordCleanup(kind string, deleted int64)
}

// Result は1回の実行で削除した件数。
type Result struct {
	Sessions    int64
	Invitations int64
}

// CleanupJob は期限切れデータの自動削除ジョブ。冪等な削除処理を保証する。
type CleanupJob struct {
	sessions    SessionPurger
	invitations InvitationPurger
	recorder    Recorder
	logger      *slog.Logger
	interval    time.Duration
	now         func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// 招待の保持期間は有効期限と同じで、期限を過ぎた時点で削除対象になる。
func NewCleanupJob(sessions SessionPurger, invitations InvitationPurger, recorder Recorder, logger *slog.Logger, interval time.Duration) *CleanupJob {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		sessions:    sessions,
		invitations: invitations,
		recorder:    recorder,
		logger:      logger,
		interval:    interval,
		now:         time.Now,
	}
}

// Start は起動時に1回実行し、以降intervalごとに実行する。ctxのキャンセルで終了する。
func (j *CleanupJob) Start(ctx context.Context) {
	j.logger.Info("クリーンアップジョブを開始します",
		slog.String("interval", j.interval.String()),
	)
	_, _ = j.Run(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			_, _ = j.Run(ctx)
		}
	}
}

// Run は期限切れのセッションと招待を削除する。
// 片方の削除に失敗しても、もう片方は実行する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	now := j.now()

	var res Result
	var errs []error

	n, err := j.sessions.DeleteExpired(ctx, now)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました", slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("セッションのクリーンアップに失敗: %w", err))
	} else {
		res.Sessions = n
		j.record("sessions", n)
	}

	n, err = j.invitations.DeleteExpiredUnaccepted(ctx, now)
	if err != nil {
		j.logger.Error("期限切れ招待の削除に失敗しました", slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("招待のクリーンアップに失敗: %w", err))
	} else {
		res.Invitations = n
		j.record("invitations", n)
	}

	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_sessions", res.Sessions),
		slog.Int64("deleted_invitations", res.Invitations),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return res, nil
}

func (j *CleanupJob) record(kind string, n int64) {
	if j.recorder != nil {
		j.recorder.RecordCleanup(kind, n)
	}
}
