package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/moai/internal/authz"
	"github.com/hitoshi/moai/internal/badge"
	"github.com/hitoshi/moai/internal/middleware"
	"github.com/hitoshi/moai/internal/model"
	"github.com/hitoshi/moai/internal/progress"
)

// ProgressServiceInterface は週次進捗の集計に必要なサービスインターフェース。
type ProgressServiceInterface interface {
	GetWeeklyProgress(ctx context.Context, actor authz.Actor, clientID string) (*progress.WeeklyProgress, error)
}

// BackfillRunner はバッジバックフィルの実行に必要なインターフェース。
type BackfillRunner interface {
	Run(ctx context.Context, req badge.BackfillRequest) (*badge.BackfillReport, error)
}

// FunctionHandler は集計・バッチ系エンドポイントのHTTPハンドラー。
// 内部エラーでも200を返し、本文のerrorに理由を載せる。
type FunctionHandler struct {
	progress ProgressServiceInterface
	backfill BackfillRunner
}

// NewFunctionHandler はFunctionHandlerを生成する。
func NewFunctionHandler(progress ProgressServiceInterface, backfill BackfillRunner) *FunctionHandler {
	return &FunctionHandler{progress: progress, backfill: backfill}
}

type weeklyProgressRequest struct {
	ClientID string `json:"client_id"`
}

// WeeklyProgress はクライアントの今週の進捗を返す。
// POST /functions/weekly-progress
func (h *FunctionHandler) WeeklyProgress(w http.ResponseWriter, r *http.Request) {
	var req weeklyProgressRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	result, err := h.progress.GetWeeklyProgress(r.Context(), middleware.ActorFromContext(r.Context()), req.ClientID)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			handleServiceError(w, err)
			return
		}
		slog.Error("weekly progress failed",
			slog.String("client_id", req.ClientID),
			slog.String("error", err.Error()),
		)
		result = progress.DefaultProgress()
		result.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, result)
}

// BackfillBadges はファイヤーバッジのバックフィルを実行する。adminのみ。
// POST /functions/backfill-badges
func (h *FunctionHandler) BackfillBadges(w http.ResponseWriter, r *http.Request) {
	if err := authz.RequireRole(middleware.ActorFromContext(r.Context()), model.UserTypeAdmin); err != nil {
		handleServiceError(w, err)
		return
	}

	var req badge.BackfillRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	report, err := h.backfill.Run(r.Context(), req)
	if err != nil {
		slog.Error("badge backfill failed", slog.String("error", err.Error()))
		if report == nil {
			report = &badge.BackfillReport{DryRun: req.DryRun, Users: []badge.UserReport{}}
		}
		report.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, report)
}
