package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// NoopSender は送信せずにログだけを出力する。RESEND_API_KEY未設定の開発環境で使う。
type NoopSender struct {
	now func() time.Time
}

var _ Sender = (*NoopSender)(nil)

// NewNoopSender はNoopSenderを生成する。
func NewNoopSender() *NoopSender {
	return &NoopSender{now: time.Now}
}

// Send はメールを配信せずに受付結果を返す。
func (s *NoopSender) Send(_ context.Context, msg Message) (Result, error) {
	now := s.now()
	slog.Info("メール送信をスキップしました",
		slog.Int("recipients", len(msg.To)),
		slog.String("subject", msg.Subject),
	)
	return Result{
		MessageID: fmt.Sprintf("noop-%d", now.UnixNano()),
		SentAt:    now,
	}, nil
}

// New はAPIキーが設定されていればResendSender、なければNoopSenderを返す。
func New(apiKey, from string) Sender {
	if apiKey == "" {
		return NewNoopSender()
	}
	return NewResendSender(apiKey, from)
}
