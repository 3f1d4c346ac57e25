package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/resend/resend-go/v2"
)

// ResendSender はResend APIでメールを送信する。
type ResendSender struct {
	client *resend.Client
	from   string
}

var _ Sender = (*ResendSender)(nil)

// NewResendSender はResendSenderを生成する。
func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

// Send はメールを1通送信する。
func (s *ResendSender) Send(ctx context.Context, msg Message) (Result, error) {
	from := msg.From
	if from == "" {
		from = s.from
	}

	params := &resend.SendEmailRequest{
		From:    from,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
	}
	if msg.ReplyTo != "" {
		params.ReplyTo = msg.ReplyTo
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		slog.Error("メール送信に失敗しました",
			slog.Int("recipients", len(msg.To)),
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()),
		)
		return Result{}, fmt.Errorf("resend send failed: %w", err)
	}

	slog.Info("メールを送信しました",
		slog.String("message_id", sent.Id),
		slog.String("subject", msg.Subject),
	)
	return Result{MessageID: sent.Id, SentAt: time.Now()}, nil
}
