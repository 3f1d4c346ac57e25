// Package mailer は外部メール配信サービスへの送信を提供する。
package mailer

import (
	"context"
	"time"
)

// Message は送信するメール。
type Message struct {
	To      []string
	From    string // 空の場合は送信者の既定アドレスを使う
	Subject string
	HTML    string
	ReplyTo string
}

// Result は配信サービスの受付結果。
type Result struct {
	MessageID string
	SentAt    time.Time
}

// Sender はメール送信のインターフェース。
type Sender interface {
	Send(ctx context.Context, msg Message) (Result, error)
}
