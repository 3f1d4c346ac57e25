package mailer

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestNew_SelectsSender(t *testing.T) {
	if _, ok := New("", "from@example.com").(*NoopSender); !ok {
		t.Error("empty API key should select NoopSender")
	}
	if _, ok := New("re_test", "from@example.com").(*ResendSender); !ok {
		t.Error("API key should select ResendSender")
	}
}

func TestNoopSender_Send(t *testing.T) {
	fixed := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	s := &NoopSender{now: func() time.Time { return fixed }}

	res, err := s.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "hello"})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if !strings.HasPrefix(res.MessageID, "noop-") {
		t.Errorf("MessageID = %q, want noop- prefix", res.MessageID)
	}
	if !res.SentAt.Equal(fixed) {
		t.Errorf("SentAt = %v, want %v", res.SentAt, fixed)
	}
}

func TestInvitationMessage(t *testing.T) {
	msg, err := InvitationMessage("coach@example.com", InvitationData{
		Role:    "coach",
		Link:    "https://app.example.com/register?token=abc&type=coach",
		Expires: "2024-02-14",
	})
	if err != nil {
		t.Fatalf("InvitationMessage returned error: %v", err)
	}
	if len(msg.To) != 1 || msg.To[0] != "coach@example.com" {
		t.Errorf("To = %v", msg.To)
	}
	if msg.Subject == "" {
		t.Error("Subject should not be empty")
	}
	// html/templateは属性内の&を&amp;にエスケープする
	if !strings.Contains(msg.HTML, "token=abc&amp;type=coach") {
		t.Errorf("HTML should contain escaped link, got %s", msg.HTML)
	}
	if !strings.Contains(msg.HTML, "2024-02-14") {
		t.Error("HTML should contain expiry date")
	}
}

func TestInvitationMessage_EscapesRole(t *testing.T) {
	msg, err := InvitationMessage("x@example.com", InvitationData{Role: "<script>", Link: "https://a", Expires: "d"})
	if err != nil {
		t.Fatalf("InvitationMessage returned error: %v", err)
	}
	if strings.Contains(msg.HTML, "<script>") {
		t.Error("role should be HTML-escaped")
	}
}
