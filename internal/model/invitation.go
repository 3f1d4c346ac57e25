package model

import (
	"fmt"
	"net/url"
	"time"
)

// Invitation は登録用の招待トークンを表す。
// 共有リンク招待はEmailがnilで、誰でも有効期限内なら利用できる。
type Invitation struct {
	ID          string
	Token       string
	Email       *string
	UserType    UserType
	IsShareLink bool
	InvitedBy   string
	ExpiresAt   time.Time
	AcceptedAt  *time.Time
	CreatedAt   time.Time
}

// IsExpired は招待が期限切れかどうかを返す。
func (i *Invitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// RegisterURL は登録画面への招待リンクを生成する。
// 形式: {siteURL}/register?token={token}&type={userType}
func (i *Invitation) RegisterURL(siteURL string) string {
	q := url.Values{}
	q.Set("token", i.Token)
	q.Set("type", string(i.UserType))
	return fmt.Sprintf("%s/register?%s", trimTrailingSlash(siteURL), q.Encode())
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// Group はコーチが担当するクライアントのグループを表す。
type Group struct {
	ID        string
	Name      string
	CoachID   string
	CreatedAt time.Time
}
