// Package model はドメインモデルを定義する。
package model

import "time"

// UserType はアカウント種別を表す。
type UserType string

const (
	// UserTypeAdmin は招待管理を行う管理者。
	UserTypeAdmin UserType = "admin"
	// UserTypeCoach はプログラムとエクササイズを作成するコーチ。
	UserTypeCoach UserType = "coach"
	// UserTypeClient はワークアウトを記録するクライアント。
	UserTypeClient UserType = "client"
)

// Valid は定義済みのアカウント種別かどうかを返す。
func (t UserType) Valid() bool {
	switch t {
	case UserTypeAdmin, UserTypeCoach, UserTypeClient:
		return true
	default:
		return false
	}
}

// User は認証基盤が管理するアカウントを表す。
// UserMetadataのuser_typeはサインアップ時に付与され、プロフィール取得失敗時のフォールバックに使う。
type User struct {
	ID           string
	Email        string
	PasswordHash string
	UserMetadata UserMetadata
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserMetadata はアカウントに埋め込まれるメタデータ。
type UserMetadata struct {
	UserType UserType `json:"user_type"`
	FullName string   `json:"full_name,omitempty"`
}

// Profile はアプリケーション側のプロフィール行を表す。IDはUser.IDと同一。
type Profile struct {
	ID        string
	Email     string
	FullName  string
	UserType  UserType
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session はユーザーのログインセッションを表す。
// AccessTokenはセッションIDを含む署名付きトークンで、DB行の失効で無効化できる。
type Session struct {
	ID          string
	UserID      string
	AccessToken string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}
