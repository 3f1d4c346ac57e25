// Package authz はサービス境界での権限判定を提供する。
//
// 判定規則:
//   - adminはすべてのユーザーに対して操作できる
//   - coachは自分自身と、担当グループのメンバーに対して操作できる
//   - clientは自分自身に対してのみ操作できる
package authz

import (
	"context"
	"fmt"

	"github.com/hitoshi/moai/internal/model"
)

// Actor は操作を行う認証済みユーザー。
type Actor struct {
	UserID   string
	UserType model.UserType
}

// IsAdmin はadminかどうかを返す。
func (a Actor) IsAdmin() bool { return a.UserType == model.UserTypeAdmin }

// MembershipChecker はコーチとクライアントの担当関係を判定するインターフェース。
type MembershipChecker interface {
	IsCoachOf(ctx context.Context, coachID, userID string) (bool, error)
}

// Authorizer は権限判定を行う。
type Authorizer struct {
	groups MembershipChecker
}

// NewAuthorizer はAuthorizerを生成する。
func NewAuthorizer(groups MembershipChecker) *Authorizer {
	return &Authorizer{groups: groups}
}

// CanActFor はactorがtargetUserIDのデータを参照・操作できるかを判定する。
// 権限がない場合は*model.APIError（FORBIDDEN）を返す。
func (a *Authorizer) CanActFor(ctx context.Context, actor Actor, targetUserID string) error {
	if actor.UserID == "" {
		return model.NewUnauthorizedError()
	}
	switch actor.UserType {
	case model.UserTypeAdmin:
		return nil
	case model.UserTypeCoach:
		if actor.UserID == targetUserID {
			return nil
		}
		ok, err := a.groups.IsCoachOf(ctx, actor.UserID, targetUserID)
		if err != nil {
			return fmt.Errorf("failed to check coach membership: %w", err)
		}
		if !ok {
			return model.NewForbiddenError()
		}
		return nil
	case model.UserTypeClient:
		if actor.UserID == targetUserID {
			return nil
		}
		return model.NewForbiddenError()
	default:
		return model.NewForbiddenError()
	}
}

// RequireRole はactorが指定された種別のいずれかであることを確認する。
func RequireRole(actor Actor, allowed ...model.UserType) error {
	if actor.UserID == "" {
		return model.NewUnauthorizedError()
	}
	for _, t := range allowed {
		if actor.UserType == t {
			return nil
		}
	}
	return model.NewForbiddenError()
}
