// Package group はコーチが担当するクライアントのグループ管理を提供する。
// グループのメンバーであることが、コーチがクライアントのデータを扱える条件になる。
package group

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/moai/internal/authz"
	"github.com/hitoshi/moai/internal/model"
	"github.com/hitoshi/moai/internal/repository"
	"github.com/hitoshi/moai/internal/security"
)

const maxNameLength = 100

// CreateInput はグループ作成の入力。CoachIDはadminが作成する場合のみ使う。
type CreateInput struct {
	Name    string `json:"name"`
	CoachID string `json:"coach_id"`
}

// Service はグループ管理のビジネスロジックを提供する。
type Service struct {
	groups    repository.GroupRepository
	profiles  repository.ProfileRepository
	sanitizer security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(groups repository.GroupRepository, profiles repository.ProfileRepository, sanitizer security.TextSanitizer) *Service {
	return &Service{
		groups:    groups,
		profiles:  profiles,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// Create はグループを作成する。coachは自分のグループを、adminはcoach_idで指定したコーチのグループを作成する。
func (s *Service) Create(ctx context.Context, actor authz.Actor, in CreateInput) (*model.Group, error) {
	if err := authz.RequireRole(actor, model.UserTypeCoach, model.UserTypeAdmin); err != nil {
		return nil, err
	}
	name := s.sanitizer.PlainText(in.Name)
	if name == "" || len([]rune(name)) > maxNameLength {
		return nil, model.NewInvalidRequestError("グループ名は1〜100文字で入力してください")
	}

	coachID := actor.UserID
	if actor.IsAdmin() {
		if in.CoachID == "" {
			return nil, model.NewInvalidRequestError("coach_idは必須です")
		}
		if err := s.requireProfileType(ctx, in.CoachID, model.UserTypeCoach); err != nil {
			return nil, err
		}
		coachID = in.CoachID
	}

	g := &model.Group{
		ID:        uuid.New().String(),
		Name:      name,
		CoachID:   coachID,
		CreatedAt: s.now(),
	}
	if err := s.groups.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	slog.Info("group created",
		slog.String("group_id", g.ID),
		slog.String("coach_id", g.CoachID),
	)
	return g, nil
}

// List はコーチのグループ一覧を返す。coachは常に自分のグループを返し、adminはcoachIDの指定が必須。
func (s *Service) List(ctx context.Context, actor authz.Actor, coachID string) ([]*model.Group, error) {
	if err := authz.RequireRole(actor, model.UserTypeCoach, model.UserTypeAdmin); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		coachID = actor.UserID
	} else if coachID == "" {
		return nil, model.NewInvalidRequestError("coach_idは必須です")
	}
	groups, err := s.groups.ListByCoach(ctx, coachID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	if groups == nil {
		groups = []*model.Group{}
	}
	return groups, nil
}

// Members はグループのメンバーIDを返す。
func (s *Service) Members(ctx context.Context, actor authz.Actor, groupID string) ([]string, error) {
	if _, err := s.findOwned(ctx, actor, groupID); err != nil {
		return nil, err
	}
	ids, err := s.groups.ListMemberIDs(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// AddMember はクライアントをグループに追加する。既にメンバーの場合も成功扱い。
func (s *Service) AddMember(ctx context.Context, actor authz.Actor, groupID, userID string) error {
	if userID == "" {
		return model.NewInvalidRequestError("user_idは必須です")
	}
	if _, err := s.findOwned(ctx, actor, groupID); err != nil {
		return err
	}
	if err := s.requireProfileType(ctx, userID, model.UserTypeClient); err != nil {
		return err
	}
	if err := s.groups.AddMember(ctx, groupID, userID, s.now()); err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}

	slog.Info("group member added",
		slog.String("group_id", groupID),
		slog.String("user_id", userID),
	)
	return nil
}

// RemoveMember はクライアントをグループから外す。メンバーでない場合はUSER_NOT_FOUNDを返す。
func (s *Service) RemoveMember(ctx context.Context, actor authz.Actor, groupID, userID string) error {
	if _, err := s.findOwned(ctx, actor, groupID); err != nil {
		return err
	}
	removed, err := s.groups.RemoveMember(ctx, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	if !removed {
		return model.NewUserNotFoundError()
	}

	slog.Info("group member removed",
		slog.String("group_id", groupID),
		slog.String("user_id", userID),
	)
	return nil
}

// findOwned はactorが管理できるグループを返す。adminはすべてのグループを管理できる。
func (s *Service) findOwned(ctx context.Context, actor authz.Actor, groupID string) (*model.Group, error) {
	if err := authz.RequireRole(actor, model.UserTypeCoach, model.UserTypeAdmin); err != nil {
		return nil, err
	}
	g, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to find group: %w", err)
	}
	if g == nil {
		return nil, model.NewGroupNotFoundError(groupID)
	}
	if !actor.IsAdmin() && g.CoachID != actor.UserID {
		return nil, model.NewForbiddenError()
	}
	return g, nil
}

func (s *Service) requireProfileType(ctx context.Context, userID string, want model.UserType) error {
	p, err := s.profiles.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find profile: %w", err)
	}
	if p == nil {
		return model.NewUserNotFoundError()
	}
	if p.UserType != want {
		return model.NewInvalidRequestError(fmt.Sprintf("%sアカウントを指定してください", want))
	}
	return nil
}
