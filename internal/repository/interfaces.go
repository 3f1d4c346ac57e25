// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/moai/internal/model"
)

var (
	// ErrDuplicateEmail はメールアドレスの一意制約違反を表す。
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrInvitationConsumed は招待が既に使用済みであることを表す。
	ErrInvitationConsumed = errors.New("invitation already accepted")
)

// UserRepository はアカウントデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。大文字小文字は区別しない。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateWithProfile はユーザーとプロフィールを同一トランザクションで作成する。
	// invitationが非nilかつメール招待の場合は同じトランザクションで使用済みにする。
	// enrollが非nilの場合はenroll.CoachIDの最も古いグループにユーザーを追加し、
	// コーチがグループを持っていなければenrollを新規作成する。
	// メールアドレス重複時はErrDuplicateEmail、招待が使用済みの場合はErrInvitationConsumedを返す。
	CreateWithProfile(ctx context.Context, user *model.User, profile *model.Profile, invitation *model.Invitation, enroll *model.Group) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するprofiles、sessions、assignments、completions、fire_badgesはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error

	// ListEmails は指定ID群のメールアドレスを返す。存在しないIDは無視する。
	ListEmails(ctx context.Context, ids []string) ([]UserEmail, error)
}

// ProfileRepository はプロフィール行の永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// UpdateFullName は表示名を更新する。
	UpdateFullName(ctx context.Context, id, fullName string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ProgramRepository はプログラムの永続化インターフェース。
type ProgramRepository interface {
	// FindByID は指定IDのプログラムを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Program, error)
	// ListByCoach はコーチが作成したプログラムを作成日時の降順で返す。
	ListByCoach(ctx context.Context, coachID string) ([]*model.Program, error)
	// Create はプログラムを作成する。
	Create(ctx context.Context, program *model.Program) error
	// Update はタイトル、説明、週数、種別を更新する。
	Update(ctx context.Context, program *model.Program) error
	// Delete はプログラムを削除する。週とワークアウトはCASCADE削除される。
	Delete(ctx context.Context, id string) error
}

// WorkoutWeekRepository は週ごとの目標値の永続化インターフェース。
type WorkoutWeekRepository interface {
	// FindByProgramAndWeek は(program_id, week_number)の週を取得する。見つからない場合はnilを返す。
	FindByProgramAndWeek(ctx context.Context, programID string, weekNumber int) (*model.WorkoutWeek, error)
	// ListByProgram はプログラムの全週をweek_number昇順で返す。
	ListByProgram(ctx context.Context, programID string) ([]*model.WorkoutWeek, error)
	// Upsert は(program_id, week_number)単位で目標値を作成または更新する。
	// 既存行がある場合はweek.IDを既存のIDで上書きする。
	Upsert(ctx context.Context, week *model.WorkoutWeek) error
	// InsertMissing は週を作成する。同じ(program_id, week_number)の週が既にある場合はその週を変更しない。
	InsertMissing(ctx context.Context, weeks []*model.WorkoutWeek) error
	// DeleteAfter は指定週番号より後ろの週を削除する。週数の短縮時に使う。
	DeleteAfter(ctx context.Context, programID string, weekNumber int) error
}

// WorkoutRepository は週に割り当てるワークアウトの永続化インターフェース。
type WorkoutRepository interface {
	// FindByID は指定IDのワークアウトを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Workout, error)
	// Create はワークアウトを作成する。
	Create(ctx context.Context, workout *model.Workout) error
	// ListByWeek は週のワークアウトをorder_index昇順で返す。
	ListByWeek(ctx context.Context, weekID string) ([]*model.Workout, error)
	// NextOrderIndex は週内で次に使うorder_indexを返す。
	NextOrderIndex(ctx context.Context, weekID string) (int, error)
	// UpdateOrderIndex はorder_indexを更新する。
	UpdateOrderIndex(ctx context.Context, id string, orderIndex int) error
}

// AssignmentRepository はプログラム割り当ての永続化インターフェース。
type AssignmentRepository interface {
	// Assign は既存のオープンな割り当てをassignment.StartDateの前日で閉じ、新しい割り当てを作成する。
	Assign(ctx context.Context, assignment *model.ProgramAssignment) error
	// FindLatestOpen はend_dateが未設定の割り当てのうち最も新しく作成されたものを返す。
	// 見つからない場合はnilを返す。
	FindLatestOpen(ctx context.Context, userID string) (*model.ProgramAssignment, error)
	// FindCurrent はtodayの暦日を期間に含む割り当てのうち最も新しく作成されたものを返す。
	// 該当がない場合は最も新しく作成された割り当てを返し、割り当てがなければnilを返す。
	FindCurrent(ctx context.Context, userID string, today time.Time) (*model.ProgramAssignment, error)
	// ListByUser はユーザーの全割り当てをstart_date昇順で返す。
	ListByUser(ctx context.Context, userID string) ([]*model.ProgramAssignment, error)
	// ListUserIDs は割り当てを持つ全ユーザーのIDを返す。
	ListUserIDs(ctx context.Context) ([]string, error)
}

// CompletionRepository はワークアウト記録の永続化インターフェース。
type CompletionRepository interface {
	// FindByID は指定IDの記録を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.WorkoutCompletion, error)
	// Create は記録を作成する。
	Create(ctx context.Context, completion *model.WorkoutCompletion) error
	// MarkCompleted は未完了の記録を完了にする。既に完了済みの場合はfalseを返す。
	MarkCompleted(ctx context.Context, id string, completedAt time.Time, distance, duration *float64) (bool, error)
	// ListCompletedBetween はcompleted_atが[from, to)に含まれる完了済み記録を返す。
	// completed_atがNULLの行は含まない。
	ListCompletedBetween(ctx context.Context, userID string, from, to time.Time) ([]*model.WorkoutCompletion, error)
	// CountCompletedWorkouts はworkoutIDsのうちcompleted_atが[from, to)に含まれるものの件数を返す。
	// 同じワークアウトの重複記録は1件として数える。
	CountCompletedWorkouts(ctx context.Context, userID string, workoutIDs []string, from, to time.Time) (int, error)
}

// BadgeRepository はファイアバッジの永続化インターフェース。
type BadgeRepository interface {
	// Exists は(user_id, week_start)のバッジが存在するかどうかを返す。
	Exists(ctx context.Context, userID string, weekStart time.Time) (bool, error)
	// Insert はバッジを作成する。一意制約に衝突した場合は何もせずfalseを返す。
	Insert(ctx context.Context, badge *model.FireBadge) (bool, error)
	// ListByUser はユーザーのバッジをweek_start昇順で返す。
	ListByUser(ctx context.Context, userID string) ([]*model.FireBadge, error)
}

// InvitationRepository は招待の永続化インターフェース。
type InvitationRepository interface {
	// Create は招待を作成する。
	Create(ctx context.Context, invitation *model.Invitation) error
	// FindByToken はトークンで招待を検索する。見つからない場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.Invitation, error)
	// DeleteExpiredUnaccepted は未使用のまま期限切れになった招待を削除し、削除件数を返す。
	DeleteExpiredUnaccepted(ctx context.Context, now time.Time) (int64, error)
}

// GroupRepository はコーチのグループとメンバーの永続化インターフェース。
type GroupRepository interface {
	// Create はグループを作成する。
	Create(ctx context.Context, group *model.Group) error
	// FindByID は指定IDのグループを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Group, error)
	// ListByCoach はコーチが担当するグループを作成日時の昇順で返す。
	ListByCoach(ctx context.Context, coachID string) ([]*model.Group, error)
	// ListMemberIDs はグループのメンバーIDを返す。
	ListMemberIDs(ctx context.Context, groupID string) ([]string, error)
	// AddMember はユーザーをグループに追加する。既にメンバーの場合は何もしない。
	AddMember(ctx context.Context, groupID, userID string, at time.Time) error
	// RemoveMember はユーザーをグループから外す。メンバーでなかった場合はfalseを返す。
	RemoveMember(ctx context.Context, groupID, userID string) (bool, error)
	// IsCoachOf はuserIDがcoachIDの担当グループに所属しているかどうかを返す。
	IsCoachOf(ctx context.Context, coachID, userID string) (bool, error)
}

// UserEmail はIDとメールアドレスの組。
type UserEmail struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
