package model

import "time"

// WorkoutType はワークアウト・アクティビティの種別を表す。
type WorkoutType string

const (
	WorkoutTypeStrength    WorkoutType = "strength"
	WorkoutTypeBodyweight  WorkoutType = "bodyweight"
	WorkoutTypeFlexibility WorkoutType = "flexibility"
	WorkoutTypeRunning     WorkoutType = "running"
	WorkoutTypeCardio      WorkoutType = "cardio"
)

// Valid は定義済みのワークアウト種別かどうかを返す。
func (t WorkoutType) Valid() bool {
	switch t {
	case WorkoutTypeStrength, WorkoutTypeBodyweight, WorkoutTypeFlexibility,
		WorkoutTypeRunning, WorkoutTypeCardio:
		return true
	default:
		return false
	}
}

// WorkoutCompletion はワークアウトの割り当て・実施中・完了の記録を表す。
// CompletedAtがnilの行は実施中（未完了）を示す唯一の判別子となる。
type WorkoutCompletion struct {
	ID              string
	UserID          string
	WorkoutID       *string
	CompletedAt     *time.Time
	WorkoutType     WorkoutType
	Distance        *float64 // マイル
	Duration        *float64 // 分
	RestDay         bool
	LifeHappensPass bool
	Title           string
	Notes           string
	CreatedAt       time.Time
}

// IsCompleted は完了済みかどうかを返す。
func (c *WorkoutCompletion) IsCompleted() bool {
	return c.CompletedAt != nil
}

// FireBadge は1週間の割り当てワークアウトをすべて完了した実績を表す。
// WeekStartは常に月曜日で、(UserID, WeekStart)ごとに1件のみ存在する。
type FireBadge struct {
	ID        string
	UserID    string
	WeekStart time.Time
	CreatedAt time.Time
}
