package model

import "time"

// ProgramType はプログラムの種別を表す。
type ProgramType string

const (
	// ProgramTypeStrength は筋力トレーニング中心のプログラム。
	ProgramTypeStrength ProgramType = "strength"
	// ProgramTypeRun はランニング中心のプログラム。
	ProgramTypeRun ProgramType = "run"
)

// Program はコーチが作成するN週間のトレーニングプログラムを表す。
type Program struct {
	ID          string
	CoachID     string
	Title       string
	Description string
	Weeks       int
	ProgramType ProgramType
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WorkoutWeek はプログラム内の1週分の目標値を表す。
// WeekNumberは1始まりでプログラム内で連続する。
type WorkoutWeek struct {
	ID                             string
	ProgramID                      string
	WeekNumber                     int
	TargetMilesRun                 float64
	TargetCardioMinutes            float64
	TargetStrengthWorkouts         int
	TargetStrengthMobilityWorkouts int
}

// Workout は週に割り当てられたワークアウトを表す。
type Workout struct {
	ID          string
	ProgramID   string
	WeekID      string
	Title       string
	WorkoutType WorkoutType
	OrderIndex  int
	CreatedAt   time.Time
}

// ProgramAssignment はユーザーとプログラムの期間付きの紐付けを表す。
// EndDateがnilの割り当ては現在進行中のプログラムを示す。
type ProgramAssignment struct {
	ID        string
	UserID    string
	ProgramID string
	StartDate time.Time
	EndDate   *time.Time
	CreatedAt time.Time
}

// IsOpen は終了日が未設定かどうかを返す。
func (a *ProgramAssignment) IsOpen() bool {
	return a.EndDate == nil
}

// Contains は指定日が割り当て期間に含まれるかどうかを返す。
// 日付単位で比較し、終了日当日も含む。
func (a *ProgramAssignment) Contains(day time.Time) bool {
	d := truncateDay(day)
	if d.Before(truncateDay(a.StartDate)) {
		return false
	}
	if a.EndDate != nil && d.After(truncateDay(*a.EndDate)) {
		return false
	}
	return true
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
