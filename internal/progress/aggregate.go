package progress

import (
	"math"

	"github.com/hitoshi/moai/internal/model"
)

// 目標値が未設定の週に使うフォールバック値。
const (
	DefaultCardioMinutesTarget = 60
	DefaultRunMilesTarget      = 5
)

// レスポンスのprogram_typeに使う表示用の種別。
const (
	ProgramLabelRun      = "moai_run"
	ProgramLabelStrength = "moai_strength"
)

// Metric は目標値と実績値の組。
type Metric struct {
	Target float64 `json:"target"`
	Actual float64 `json:"actual"`
}

// Metrics は週次進捗の4つの集計項目。
type Metrics struct {
	StrengthWorkouts Metric `json:"strength_workouts"`
	StrengthMobility Metric `json:"strength_mobility"`
	MilesRun         Metric `json:"miles_run"`
	CardioMinutes    Metric `json:"cardio_minutes"`
}

// WeeklyProgress は週次進捗のレスポンス。
// 内部エラー時もこの形で返し、Errorに原因を載せる。
type WeeklyProgress struct {
	ProgramID    string  `json:"program_id"`
	ProgramTitle string  `json:"program_title"`
	CurrentWeek  int     `json:"current_week"`
	TotalWeeks   int     `json:"total_weeks"`
	ProgramType  string  `json:"program_type"`
	Metrics      Metrics `json:"metrics"`
	Error        string  `json:"error,omitempty"`
}

// ProgramLabel はプログラム種別からレスポンス用の種別を返す。
func ProgramLabel(t model.ProgramType) string {
	if t == model.ProgramTypeRun {
		return ProgramLabelRun
	}
	return ProgramLabelStrength
}

// DefaultProgress は有効なプログラムがない場合の既定レスポンスを返す。
func DefaultProgress() *WeeklyProgress {
	return &WeeklyProgress{
		ProgramType: ProgramLabelStrength,
		Metrics:     TargetsFor(nil, model.ProgramTypeStrength),
	}
}

// TargetsFor は週の目標値をActual=0のMetricsとして返す。
// weekがnilまたは値が0の場合、cardio_minutesは60、runプログラムのmiles_runは5にフォールバックする。
func TargetsFor(week *model.WorkoutWeek, programType model.ProgramType) Metrics {
	var m Metrics
	if week != nil {
		m.StrengthWorkouts.Target = float64(week.TargetStrengthWorkouts)
		m.StrengthMobility.Target = float64(week.TargetStrengthMobilityWorkouts)
		m.MilesRun.Target = week.TargetMilesRun
		m.CardioMinutes.Target = week.TargetCardioMinutes
	}
	if m.CardioMinutes.Target == 0 {
		m.CardioMinutes.Target = DefaultCardioMinutesTarget
	}
	if m.MilesRun.Target == 0 && programType == model.ProgramTypeRun {
		m.MilesRun.Target = DefaultRunMilesTarget
	}
	return m
}

// Aggregate はwindow内に完了した記録を集計してtargetsのActualを埋めたMetricsを返す。
// completed_atがnilの記録とwindow外の記録は数えない。
func Aggregate(targets Metrics, completions []*model.WorkoutCompletion, window Window) Metrics {
	m := targets
	m.StrengthWorkouts.Actual = 0
	m.StrengthMobility.Actual = 0
	m.MilesRun.Actual = 0
	m.CardioMinutes.Actual = 0

	for _, c := range completions {
		if c == nil || c.CompletedAt == nil || !window.Contains(*c.CompletedAt) {
			continue
		}
		switch c.WorkoutType {
		case model.WorkoutTypeStrength, model.WorkoutTypeBodyweight:
			m.StrengthWorkouts.Actual++
		case model.WorkoutTypeFlexibility:
			m.StrengthMobility.Actual++
		case model.WorkoutTypeRunning:
			m.MilesRun.Actual += valueOrZero(c.Distance)
			m.CardioMinutes.Actual += valueOrZero(c.Duration)
		case model.WorkoutTypeCardio:
			m.CardioMinutes.Actual += valueOrZero(c.Duration)
		}
	}
	return m
}

// valueOrZero は欠損値や数値でない値を0として扱う。
func valueOrZero(v *float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0
	}
	return *v
}
