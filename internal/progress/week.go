// Package progress はプログラム週の算出と週次進捗の集計を提供する。
//
// 週の境界は2種類ある。メトリクス集計とバッジ判定に使う正規の週は
// 「月曜0時から翌月曜0時まで」の半開区間 Window で表し、
// プログラム開始日からの単純なオフセットで求める表示用の週は DateRange で表す。
package progress

import "time"

const daysPerWeek = 7

// Window は月曜始まりの半開区間 [Start, End) を表す。
// 日曜23:59:59.999...までを含み、翌月曜0時は含まない。
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains はtが区間に含まれるかどうかを返す。
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// DateRange は表示用の暦日の範囲 [Start, End] を表す。両端の日付を含む。
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains はtが範囲内の暦日に含まれるかどうかを返す。End当日の終わりまでを含む。
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End.AddDate(0, 0, 1))
}

// StartOfDay はtのロケーションにおける暦日の0時を返す。
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DateIn はDATE列から読み込んだ値など、暦日だけが意味を持つ値をlocの0時に置き直す。
func DateIn(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// civilDays はaからbまでの暦日の差を返す。各値はそれぞれのロケーションの暦日で解釈する。
// 夏時間の切り替えで1日が23時間や25時間になっても日数はずれない。
func civilDays(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// CurrentWeekNumber はプログラム開始日からの経過日数で週番号を求める。
// floor(経過日数/7)+1 を返し、開始前でも1未満にはならない。上限のクランプは行わない。
func CurrentWeekNumber(programStart, now time.Time) int {
	week := floorDiv(civilDays(programStart, now), daysPerWeek) + 1
	if week < 1 {
		return 1
	}
	return week
}

// MondayOnOrAfter はtの暦日以降で最初の月曜日の0時を、tのロケーションで返す。
func MondayOnOrAfter(t time.Time) time.Time {
	day := StartOfDay(t)
	offset := (int(time.Monday) - int(day.Weekday()) + daysPerWeek) % daysPerWeek
	return day.AddDate(0, 0, offset)
}

// MondayOnOrBefore はtの暦日以前で最後の月曜日の0時を、tのロケーションで返す。
func MondayOnOrBefore(t time.Time) time.Time {
	day := StartOfDay(t)
	back := (int(day.Weekday()) - int(time.Monday) + daysPerWeek) % daysPerWeek
	return day.AddDate(0, 0, -back)
}

// ProgramWeek は開始日以降の最初の月曜日を第1週の始まりとして、nowが第何週かを返す。
// 最初の月曜日より前は第1週とし、結果を[1, weeks]にクランプする。
// weeksが1未満の場合は上限のクランプを行わない。
func ProgramWeek(programStart, now time.Time, weeks int) int {
	firstMonday := MondayOnOrAfter(programStart)
	week := 1
	if !now.Before(firstMonday) {
		week = civilDays(firstMonday, now.In(firstMonday.Location()))/daysPerWeek + 1
	}
	if weeks >= 1 && week > weeks {
		return weeks
	}
	return week
}

// ProgramWeekWindow は月曜始まりで固定した第weekNumber週の区間を返す。
// 開始日が何曜日でも、週は開始日以降の最初の月曜日から7日ごとに区切られる。
func ProgramWeekWindow(programStart time.Time, weekNumber int) Window {
	start := MondayOnOrAfter(programStart).AddDate(0, 0, (weekNumber-1)*daysPerWeek)
	return Window{Start: start, End: start.AddDate(0, 0, daysPerWeek)}
}

// PlainWeekRange は開始日から単純に7日ずつずらした第weekNumber週の暦日範囲を返す。
// 表示専用で、集計やバッジ判定には使わない。
func PlainWeekRange(programStart time.Time, weekNumber int) DateRange {
	start := StartOfDay(programStart).AddDate(0, 0, (weekNumber-1)*daysPerWeek)
	return DateRange{Start: start, End: start.AddDate(0, 0, daysPerWeek-1)}
}

// CalendarWeek はnowを含む月曜始まりの週の区間をnowのロケーションで返す。
func CalendarWeek(now time.Time) Window {
	start := MondayOnOrBefore(now)
	return Window{Start: start, End: start.AddDate(0, 0, daysPerWeek)}
}
