// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, program, activity, invitation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeForbidden             = "FORBIDDEN"
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeUserTypeMismatch      = "USER_TYPE_MISMATCH"
	ErrCodeEmailAlreadyExists    = "EMAIL_ALREADY_EXISTS"
	ErrCodeInvalidEmail          = "INVALID_EMAIL"
	ErrCodeInvalidPassword       = "INVALID_PASSWORD"
	ErrCodeInvalidUserType       = "INVALID_USER_TYPE"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodeProfileNotFound       = "PROFILE_NOT_FOUND"
	ErrCodeProgramNotFound       = "PROGRAM_NOT_FOUND"
	ErrCodeWorkoutNotFound       = "WORKOUT_NOT_FOUND"
	ErrCodeCompletionNotFound    = "COMPLETION_NOT_FOUND"
	ErrCodeGroupNotFound         = "GROUP_NOT_FOUND"
	ErrCodeInvalidProgram        = "INVALID_PROGRAM"
	ErrCodeInvalidWeekNumber     = "INVALID_WEEK_NUMBER"
	ErrCodeInvalidActivity       = "INVALID_ACTIVITY"
	ErrCodeAlreadyCompleted      = "ALREADY_COMPLETED"
	ErrCodeInvitationNotFound    = "INVITATION_NOT_FOUND"
	ErrCodeInvitationExpired     = "INVITATION_EXPIRED"
	ErrCodeInvitationUsed        = "INVITATION_USED"
	ErrCodeInvitationTypeInvalid = "INVITATION_TYPE_MISMATCH"
	ErrCodeInvitationEmail       = "INVITATION_EMAIL_MISMATCH"
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "アカウントの権限を確認してください。",
	}
}

// NewInvalidCredentialsError は認証情報の不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewUserTypeMismatchError はサインイン時に要求したアカウント種別と登録済み種別が異なる場合のエラーを生成する。
func NewUserTypeMismatchError(requested, stored UserType) *APIError {
	return &APIError{
		Code:     ErrCodeUserTypeMismatch,
		Message:  fmt.Sprintf("このアカウントは%sとして登録されています。%sとしてはサインインできません。", stored, requested),
		Category: "auth",
		Action:   fmt.Sprintf("%sとしてサインインし直してください。", stored),
	}
}

// NewEmailAlreadyExistsError はメールアドレス重複エラーを生成する。
func NewEmailAlreadyExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyExists,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "サインインするか、別のメールアドレスを使用してください。",
	}
}

// NewInvalidEmailError は無効なメールアドレスのエラーを生成する。
func NewInvalidEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  fmt.Sprintf("無効なメールアドレスです: %s", email),
		Category: "validation",
		Action:   "正しいメールアドレスを入力してください。",
	}
}

// NewInvalidPasswordError はパスワード要件を満たさない場合のエラーを生成する。
func NewInvalidPasswordError(minLength int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPassword,
		Message:  fmt.Sprintf("パスワードは%d文字以上で入力してください。", minLength),
		Category: "validation",
		Action:   "より長いパスワードを設定してください。",
	}
}

// NewInvalidUserTypeError は未定義のアカウント種別が指定された場合のエラーを生成する。
func NewInvalidUserTypeError(userType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidUserType,
		Message:  fmt.Sprintf("無効なアカウント種別です: %s", userType),
		Category: "validation",
		Action:   "admin、coach、client のいずれかを指定してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewProfileNotFoundError はプロフィール行が存在しない場合のエラーを生成する。
func NewProfileNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("プロフィールが見つかりません: %s", userID),
		Category: "auth",
		Action:   "管理者に問い合わせてください。",
	}
}

// NewProgramNotFoundError はプログラム未検出エラーを生成する。
func NewProgramNotFoundError(programID string) *APIError {
	return &APIError{
		Code:     ErrCodeProgramNotFound,
		Message:  fmt.Sprintf("指定されたプログラムが見つかりません: %s", programID),
		Category: "program",
		Action:   "プログラムIDを確認してください。",
	}
}

// NewWorkoutNotFoundError はワークアウト未検出エラーを生成する。
func NewWorkoutNotFoundError(workoutID string) *APIError {
	return &APIError{
		Code:     ErrCodeWorkoutNotFound,
		Message:  fmt.Sprintf("指定されたワークアウトが見つかりません: %s", workoutID),
		Category: "program",
		Action:   "ワークアウトIDを確認してください。",
	}
}

// NewCompletionNotFoundError は記録未検出エラーを生成する。
func NewCompletionNotFoundError(completionID string) *APIError {
	return &APIError{
		Code:     ErrCodeCompletionNotFound,
		Message:  fmt.Sprintf("指定された記録が見つかりません: %s", completionID),
		Category: "activity",
		Action:   "記録IDを確認してください。",
	}
}

// NewGroupNotFoundError はグループ未検出エラーを生成する。
func NewGroupNotFoundError(groupID string) *APIError {
	return &APIError{
		Code:     ErrCodeGroupNotFound,
		Message:  fmt.Sprintf("指定されたグループが見つかりません: %s", groupID),
		Category: "program",
		Action:   "グループIDを確認してください。",
	}
}

// NewInvalidProgramError はプログラム入力値の検証エラーを生成する。
func NewInvalidProgramError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProgram,
		Message:  fmt.Sprintf("プログラムの入力内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidWeekNumberError は週番号がプログラム範囲外の場合のエラーを生成する。
func NewInvalidWeekNumberError(week, weeks int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidWeekNumber,
		Message:  fmt.Sprintf("無効な週番号です: %d（1〜%dの範囲で指定してください）", week, weeks),
		Category: "validation",
		Action:   "プログラムの週数の範囲内で指定してください。",
	}
}

// NewInvalidActivityError はアクティビティ記録の検証エラーを生成する。
func NewInvalidActivityError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidActivity,
		Message:  fmt.Sprintf("記録の入力内容が不正です: %s", reason),
		Category: "validation",
		Action:   "時間や距離には正の値を入力してください。",
	}
}

// NewAlreadyCompletedError は完了済みの記録を再度完了しようとした場合のエラーを生成する。
func NewAlreadyCompletedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyCompleted,
		Message:  "このワークアウトは既に完了しています。",
		Category: "activity",
		Action:   "記録一覧を確認してください。",
	}
}

// NewInvitationNotFoundError は招待トークン未検出エラーを生成する。
func NewInvitationNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeInvitationNotFound,
		Message:  "招待リンクが無効です。",
		Category: "invitation",
		Action:   "招待者に新しいリンクを依頼してください。",
	}
}

// NewInvitationExpiredError は招待トークンの有効期限切れエラーを生成する。
func NewInvitationExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeInvitationExpired,
		Message:  "招待リンクの有効期限が切れています。",
		Category: "invitation",
		Action:   "招待者に新しいリンクを依頼してください。",
	}
}

// NewInvitationUsedError は使用済みの招待トークンのエラーを生成する。
func NewInvitationUsedError() *APIError {
	return &APIError{
		Code:     ErrCodeInvitationUsed,
		Message:  "この招待リンクは既に使用されています。",
		Category: "invitation",
		Action:   "サインインするか、招待者に新しいリンクを依頼してください。",
	}
}

// NewInvitationTypeMismatchError は招待に紐づくアカウント種別と登録種別が異なる場合のエラーを生成する。
func NewInvitationTypeMismatchError(invited, requested UserType) *APIError {
	return &APIError{
		Code:     ErrCodeInvitationTypeInvalid,
		Message:  fmt.Sprintf("この招待は%s用です。%sとしては登録できません。", invited, requested),
		Category: "invitation",
		Action:   "招待リンクを開き直して登録してください。",
	}
}

// NewInvitationEmailMismatchError は招待先と異なるメールアドレスで登録しようとした場合のエラーを生成する。
func NewInvitationEmailMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeInvitationEmail,
		Message:  "この招待は別のメールアドレス宛てです。",
		Category: "invitation",
		Action:   "招待メールを受け取ったアドレスで登録してください。",
	}
}

// NewInvalidRequestError はリクエストボディの形式エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}
