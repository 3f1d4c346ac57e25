package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/moai/internal/activity"
	"github.com/hitoshi/moai/internal/auth"
	"github.com/hitoshi/moai/internal/authz"
	"github.com/hitoshi/moai/internal/badge"
	"github.com/hitoshi/moai/internal/group"
	"github.com/hitoshi/moai/internal/invitation"
	"github.com/hitoshi/moai/internal/middleware"
	"github.com/hitoshi/moai/internal/model"
	"github.com/hitoshi/moai/internal/program"
	"github.com/hitoshi/moai/internal/progress"
	"github.com/hitoshi/moai/internal/repository"
)

// --- モック定義 ---

type mockAuthService struct {
	signUpFn       func(ctx context.Context, in auth.SignUpInput) (*auth.Result, error)
	signInFn       func(ctx context.Context, email, password string) (*auth.Result, error)
	signOutFn      func(ctx context.Context, sessionID string) error
	getSessionFn   func(ctx context.Context, principal *auth.Principal, token string) (*auth.Result, error)
	authenticateFn func(ctx context.Context, token string) (*auth.Principal, error)
}

var _ AuthServiceInterface = (*mockAuthService)(nil)

func (m *mockAuthService) SignUp(ctx context.Context, in auth.SignUpInput) (*auth.Result, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, in)
	}
	return nil, nil
}

func (m *mockAuthService) SignIn(ctx context.Context, email, password string) (*auth.Result, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockAuthService) SignOut(ctx context.Context, sessionID string) error {
	if m.signOutFn != nil {
		return m.signOutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetSession(ctx context.Context, principal *auth.Principal, token string) (*auth.Result, error) {
	if m.getSessionFn != nil {
		return m.getSessionFn(ctx, principal, token)
	}
	return nil, nil
}

func (m *mockAuthService) Authenticate(ctx context.Context, token string) (*auth.Principal, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, token)
	}
	return nil, nil
}

type mockUserService struct {
	getProfileFn     func(ctx context.Context, userID string) (*model.Profile, error)
	updateFullNameFn func(ctx context.Context, userID, fullName string) (*model.Profile, error)
	getUserEmailsFn  func(ctx context.Context, actor authz.Actor, ids []string) ([]repository.UserEmail, error)
	withdrawFn       func(ctx context.Context, userID string) error
}

var _ UserServiceInterface = (*mockUserService)(nil)

func (m *mockUserService) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, userID)
	}
	return &model.Profile{ID: userID}, nil
}

func (m *mockUserService) UpdateFullName(ctx context.Context, userID, fullName string) (*model.Profile, error) {
	if m.updateFullNameFn != nil {
		return m.updateFullNameFn(ctx, userID, fullName)
	}
	return &model.Profile{ID: userID, FullName: fullName}, nil
}

func (m *mockUserService) GetUserEmails(ctx context.Context, actor authz.Actor, ids []string) ([]repository.UserEmail, error) {
	if m.getUserEmailsFn != nil {
		return m.getUserEmailsFn(ctx, actor, ids)
	}
	return nil, nil
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

type mockProgramService struct {
	createFn            func(ctx context.Context, actor authz.Actor, in program.Input) (*model.Program, error)
	listFn              func(ctx context.Context, actor authz.Actor) ([]*model.Program, error)
	getFn               func(ctx context.Context, actor authz.Actor, id string) (*program.Detail, error)
	updateFn            func(ctx context.Context, actor authz.Actor, id string, in program.Input) (*model.Program, error)
	deleteFn            func(ctx context.Context, actor authz.Actor, id string) error
	setWeekTargetsFn    func(ctx context.Context, actor authz.Actor, programID string, week int, in program.WeekTargets) (*model.WorkoutWeek, error)
	addWorkoutFn        func(ctx context.Context, actor authz.Actor, programID string, week int, in program.WorkoutInput) (*model.Workout, error)
	moveWorkoutFn       func(ctx context.Context, actor authz.Actor, workoutID string, dir program.Direction) ([]*model.Workout, error)
	assignFn            func(ctx context.Context, actor authz.Actor, in program.AssignInput) (*model.ProgramAssignment, error)
	currentAssignmentFn func(ctx context.Context, actor authz.Actor, userID string) (*model.ProgramAssignment, error)
}

var _ ProgramServiceInterface = (*mockProgramService)(nil)

func (m *mockProgramService) Create(ctx context.Context, actor authz.Actor, in program.Input) (*model.Program, error) {
	if m.createFn != nil {
		return m.createFn(ctx, actor, in)
	}
	return &model.Program{}, nil
}

func (m *mockProgramService) List(ctx context.Context, actor authz.Actor) ([]*model.Program, error) {
	if m.listFn != nil {
		return m.listFn(ctx, actor)
	}
	return nil, nil
}

func (m *mockProgramService) Get(ctx context.Context, actor authz.Actor, id string) (*program.Detail, error) {
	if m.getFn != nil {
		return m.getFn(ctx, actor, id)
	}
	return &program.Detail{Program: &model.Program{ID: id}}, nil
}

func (m *mockProgramService) Update(ctx context.Context, actor authz.Actor, id string, in program.Input) (*model.Program, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, actor, id, in)
	}
	return &model.Program{ID: id}, nil
}

func (m *mockProgramService) Delete(ctx context.Context, actor authz.Actor, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, actor, id)
	}
	return nil
}

func (m *mockProgramService) SetWeekTargets(ctx context.Context, actor authz.Actor, programID string, week int, in program.WeekTargets) (*model.WorkoutWeek, error) {
	if m.setWeekTargetsFn != nil {
		return m.setWeekTargetsFn(ctx, actor, programID, week, in)
	}
	return &model.WorkoutWeek{ProgramID: programID, WeekNumber: week}, nil
}

func (m *mockProgramService) AddWorkout(ctx context.Context, actor authz.Actor, programID string, week int, in program.WorkoutInput) (*model.Workout, error) {
	if m.addWorkoutFn != nil {
		return m.addWorkoutFn(ctx, actor, programID, week, in)
	}
	return &model.Workout{ProgramID: programID}, nil
}

func (m *mockProgramService) MoveWorkout(ctx context.Context, actor authz.Actor, workoutID string, dir program.Direction) ([]*model.Workout, error) {
	if m.moveWorkoutFn != nil {
		return m.moveWorkoutFn(ctx, actor, workoutID, dir)
	}
	return nil, nil
}

func (m *mockProgramService) Assign(ctx context.Context, actor authz.Actor, in program.AssignInput) (*model.ProgramAssignment, error) {
	if m.assignFn != nil {
		return m.assignFn(ctx, actor, in)
	}
	return &model.ProgramAssignment{}, nil
}

func (m *mockProgramService) CurrentAssignment(ctx context.Context, actor authz.Actor, userID string) (*model.ProgramAssignment, error) {
	if m.currentAssignmentFn != nil {
		return m.currentAssignmentFn(ctx, actor, userID)
	}
	return nil, nil
}

type mockActivityService struct {
	startWorkoutFn func(ctx context.Context, actor authz.Actor, workoutID string) (*model.WorkoutCompletion, error)
	completeFn     func(ctx context.Context, actor authz.Actor, id string, in activity.CompleteInput) (*model.WorkoutCompletion, error)
	logFn          func(ctx context.Context, actor authz.Actor, in activity.LogInput) (*model.WorkoutCompletion, error)
	listFn         func(ctx context.Context, actor authz.Actor, userID, from, to string) ([]*model.WorkoutCompletion, error)
}

var _ ActivityServiceInterface = (*mockActivityService)(nil)

func (m *mockActivityService) StartWorkout(ctx context.Context, actor authz.Actor, workoutID string) (*model.WorkoutCompletion, error) {
	if m.startWorkoutFn != nil {
		return m.startWorkoutFn(ctx, actor, workoutID)
	}
	return &model.WorkoutCompletion{WorkoutID: &workoutID}, nil
}

func (m *mockActivityService) Complete(ctx context.Context, actor authz.Actor, id string, in activity.CompleteInput) (*model.WorkoutCompletion, error) {
	if m.completeFn != nil {
		return m.completeFn(ctx, actor, id, in)
	}
	return &model.WorkoutCompletion{ID: id}, nil
}

func (m *mockActivityService) Log(ctx context.Context, actor authz.Actor, in activity.LogInput) (*model.WorkoutCompletion, error) {
	if m.logFn != nil {
		return m.logFn(ctx, actor, in)
	}
	return &model.WorkoutCompletion{WorkoutType: in.WorkoutType}, nil
}

func (m *mockActivityService) List(ctx context.Context, actor authz.Actor, userID, from, to string) ([]*model.WorkoutCompletion, error) {
	if m.listFn != nil {
		return m.listFn(ctx, actor, userID, from, to)
	}
	return nil, nil
}

type mockProgressService struct {
	getWeeklyProgressFn func(ctx context.Context, actor authz.Actor, clientID string) (*progress.WeeklyProgress, error)
}

var _ ProgressServiceInterface = (*mockProgressService)(nil)

func (m *mockProgressService) GetWeeklyProgress(ctx context.Context, actor authz.Actor, clientID string) (*progress.WeeklyProgress, error) {
	if m.getWeeklyProgressFn != nil {
		return m.getWeeklyProgressFn(ctx, actor, clientID)
	}
	return progress.DefaultProgress(), nil
}

type mockBackfillRunner struct {
	runFn func(ctx context.Context, req badge.BackfillRequest) (*badge.BackfillReport, error)
}

var _ BackfillRunner = (*mockBackfillRunner)(nil)

func (m *mockBackfillRunner) Run(ctx context.Context, req badge.BackfillRequest) (*badge.BackfillReport, error) {
	if m.runFn != nil {
		return m.runFn(ctx, req)
	}
	return &badge.BackfillReport{DryRun: req.DryRun, Users: []badge.UserReport{}}, nil
}

type mockInvitationService struct {
	createFn          func(ctx context.Context, actor authz.Actor, email string, userType model.UserType) (*invitation.Created, error)
	createShareLinkFn func(ctx context.Context, actor authz.Actor, userType model.UserType) (*invitation.Created, error)
	validateFn        func(ctx context.Context, token string) (*model.Invitation, error)
}

var _ InvitationServiceInterface = (*mockInvitationService)(nil)

func (m *mockInvitationService) Create(ctx context.Context, actor authz.Actor, email string, userType model.UserType) (*invitation.Created, error) {
	if m.createFn != nil {
		return m.createFn(ctx, actor, email, userType)
	}
	return &invitation.Created{Invitation: &model.Invitation{Email: &email, UserType: userType}}, nil
}

func (m *mockInvitationService) CreateShareLink(ctx context.Context, actor authz.Actor, userType model.UserType) (*invitation.Created, error) {
	if m.createShareLinkFn != nil {
		return m.createShareLinkFn(ctx, actor, userType)
	}
	return &invitation.Created{Invitation: &model.Invitation{UserType: userType, IsShareLink: true}}, nil
}

func (m *mockInvitationService) Validate(ctx context.Context, token string) (*model.Invitation, error) {
	if m.validateFn != nil {
		return m.validateFn(ctx, token)
	}
	return nil, model.NewInvitationNotFoundError()
}

type mockGroupService struct {
	createFn       func(ctx context.Context, actor authz.Actor, in group.CreateInput) (*model.Group, error)
	listFn         func(ctx context.Context, actor authz.Actor, coachID string) ([]*model.Group, error)
	membersFn      func(ctx context.Context, actor authz.Actor, groupID string) ([]string, error)
	addMemberFn    func(ctx context.Context, actor authz.Actor, groupID, userID string) error
	removeMemberFn func(ctx context.Context, actor authz.Actor, groupID, userID string) error
}

var _ GroupServiceInterface = (*mockGroupService)(nil)

func (m *mockGroupService) Create(ctx context.Context, actor authz.Actor, in group.CreateInput) (*model.Group, error) {
	if m.createFn != nil {
		return m.createFn(ctx, actor, in)
	}
	return &model.Group{ID: "group-1", Name: in.Name, CoachID: actor.UserID}, nil
}

func (m *mockGroupService) List(ctx context.Context, actor authz.Actor, coachID string) ([]*model.Group, error) {
	if m.listFn != nil {
		return m.listFn(ctx, actor, coachID)
	}
	return []*model.Group{}, nil
}

func (m *mockGroupService) Members(ctx context.Context, actor authz.Actor, groupID string) ([]string, error) {
	if m.membersFn != nil {
		return m.membersFn(ctx, actor, groupID)
	}
	return []string{}, nil
}

func (m *mockGroupService) AddMember(ctx context.Context, actor authz.Actor, groupID, userID string) error {
	if m.addMemberFn != nil {
		return m.addMemberFn(ctx, actor, groupID, userID)
	}
	return nil
}

func (m *mockGroupService) RemoveMember(ctx context.Context, actor authz.Actor, groupID, userID string) error {
	if m.removeMemberFn != nil {
		return m.removeMemberFn(ctx, actor, groupID, userID)
	}
	return nil
}

// --- テストヘルパー ---

// withActor はリクエストのコンテキストに認証済みプリンシパルを注入する。
func withActor(r *http.Request, userID string, userType model.UserType) *http.Request {
	p := &auth.Principal{UserID: userID, UserType: userType, SessionID: "session-" + userID}
	return r.WithContext(middleware.ContextWithPrincipal(r.Context(), p))
}

// jsonRequest はJSONボディ付きのリクエストを生成する。
func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// decodeBody はレスポンスボディをvにデコードする。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response body: %v (body=%q)", err, w.Body.String())
	}
}

// errorCode はエラーレスポンスのcodeを取り出す。
func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body middleware.ErrorResponseBody
	decodeBody(t, w, &body)
	return body.Code
}
