package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/moai/internal/authz"
	"github.com/hitoshi/moai/internal/invitation"
	"github.com/hitoshi/moai/internal/model"
)

func TestInvitationHandler_Create_ReportsEmailSent(t *testing.T) {
	svc := &mockInvitationService{
		createFn: func(ctx context.Context, actor authz.Actor, email string, userType model.UserType) (*invitation.Created, error) {
			if actor.UserType != model.UserTypeAdmin {
				t.Errorf("actor = %+v", actor)
			}
			inv := &model.Invitation{ID: "inv-1", Token: "tok", Email: &email, UserType: userType, ExpiresAt: time.Now().Add(time.Hour)}
			return &invitation.Created{Invitation: inv, Link: "https://app.example.com/register?token=tok&type=coach", EmailSent: false}, nil
		},
	}
	h := NewInvitationHandler(svc)

	req := withActor(jsonRequest(http.MethodPost, "/api/invitations", `{"email":"new@example.com","user_type":"coach"}`), "admin-1", model.UserTypeAdmin)
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	var body invitationResponse
	decodeBody(t, w, &body)
	if body.Link == "" {
		t.Error("expected link in response")
	}
	if body.EmailSent == nil || *body.EmailSent {
		t.Errorf("email_sent = %v, want false", body.EmailSent)
	}
	if body.Email == nil || *body.Email != "new@example.com" {
		t.Errorf("email = %v", body.Email)
	}
}

func TestInvitationHandler_Create_Forbidden(t *testing.T) {
	svc := &mockInvitationService{
		createFn: func(ctx context.Context, actor authz.Actor, email string, userType model.UserType) (*invitation.Created, error) {
			return nil, model.NewForbiddenError()
		},
	}
	h := NewInvitationHandler(svc)

	req := withActor(jsonRequest(http.MethodPost, "/api/invitations", `{"email":"x@example.com","user_type":"admin"}`), "client-1", model.UserTypeClient)
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestInvitationHandler_CreateShareLink_OmitsEmailSent(t *testing.T) {
	svc := &mockInvitationService{
		createShareLinkFn: func(ctx context.Context, actor authz.Actor, userType model.UserType) (*invitation.Created, error) {
			inv := &model.Invitation{ID: "inv-2", Token: "share", UserType: userType, IsShareLink: true}
			return &invitation.Created{Invitation: inv, Link: "https://app.example.com/register?token=share&type=client"}, nil
		},
	}
	h := NewInvitationHandler(svc)

	req := withActor(jsonRequest(http.MethodPost, "/api/invitations/share-link", `{"user_type":"client"}`), "coach-1", model.UserTypeCoach)
	w := httptest.NewRecorder()
	h.CreateShareLink(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	var body invitationResponse
	decodeBody(t, w, &body)
	if !body.IsShareLink {
		t.Error("is_share_link should be true")
	}
	if body.EmailSent != nil {
		t.Errorf("email_sent should be omitted for share links, got %v", *body.EmailSent)
	}
	if body.Email != nil {
		t.Errorf("email should be null, got %v", *body.Email)
	}
}

func TestInvitationHandler_Validate_StatusByError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", model.NewInvitationNotFoundError(), http.StatusNotFound},
		{"expired", model.NewInvitationExpiredError(), http.StatusGone},
		{"used", model.NewInvitationUsedError(), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockInvitationService{
				validateFn: func(ctx context.Context, token string) (*model.Invitation, error) {
					return nil, tt.err
				},
			}
			h := NewInvitationHandler(svc)

			req := httptest.NewRequest(http.MethodGet, "/invitations/tok", nil)
			w := serveProgramRoute(http.MethodGet, "/invitations/{token}", h.Validate, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestInvitationHandler_Validate_Success(t *testing.T) {
	var gotToken string
	svc := &mockInvitationService{
		validateFn: func(ctx context.Context, token string) (*model.Invitation, error) {
			gotToken = token
			return &model.Invitation{ID: "inv-1", Token: token, UserType: model.UserTypeClient}, nil
		},
	}
	h := NewInvitationHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/invitations/tok-123", nil)
	w := serveProgramRoute(http.MethodGet, "/invitations/{token}", h.Validate, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotToken != "tok-123" {
		t.Errorf("token = %q, want tok-123", gotToken)
	}
}
