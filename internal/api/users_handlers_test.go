package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"soundcrate/internal/auth"
	"soundcrate/internal/media"
)

func TestRegisterLoginAndProfile(t *testing.T) {
	env := newTestHandler(t)

	rec := serve(env.handler.Users, jsonRequest(t, http.MethodPost, "/api/users/register", map[string]string{
		"name": "Ada", "email": "Ada@Example.com", "password": "hunter22",
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("register response leaked password data: %s", rec.Body.String())
	}
	account := decodeBody[accountResponse](t, rec)
	if account.ID == "" || account.Email != "ada@example.com" || account.IsAdmin {
		t.Fatalf("unexpected account %+v", account)
	}
	if account.ProfilePicture == "" {
		t.Fatal("expected default profile picture")
	}

	rec = serve(env.handler.Users, jsonRequest(t, http.MethodPost, "/api/users/login", map[string]string{
		"email": "ada@example.com", "password": "hunter22",
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	login := decodeBody[loginResponse](t, rec)
	if login.Token == "" || login.ID != account.ID {
		t.Fatalf("unexpected login %+v", login)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/users/profile", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	user, err := env.handler.AuthenticateRequest(req)
	if err != nil {
		t.Fatalf("AuthenticateRequest: %v", err)
	}
	rec = serve(env.handler.Users, asUser(req, user))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if strings.Contains(body, `"id"`) || strings.Contains(body, "password") {
		t.Fatalf("profile must omit id and password: %s", body)
	}
	profile := decodeBody[profileResponse](t, rec)
	if profile.Name != "Ada" || profile.LikedSongs == nil {
		t.Fatalf("unexpected profile %+v", profile)
	}
}

func TestRegisterRejectsDuplicatesAndShortPasswords(t *testing.T) {
	env := newTestHandler(t)
	payload := map[string]string{"name": "Ada", "email": "ada@example.com", "password": "hunter22"}
	if rec := serve(env.handler.Register, jsonRequest(t, http.MethodPost, "/api/users/register", payload)); rec.Code != http.StatusCreated {
		t.Fatalf("expected first register to succeed, got %d", rec.Code)
	}

	payload["email"] = "ADA@example.com "
	rec := serve(env.handler.Register, jsonRequest(t, http.MethodPost, "/api/users/register", payload))
	expectError(t, rec, http.StatusConflict, "User already exists")

	rec = serve(env.handler.Register, jsonRequest(t, http.MethodPost, "/api/users/register", map[string]string{
		"name": "Bo", "email": "bo@example.com", "password": "123",
	}))
	expectError(t, rec, http.StatusBadRequest, "Password must be at least 6 characters")

	rec = serve(env.handler.Register, httptest.NewRequest(http.MethodPost, "/api/users/register", strings.NewReader("")))
	expectError(t, rec, http.StatusBadRequest, msgBodyRequired)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestHandler(t)
	env.listener(t)
	cases := map[string]map[string]string{
		"wrong password": {"email": "lee@example.com", "password": "nope-nope"},
		"unknown email":  {"email": "ghost@example.com", "password": "listener1"},
		"empty":          {},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			rec := serve(env.handler.Login, jsonRequest(t, http.MethodPost, "/api/users/login", payload))
			expectError(t, rec, http.StatusUnauthorized, auth.MsgInvalidCredentials)
		})
	}
}

func TestProfileRequiresUser(t *testing.T) {
	env := newTestHandler(t)
	rec := serve(env.handler.Profile, httptest.NewRequest(http.MethodGet, "/api/users/profile", nil))
	expectError(t, rec, http.StatusUnauthorized, MsgNoToken)
}

func TestAuthenticateRequestFailures(t *testing.T) {
	env := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/users/profile", nil)
	if _, err := env.handler.AuthenticateRequest(req); err == nil {
		t.Fatal("expected missing token error")
	}
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	_, err := env.handler.AuthenticateRequest(req)
	if err == nil || !strings.Contains(err.Error(), "Not authorized, token failed") {
		t.Fatalf("expected token failure, got %v", err)
	}
}

func TestUpdateProfileWithPictureUpload(t *testing.T) {
	env := newTestHandler(t)
	user := env.listener(t)

	req := multipartRequest(t, http.MethodPut, "/api/users/profile",
		map[string]string{"name": "Lee Ann", "password": "  spaced  "},
		filePart{field: "profilePicture", filename: "me.png", contentType: "image/png", body: "png"},
	)
	rec := serve(env.handler.Profile, asUser(req, user))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	account := decodeBody[accountResponse](t, rec)
	if account.Name != "Lee Ann" {
		t.Fatalf("expected renamed user, got %+v", account)
	}
	if !strings.HasPrefix(account.ProfilePicture, "http://media.test/media/"+media.FolderProfiles+"/") {
		t.Fatalf("expected uploaded profile picture, got %q", account.ProfilePicture)
	}
	if left := stagedFiles(t, env.intake); len(left) != 0 {
		t.Fatalf("expected staged files to be removed, left %v", left)
	}

	if _, err := env.handler.Auth.Authenticate(context.Background(), "lee@example.com", "  spaced  "); err != nil {
		t.Fatalf("expected password to be replaced verbatim: %v", err)
	}
}
