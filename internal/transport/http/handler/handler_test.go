package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/dishdash-auth/internal/application/auth"
	"github.com/dishdash-auth/internal/application/profile"
	"github.com/dishdash-auth/internal/domain"
	jwtinfra "github.com/dishdash-auth/internal/infrastructure/jwt"
	"github.com/dishdash-auth/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockAuthSvc struct{ mock.Mock }

func (m *mockAuthSvc) Signup(ctx context.Context, req domain.SignupRequest) (*domain.PublicUser, error) {
	args := m.Called(ctx, req)
	if u, _ := args.Get(0).(*domain.PublicUser); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAuthSvc) Login(ctx context.Context, req domain.LoginRequest) (*auth.LoginResult, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*auth.LoginResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAuthSvc) Logout(ctx context.Context, username, authorization string) error {
	return m.Called(ctx, username, authorization).Error(0)
}

func (m *mockAuthSvc) Deactivate(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockAuthSvc) Me(ctx context.Context, userID string) (*domain.PublicUser, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.PublicUser); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockOTPSvc struct{ mock.Mock }

func (m *mockOTPSvc) Request(ctx context.Context, ch domain.Channel, req domain.OTPRequest) (*domain.ChallengeResponse, error) {
	args := m.Called(ctx, ch, req)
	if r, _ := args.Get(0).(*domain.ChallengeResponse); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOTPSvc) Verify(ctx context.Context, ch domain.Channel, req domain.OTPVerifyRequest) (domain.VerifyOutcome, error) {
	args := m.Called(ctx, ch, req)
	return args.Get(0).(domain.VerifyOutcome), args.Error(1)
}

type mockProfileSvc struct{ mock.Mock }

func (m *mockProfileSvc) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	args := m.Called(ctx, userID)
	if p, _ := args.Get(0).(*domain.Profile); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProfileSvc) Update(ctx context.Context, userID string, req domain.UpdateProfileRequest) (*domain.Profile, error) {
	args := m.Called(ctx, userID, req)
	if p, _ := args.Get(0).(*domain.Profile); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProfileSvc) UploadImage(ctx context.Context, userID string, in profile.UploadInput) (*domain.Profile, error) {
	args := m.Called(ctx, userID, in.Filename, in.ContentType)
	if p, _ := args.Get(0).(*domain.Profile); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

// --- helpers ---

func jsonBody(t *testing.T, v interface{}) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func withClaims(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.WithClaims(r.Context(), &jwtinfra.Claims{UserID: userID, TokenType: jwtinfra.TokenAccess}))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rr.Body).Decode(v))
}

func otpRouter(h *OTPHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/otp/{channel}/{action}", h.Action)
	return r
}

// --- auth ---

func TestSignup_Created(t *testing.T) {
	svc := new(mockAuthSvc)
	req := domain.SignupRequest{Username: "alice", Email: "a@x.com", Password: "pw1"}
	svc.On("Signup", mock.Anything, req).Return(&domain.PublicUser{UserID: "u1", Username: "alice", Email: "a@x.com"}, nil)

	rr := httptest.NewRecorder()
	NewAuthHandler(svc).Signup(rr, httptest.NewRequest(http.MethodPost, "/v1/signup", jsonBody(t, req)))

	assert.Equal(t, http.StatusCreated, rr.Code)
	var got map[string]interface{}
	decodeBody(t, rr, &got)
	assert.Equal(t, "alice", got["username"])
	assert.NotContains(t, got, "password")
	assert.NotContains(t, got, "password_hash")
	svc.AssertExpectations(t)
}

func TestSignup_InvalidBody(t *testing.T) {
	rr := httptest.NewRecorder()
	NewAuthHandler(new(mockAuthSvc)).Signup(rr, httptest.NewRequest(http.MethodPost, "/v1/signup", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSignup_ErrorMapping(t *testing.T) {
	cases := map[string]struct {
		err  error
		code int
	}{
		"conflict":   {fmt.Errorf("username taken: %w", domain.ErrConflict), http.StatusConflict},
		"validation": {fmt.Errorf("field 'Email' failed 'email': %w", domain.ErrBadRequest), http.StatusBadRequest},
		"internal":   {fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := new(mockAuthSvc)
			svc.On("Signup", mock.Anything, mock.Anything).Return(nil, tc.err)
			rr := httptest.NewRecorder()
			NewAuthHandler(svc).Signup(rr, httptest.NewRequest(http.MethodPost, "/v1/signup", jsonBody(t, domain.SignupRequest{})))
			assert.Equal(t, tc.code, rr.Code)
		})
	}
}

func TestLogin_StatusByReissue(t *testing.T) {
	expiry := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)
	pair := domain.TokenPair{Access: "a", Refresh: "r", AccessTokenExpiry: expiry}

	for _, tc := range []struct {
		reissued bool
		code     int
	}{{true, http.StatusCreated}, {false, http.StatusAccepted}} {
		svc := new(mockAuthSvc)
		svc.On("Login", mock.Anything, mock.Anything).Return(&auth.LoginResult{Pair: pair, Reissued: tc.reissued}, nil)
		rr := httptest.NewRecorder()
		NewAuthHandler(svc).Login(rr, httptest.NewRequest(http.MethodPost, "/v1/login",
			jsonBody(t, domain.LoginRequest{Username: "alice", Password: "pw1"})))

		assert.Equal(t, tc.code, rr.Code)
		var got TokenPairResponse
		decodeBody(t, rr, &got)
		assert.Equal(t, "a", got.Access)
		assert.Equal(t, "r", got.Refresh)
		parsed, err := time.Parse(time.RFC3339Nano, got.AccessTokenExpiry)
		require.NoError(t, err)
		assert.True(t, parsed.Equal(expiry))
	}
}

func TestLogin_Errors(t *testing.T) {
	for err, code := range map[error]int{
		domain.ErrNotFound:     http.StatusNotFound,
		domain.ErrUnauthorized: http.StatusUnauthorized,
		domain.ErrBadRequest:   http.StatusBadRequest,
	} {
		svc := new(mockAuthSvc)
		svc.On("Login", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("login: %w", err))
		rr := httptest.NewRecorder()
		NewAuthHandler(svc).Login(rr, httptest.NewRequest(http.MethodPost, "/v1/login", jsonBody(t, domain.LoginRequest{})))
		assert.Equal(t, code, rr.Code)
	}
}

func TestLogout_PassesHeader(t *testing.T) {
	svc := new(mockAuthSvc)
	svc.On("Logout", mock.Anything, "alice", "Bearer abc").Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/logout", jsonBody(t, domain.LogoutRequest{Username: "alice"}))
	req.Header.Set("Authorization", "Bearer abc")
	rr := httptest.NewRecorder()
	NewAuthHandler(svc).Logout(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var env MessageEnvelope
	decodeBody(t, rr, &env)
	assert.Equal(t, "Logout successful", env.Message)
	svc.AssertExpectations(t)
}

func TestLogout_MissingBearer(t *testing.T) {
	svc := new(mockAuthSvc)
	svc.On("Logout", mock.Anything, "alice", "").Return(fmt.Errorf("no bearer: %w", domain.ErrBadRequest))

	rr := httptest.NewRecorder()
	NewAuthHandler(svc).Logout(rr, httptest.NewRequest(http.MethodPost, "/v1/logout", jsonBody(t, domain.LogoutRequest{Username: "alice"})))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMe_RequiresClaims(t *testing.T) {
	rr := httptest.NewRecorder()
	NewAuthHandler(new(mockAuthSvc)).Me(rr, httptest.NewRequest(http.MethodGet, "/v1/users/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMe_ReturnsUser(t *testing.T) {
	svc := new(mockAuthSvc)
	svc.On("Me", mock.Anything, "u1").Return(&domain.PublicUser{UserID: "u1", Username: "alice"}, nil)

	rr := httptest.NewRecorder()
	NewAuthHandler(svc).Me(rr, withClaims(httptest.NewRequest(http.MethodGet, "/v1/users/me", nil), "u1"))
	assert.Equal(t, http.StatusOK, rr.Code)
	var got domain.PublicUser
	decodeBody(t, rr, &got)
	assert.Equal(t, "alice", got.Username)
}

func TestDeactivate(t *testing.T) {
	svc := new(mockAuthSvc)
	svc.On("Deactivate", mock.Anything, "u1").Return(nil)

	rr := httptest.NewRecorder()
	NewAuthHandler(svc).Deactivate(rr, withClaims(httptest.NewRequest(http.MethodDelete, "/v1/users/me", nil), "u1"))
	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

// --- otp ---

func TestOTP_UnknownChannel(t *testing.T) {
	svc := new(mockOTPSvc)
	rr := httptest.NewRecorder()
	otpRouter(NewOTPHandler(svc)).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/otp/fax/request",
		jsonBody(t, domain.OTPRequest{UserID: "u1", Destination: "x"})))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	svc.AssertNotCalled(t, "Request", mock.Anything, mock.Anything, mock.Anything)
}

func TestOTP_UnknownAction(t *testing.T) {
	rr := httptest.NewRecorder()
	otpRouter(NewOTPHandler(new(mockOTPSvc))).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/otp/email/resend", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOTP_Request(t *testing.T) {
	svc := new(mockOTPSvc)
	in := domain.OTPRequest{UserID: "u1", Destination: "+14155550123"}
	svc.On("Request", mock.Anything, domain.ChannelSMS, in).
		Return(&domain.ChallengeResponse{ChallengeID: "c1", UserID: "u1", Channel: domain.ChannelSMS, Delivered: true}, nil)

	rr := httptest.NewRecorder()
	otpRouter(NewOTPHandler(svc)).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/otp/sms/request", jsonBody(t, in)))

	assert.Equal(t, http.StatusCreated, rr.Code)
	var got map[string]interface{}
	decodeBody(t, rr, &got)
	assert.Equal(t, "c1", got["id"])
	assert.NotContains(t, got, "code")
	svc.AssertExpectations(t)
}

func TestOTP_RequestUnknownUser(t *testing.T) {
	svc := new(mockOTPSvc)
	svc.On("Request", mock.Anything, domain.ChannelEmail, mock.Anything).Return(nil, fmt.Errorf("user: %w", domain.ErrNotFound))

	rr := httptest.NewRecorder()
	otpRouter(NewOTPHandler(svc)).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/otp/email/request",
		jsonBody(t, domain.OTPRequest{UserID: "nope", Destination: "a@x.com"})))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOTP_VerifyOutcomes(t *testing.T) {
	for outcome, code := range map[domain.VerifyOutcome]int{
		domain.OutcomeMatched:           http.StatusOK,
		domain.OutcomeMismatched:        http.StatusNotFound,
		domain.OutcomeNoActiveChallenge: http.StatusBadRequest,
	} {
		svc := new(mockOTPSvc)
		svc.On("Verify", mock.Anything, domain.ChannelEmail, mock.Anything).Return(outcome, nil)

		rr := httptest.NewRecorder()
		otpRouter(NewOTPHandler(svc)).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/otp/email/verify",
			jsonBody(t, domain.OTPVerifyRequest{UserID: "u1", Code: "123456"})))

		assert.Equal(t, code, rr.Code, outcome.String())
		var got VerifyResponse
		decodeBody(t, rr, &got)
		assert.Equal(t, outcome.String(), got.Outcome)
	}
}

// --- profile ---

func TestProfile_Get(t *testing.T) {
	svc := new(mockProfileSvc)
	svc.On("Get", mock.Anything, "u1").Return(&domain.Profile{UserID: "u1", DisplayName: "Alice"}, nil)

	rr := httptest.NewRecorder()
	NewProfileHandler(svc, 1<<20).Get(rr, withClaims(httptest.NewRequest(http.MethodGet, "/v1/profile", nil), "u1"))
	assert.Equal(t, http.StatusOK, rr.Code)
	var got ProfileResponse
	decodeBody(t, rr, &got)
	assert.Equal(t, "Alice", got.DisplayName)
	assert.Empty(t, got.UpdatedAt)
}

func TestProfile_Update(t *testing.T) {
	svc := new(mockProfileSvc)
	name := "Alice"
	req := domain.UpdateProfileRequest{DisplayName: &name}
	svc.On("Update", mock.Anything, "u1", req).Return(&domain.Profile{UserID: "u1", DisplayName: name}, nil)

	rr := httptest.NewRecorder()
	NewProfileHandler(svc, 1<<20).Update(rr, withClaims(httptest.NewRequest(http.MethodPut, "/v1/profile", jsonBody(t, req)), "u1"))
	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

func multipartImage(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func TestProfile_UploadImage(t *testing.T) {
	svc := new(mockProfileSvc)
	url := "https://bucket.s3.amazonaws.com/profiles/u1/x.png"
	svc.On("UploadImage", mock.Anything, "u1", "avatar.png", "image/png").Return(&domain.Profile{UserID: "u1", ImageURL: &url}, nil)

	body, ct := multipartImage(t, "image", "avatar.png", "image/png", []byte("\x89PNG"))
	req := httptest.NewRequest(http.MethodPut, "/v1/profile/image", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	NewProfileHandler(svc, 1<<20).UploadImage(rr, withClaims(req, "u1"))

	assert.Equal(t, http.StatusOK, rr.Code)
	var got ProfileResponse
	decodeBody(t, rr, &got)
	require.NotNil(t, got.ImageURL)
	assert.Equal(t, url, *got.ImageURL)
}

func TestProfile_UploadImage_MissingField(t *testing.T) {
	body, ct := multipartImage(t, "avatar", "avatar.png", "image/png", []byte("x"))
	req := httptest.NewRequest(http.MethodPut, "/v1/profile/image", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	NewProfileHandler(new(mockProfileSvc), 1<<20).UploadImage(rr, withClaims(req, "u1"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProfile_UploadImage_StorageDown(t *testing.T) {
	svc := new(mockProfileSvc)
	svc.On("UploadImage", mock.Anything, "u1", "avatar.png", "image/png").Return(nil, fmt.Errorf("s3: %w", domain.ErrDependency))

	body, ct := multipartImage(t, "image", "avatar.png", "image/png", []byte("x"))
	req := httptest.NewRequest(http.MethodPut, "/v1/profile/image", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	NewProfileHandler(svc, 1<<20).UploadImage(rr, withClaims(req, "u1"))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

// --- health ---

func TestHealth_Ping(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/health-check/{action}", NewHealthHandler().Ping)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health-check/ping", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health-check/other", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
