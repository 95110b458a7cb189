package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"shadowhawk/internal/auth"
	"shadowhawk/internal/database"
	"shadowhawk/internal/testutil"
	"shadowhawk/internal/tracker"
	"shadowhawk/internal/web"
	"shadowhawk/internal/webconfig"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setupAuthHandler(t *testing.T) (*AuthHandler, *webconfig.Config, func()) {
	t.Helper()
	cleanup := testutil.SetupTestDB(t)
	cfg := testutil.TestConfig()
	h := NewAuthHandler(cfg, auth.NewManager(cfg), tracker.New(cfg))
	return h, cfg, cleanup
}

func seedUser(t *testing.T, username, password string) *database.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &database.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         "viewer",
		IsActive:     true,
	}
	require.NoError(t, database.NewUserRepo().Create(user))
	return user
}

func postLogin(t *testing.T, h *AuthHandler, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.RemoteAddr = "10.0.0.1:4000"
	rec := httptest.NewRecorder()
	h.Login(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) web.Response {
	t.Helper()
	var resp web.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

// ============== Login Tests ==============

func TestLogin_Success(t *testing.T) {
	h, cfg, cleanup := setupAuthHandler(t)
	defer cleanup()
	seedUser(t, "alice", "correct-horse")

	rec := postLogin(t, h, "alice", "correct-horse")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeEnvelope(t, rec)
	require.True(t, resp.Success)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var lr loginResponse
	require.NoError(t, json.Unmarshal(data, &lr))

	assert.Contains(t, lr.SessionID, "sess_")
	assert.Equal(t, "alice", lr.User.Username)

	claims, err := web.ValidateJWT(lr.Token, cfg.Auth.JWTSecret)
	require.NoError(t, err)
	assert.Equal(t, lr.SessionID, claims.SessionID)

	// 成功登录写会话 Cookie
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "hawk_token", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	// 成功登录写一条 success 记录
	records, total, err := database.NewLoginRecordRepo().List(database.LoginRecordFilter{Status: "success"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "10.0.0.1", records[0].IP)
}

func TestLogin_EmptyCredentials(t *testing.T) {
	h, _, cleanup := setupAuthHandler(t)
	defer cleanup()

	rec := postLogin(t, h, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "AUTH_EMPTY_CREDENTIALS", decodeEnvelope(t, rec).ErrorCode)
}

func TestLogin_WrongPasswordShowsRemaining(t *testing.T) {
	h, _, cleanup := setupAuthHandler(t)
	defer cleanup()
	seedUser(t, "alice", "correct-horse")

	rec := postLogin(t, h, "alice", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Equal(t, "AUTH_INVALID_PASSWORD", resp.ErrorCode)
	assert.Contains(t, resp.Message, "4 attempts remaining")
}

func TestLogin_UnknownUserHidesRemaining(t *testing.T) {
	h, _, cleanup := setupAuthHandler(t)
	defer cleanup()

	rec := postLogin(t, h, "ghost", "whatever")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Equal(t, "AUTH_INVALID_PASSWORD", resp.ErrorCode)
	assert.NotContains(t, resp.Message, "attempts remaining")
}

func TestLogin_LockoutReturns423(t *testing.T) {
	h, cfg, cleanup := setupAuthHandler(t)
	defer cleanup()
	seedUser(t, "alice", "correct-horse")

	for i := 0; i < cfg.Security.MaxLoginAttempts-1; i++ {
		rec := postLogin(t, h, "alice", "wrong")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := postLogin(t, h, "alice", "wrong")
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Equal(t, "AUTH_ACCOUNT_LOCKED", decodeEnvelope(t, rec).ErrorCode)

	// 锁定期内正确口令同样拒绝
	rec = postLogin(t, h, "alice", "correct-horse")
	assert.Equal(t, http.StatusLocked, rec.Code)
}

func TestLogin_InjectionRejected(t *testing.T) {
	h, _, cleanup := setupAuthHandler(t)
	defer cleanup()

	rec := postLogin(t, h, "<script>alert(1)</script>", "x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "AUTH_UNSAFE_INPUT", decodeEnvelope(t, rec).ErrorCode)
}

// ============== Setup Tests ==============

func TestSetup_CreatesFirstAdmin(t *testing.T) {
	h, _, cleanup := setupAuthHandler(t)
	defer cleanup()

	body := `{"username":"root","password":"longenough","name":"Root"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/setup", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	h.Setup(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	user, err := database.NewUserRepo().FindByUsername("root")
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("longenough")))
}

func TestSetup_RejectedWhenUsersExist(t *testing.T) {
	h, _, cleanup := setupAuthHandler(t)
	defer cleanup()
	seedUser(t, "alice", "correct-horse")

	body := `{"username":"root","password":"longenough"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/setup", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	h.Setup(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "AUTH_SETUP_DONE", decodeEnvelope(t, rec).ErrorCode)
}

// ============== ChangePassword Tests ==============

func TestChangePassword(t *testing.T) {
	h, _, cleanup := setupAuthHandler(t)
	defer cleanup()
	user := seedUser(t, "alice", "oldpassword")

	send := func(old, newPwd string) *httptest.ResponseRecorder {
		body := fmt.Sprintf(`{"old_password":%q,"new_password":%q}`, old, newPwd)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/password", bytes.NewReader([]byte(body)))
		req = web.SetUserInfo(req, user.ID, user.Username, user.Role, "sess_a")
		rec := httptest.NewRecorder()
		h.ChangePassword(rec, req)
		return rec
	}

	rec := send("oldpassword", "short")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send("wrongold", "newpassword")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTH_OLD_PASSWORD_WRONG", decodeEnvelope(t, rec).ErrorCode)

	rec = send("oldpassword", "newpassword")
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := database.NewUserRepo().FindByID(user.ID)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("newpassword")))
}

func TestChangePassword_LegacyPlaintextAccount(t *testing.T) {
	h, _, cleanup := setupAuthHandler(t)
	defer cleanup()

	// 旧库迁移来的明文口令账号，未登录过、尚未转 bcrypt
	user := &database.User{
		Username:     "legacy",
		PasswordHash: "plain-old-secret",
		Role:         "viewer",
		IsActive:     true,
	}
	require.NoError(t, database.NewUserRepo().Create(user))

	send := func(old, newPwd string) *httptest.ResponseRecorder {
		body := fmt.Sprintf(`{"old_password":%q,"new_password":%q}`, old, newPwd)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/password", bytes.NewReader([]byte(body)))
		req = web.SetUserInfo(req, user.ID, user.Username, user.Role, "sess_l")
		rec := httptest.NewRecorder()
		h.ChangePassword(rec, req)
		return rec
	}

	rec := send("not-the-secret", "newpassword")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// 明文旧口令直接可用于改密，无需先登录一次
	rec = send("plain-old-secret", "newpassword")
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := database.NewUserRepo().FindByID(user.ID)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("newpassword")))
}
