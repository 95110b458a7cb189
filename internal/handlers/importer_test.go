package handlers

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"shadowhawk/internal/database"
	"shadowhawk/internal/testutil"
	"shadowhawk/internal/web"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func postImport(t *testing.T, h *ImportHandler, body string) (*httptest.ResponseRecorder, importResult) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/import/users", strings.NewReader(body))
	req = web.SetUserInfo(req, 1, "admin", "admin", "sess_a")
	rec := httptest.NewRecorder()
	h.Users(rec, req)

	var result importResult
	if rec.Code == http.StatusOK {
		var resp web.Response
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		data, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &result))
	}
	return rec, result
}

// ============== Import Tests ==============

func TestImportUsers_WellFormedCSV(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	h := NewImportHandler()

	body := "username,name,email,role,department,security_score,is_active\n" +
		"alice,Alice,alice@example.com,analyst,SOC,70,true\n" +
		"bob,Bob,bob@example.com,viewer,IT,40,false\n"

	rec, result := postImport(t, h, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, result.Imported)
	assert.Zero(t, result.Skipped)
	assert.Empty(t, result.Errors)

	alice, err := database.NewUserRepo().FindByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, "analyst", alice.Role)
	assert.Equal(t, 70, alice.SecurityScore)
	// 口令统一重置为初始值
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(alice.PasswordHash), []byte(ImportDefaultPassword)))

	bob, err := database.NewUserRepo().FindByUsername("bob")
	require.NoError(t, err)
	assert.False(t, bob.IsActive)
}

func TestImportUsers_MissingUsernameColumn(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	h := NewImportHandler()

	rec, _ := postImport(t, h, "name,email\nAlice,alice@example.com\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportUsers_SkipsBadRowsKeepsGood(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	h := NewImportHandler()
	seedUser(t, "taken", "whatever")

	body := "username,role\n" +
		"good1,viewer\n" +
		"taken,viewer\n" + // 已存在
		",viewer\n" + // 空用户名
		"good2,overlord\n" + // 未知角色
		"good3,admin\n"

	rec, result := postImport(t, h, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 3, result.Skipped)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "taken already exists")
	assert.Contains(t, result.Errors[1], "empty username")
	assert.Contains(t, result.Errors[2], "unknown role")
}

func TestImportUsers_DefaultsApplied(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	h := NewImportHandler()

	_, result := postImport(t, h, "username\ncarol\n")
	assert.Equal(t, 1, result.Imported)

	carol, err := database.NewUserRepo().FindByUsername("carol")
	require.NoError(t, err)
	assert.Equal(t, "viewer", carol.Role)
	assert.Equal(t, 50, carol.SecurityScore)
	assert.True(t, carol.IsActive)
}

// ============== Export Round-Trip ==============

func TestExportImport_UserRoundTrip(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	repo := database.NewUserRepo()
	require.NoError(t, repo.Create(&database.User{
		Username: "alice", PasswordHash: "x", Name: "Alice",
		Email: "alice@example.com", Role: "analyst", Department: "SOC",
		SecurityScore: 70, IsActive: true,
	}))

	exp := NewExportHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/export/users", nil)
	req = web.SetUserInfo(req, 1, "admin", "admin", "sess_a")
	rec := httptest.NewRecorder()
	exp.Users(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "users_")

	rows, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, userCSVHeader, rows[0])
	// 导出不含口令散列
	assert.NotContains(t, rec.Body.String(), "password")

	// 清空后用导出文件重新导入，字段完整还原（口令除外）
	require.NoError(t, repo.Delete(1))
	_, result := postImport(t, NewImportHandler(), rec.Body.String())
	assert.Equal(t, 1, result.Imported)

	restored, err := repo.FindByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", restored.Name)
	assert.Equal(t, "analyst", restored.Role)
	assert.Equal(t, "SOC", restored.Department)
	assert.Equal(t, 70, restored.SecurityScore)
}

func TestExportUsers_JSONFormat(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	seedUser(t, "alice", "whatever")

	exp := NewExportHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/export/users?format=json", nil)
	req = web.SetUserInfo(req, 1, "admin", "admin", "sess_a")
	rec := httptest.NewRecorder()
	exp.Users(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var views []userView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&views))
	require.Len(t, views, 1)
	assert.Equal(t, "alice", views[0].Username)
}
