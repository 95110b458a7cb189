package database_test

import (
	"testing"
	"time"

	"shadowhawk/internal/database"
	"shadowhawk/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createUser(t *testing.T, username string) *database.User {
	t.Helper()
	user := &database.User{
		Username:     username,
		PasswordHash: "$2a$10$notarealhashnotarealhashnotarealhash",
		Role:         "viewer",
		IsActive:     true,
	}
	require.NoError(t, database.NewUserRepo().Create(user))
	return user
}

// ============== UserRepo Tests ==============

func TestUserRepo_LockDeactivates(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	repo := database.NewUserRepo()
	user := createUser(t, "alice")

	until := time.Now().UTC().Add(30 * time.Minute)
	require.NoError(t, repo.Lock(user.ID, until))

	stored, err := repo.FindByID(user.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	require.NotNil(t, stored.LockedUntil)
	assert.True(t, stored.Locked(time.Now().UTC()))
	assert.False(t, stored.Locked(until.Add(time.Second)))
}

func TestUserRepo_UnlockRestores(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	repo := database.NewUserRepo()
	user := createUser(t, "alice")
	require.NoError(t, repo.IncrementFailedAttempts(user.ID))
	require.NoError(t, repo.IncrementFailedAttempts(user.ID))
	require.NoError(t, repo.Lock(user.ID, time.Now().UTC().Add(time.Hour)))

	require.NoError(t, repo.Unlock(user.ID))

	stored, err := repo.FindByID(user.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
	assert.Nil(t, stored.LockedUntil)
	assert.Zero(t, stored.FailedAttempts)
}

func TestUserRepo_RecordLoginResetsCounters(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	repo := database.NewUserRepo()
	user := createUser(t, "alice")
	require.NoError(t, repo.IncrementFailedAttempts(user.ID))
	require.NoError(t, repo.IncrementFailedAttempts(user.ID))
	require.NoError(t, repo.IncrementFailedAttempts(user.ID))

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.RecordLogin(user.ID, at))

	stored, err := repo.FindByID(user.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.FailedAttempts)
	assert.Nil(t, stored.LockedUntil)
	require.NotNil(t, stored.LastLogin)
	assert.True(t, stored.LastLogin.Equal(at))
}

func TestUserRepo_UpdatePasswordClearsLockState(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	repo := database.NewUserRepo()
	user := createUser(t, "alice")
	require.NoError(t, repo.Lock(user.ID, time.Now().UTC().Add(time.Hour)))

	require.NoError(t, repo.UpdatePassword(user.ID, "$2a$10$newhash"))

	stored, err := repo.FindByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "$2a$10$newhash", stored.PasswordHash)
	assert.Zero(t, stored.FailedAttempts)
	assert.Nil(t, stored.LockedUntil)
}

func TestUserRepo_DuplicateUsernameRejected(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	createUser(t, "alice")
	err := database.NewUserRepo().Create(&database.User{
		Username:     "alice",
		PasswordHash: "x",
		Role:         "viewer",
	})
	assert.Error(t, err)
}

// ============== ActivityRepo Tests ==============

func TestActivityRepo_CountFlagged(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	repo := database.NewActivityRepo()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	since := now.Add(-5 * time.Minute)

	seed := func(userID uint, action, risk string, ts time.Time) {
		require.NoError(t, repo.Create(&database.Activity{
			UserID: userID, Action: action, Risk: risk, Timestamp: ts,
		}))
	}

	seed(7, "failed_login", "low", now.Add(-time.Minute))   // action 命中
	seed(7, "user_logout", "low", now.Add(-2*time.Minute))  // action 命中
	seed(7, "scroll", "high", now.Add(-3*time.Minute))      // risk 命中
	seed(7, "click", "low", now.Add(-time.Minute))          // 不命中
	seed(7, "failed_login", "low", since.Add(-time.Second)) // 窗口外
	seed(8, "failed_login", "low", now.Add(-time.Minute))   // 其他用户

	count, err := repo.CountFlagged(7, since)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestActivityRepo_DeleteOlderThan(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	repo := database.NewActivityRepo()
	now := time.Now().UTC()
	cutoff := now.Add(-8 * time.Hour)

	require.NoError(t, repo.Create(&database.Activity{Action: "old", Timestamp: cutoff.Add(-time.Minute)}))
	require.NoError(t, repo.Create(&database.Activity{Action: "old", Timestamp: cutoff.Add(-time.Hour)}))
	require.NoError(t, repo.Create(&database.Activity{Action: "fresh", Timestamp: now}))

	deleted, err := repo.DeleteOlderThan(cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	total, err := repo.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestActivityRepo_ListFilters(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	repo := database.NewActivityRepo()
	now := time.Now().UTC()
	require.NoError(t, repo.Create(&database.Activity{UserID: 7, Action: "click", Risk: "low", SessionID: "sess_a", Timestamp: now}))
	require.NoError(t, repo.Create(&database.Activity{UserID: 7, Action: "failed_login", Risk: "high", SessionID: "sess_a", Timestamp: now}))
	require.NoError(t, repo.Create(&database.Activity{UserID: 8, Action: "click", Risk: "low", SessionID: "sess_b", Timestamp: now}))

	items, total, err := repo.List(database.ActivityFilter{UserID: 7, Risk: "high"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "failed_login", items[0].Action)

	items, total, err = repo.List(database.ActivityFilter{Keyword: "click"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, items, 2)
}

// ============== ProfileRepo Tests ==============

func TestProfileRepo_ReplaceUpserts(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	repo := database.NewProfileRepo()

	first := &database.BehaviorProfile{UserID: 7, LoginHourMin: 9, LoginHourMax: 17, BaselineRisk: 60}
	require.NoError(t, repo.Replace(first))

	second := &database.BehaviorProfile{UserID: 7, LoginHourMin: 8, LoginHourMax: 18, BaselineRisk: 72}
	require.NoError(t, repo.Replace(second))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	stored, err := repo.Get(7)
	require.NoError(t, err)
	assert.Equal(t, 8.0, stored.LoginHourMin)
	assert.Equal(t, 72, stored.BaselineRisk)
}

func TestProfileRepo_JSONListRoundTrip(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	repo := database.NewProfileRepo()
	profile := &database.BehaviorProfile{UserID: 7}
	profile.SetCommonActions([]string{"click", "scroll"})
	profile.SetTypicalLocations([]string{"Berlin, DE"})
	require.NoError(t, repo.Replace(profile))

	stored, err := repo.Get(7)
	require.NoError(t, err)
	assert.Equal(t, []string{"click", "scroll"}, stored.CommonActionList())
	assert.Equal(t, []string{"Berlin, DE"}, stored.TypicalLocationList())
	assert.Empty(t, stored.FrequentPageList())
}

// ============== SettingRepo Tests ==============

func TestSettingRepo_SetUpserts(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	repo := database.NewSettingRepo()
	require.NoError(t, repo.Set("alert.webhook", "https://example.com/a"))
	require.NoError(t, repo.Set("alert.webhook", "https://example.com/b"))

	value, err := repo.Get("alert.webhook")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/b", value)
}

func TestSettingRepo_SetBatch(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	repo := database.NewSettingRepo()
	require.NoError(t, repo.Set("notify.telegram_token", "old"))

	require.NoError(t, repo.SetBatch(map[string]string{
		"notify.telegram_token": "new",
		"notify.telegram_chat":  "12345",
	}))

	all, err := repo.GetAll()
	require.NoError(t, err)
	assert.Equal(t, "new", all["notify.telegram_token"])
	assert.Equal(t, "12345", all["notify.telegram_chat"])
}

// ============== AlertRepo Tests ==============

func TestAlertRepo_UnreadLifecycle(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	repo := database.NewAlertRepo()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(&database.Alert{
			AlertID: "alt_test", Risk: "high", Message: "suspicious login",
		}))
	}

	unread, err := repo.CountUnread()
	require.NoError(t, err)
	assert.EqualValues(t, 3, unread)

	alerts, err := repo.Recent(10)
	require.NoError(t, err)
	require.Len(t, alerts, 3)
	require.NoError(t, repo.MarkNotified(alerts[0].ID))

	unread, err = repo.CountUnread()
	require.NoError(t, err)
	assert.EqualValues(t, 2, unread)

	require.NoError(t, repo.MarkAllNotified())
	unread, err = repo.CountUnread()
	require.NoError(t, err)
	assert.Zero(t, unread)
}

// ============== LoginRecordRepo Tests ==============

func TestLoginRecordRepo_ListByStatus(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	repo := database.NewLoginRecordRepo()
	require.NoError(t, repo.Create(&database.LoginRecord{UserID: 7, Username: "alice", Status: "success", Risk: "low"}))
	require.NoError(t, repo.Create(&database.LoginRecord{UserID: 7, Username: "alice", Status: "failed", Risk: "medium"}))
	require.NoError(t, repo.Create(&database.LoginRecord{UserID: 7, Username: "alice", Status: "suspended", Risk: "high"}))

	records, total, err := repo.List(database.LoginRecordFilter{Status: "suspended"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, "high", records[0].Risk)
}
