package tracker

import (
	"testing"
	"time"

	"shadowhawk/internal/constants"
	"shadowhawk/internal/database"
	"shadowhawk/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedTracker(t *testing.T) *Tracker {
	t.Helper()
	trk := New(testutil.TestConfig())
	go trk.Start()
	require.Eventually(t, trk.IsRunning, time.Second, 5*time.Millisecond)
	t.Cleanup(trk.Stop)
	return trk
}

func seedActivity(t *testing.T, userID uint, action, risk string, ts time.Time) {
	t.Helper()
	err := database.NewActivityRepo().Create(&database.Activity{
		EventID:   "evt_seed_" + ts.Format("150405.000000000"),
		UserID:    userID,
		Username:  "sarah",
		Action:    action,
		Risk:      risk,
		Timestamp: ts,
	})
	require.NoError(t, err)
}

func testSession() Session {
	return Session{UserID: 7, Username: "sarah", SessionID: "sess_test", IP: "10.0.0.1"}
}

// ============== Record / risk classification ==============

func TestRecord_RequiresRunning(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	trk := New(testutil.TestConfig())
	_, err := trk.Record(testSession(), Event{Action: constants.EventClick})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestRecord_CleanHistoryIsLow(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	trk := startedTracker(t)
	activity, err := trk.Record(testSession(), Event{Action: constants.EventClick})
	require.NoError(t, err)
	assert.Equal(t, constants.RiskLow, activity.Risk)
	assert.NotEmpty(t, activity.EventID)
}

func TestRecord_RiskThresholds(t *testing.T) {
	cases := []struct {
		name    string
		flagged int
		want    string
	}{
		{"one flagged is medium", 1, constants.RiskMedium},
		{"two flagged is high", 2, constants.RiskHigh},
		{"three flagged is high", 3, constants.RiskHigh},
		{"four flagged is critical", 4, constants.RiskCritical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cleanup := testutil.SetupTestDB(t)
			defer cleanup()

			trk := startedTracker(t)
			base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			trk.SetClock(func() time.Time { return base })

			for i := 0; i < tc.flagged; i++ {
				seedActivity(t, 7, "failed_login", constants.RiskMedium,
					base.Add(-time.Duration(i+1)*time.Minute))
			}

			activity, err := trk.Record(testSession(), Event{Action: constants.EventClick})
			require.NoError(t, err)
			assert.Equal(t, tc.want, activity.Risk)
		})
	}
}

func TestRecord_HighRiskActivityCountsAsFlagged(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	trk := startedTracker(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	trk.SetClock(func() time.Time { return base })

	// 动作本身无嫌疑，但已是 high 风险，也计入谓词
	seedActivity(t, 7, constants.EventScroll, constants.RiskHigh, base.Add(-time.Minute))

	activity, err := trk.Record(testSession(), Event{Action: constants.EventClick})
	require.NoError(t, err)
	assert.Equal(t, constants.RiskMedium, activity.Risk)
}

func TestRecord_WindowExcludesOldEvents(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	trk := startedTracker(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	trk.SetClock(func() time.Time { return base })

	// 窗口外（5 分钟零 1 秒前）的事件不参与分级
	seedActivity(t, 7, "logout", constants.RiskLow, base.Add(-5*time.Minute-time.Second))

	activity, err := trk.Record(testSession(), Event{Action: constants.EventClick})
	require.NoError(t, err)
	assert.Equal(t, constants.RiskLow, activity.Risk)
}

func TestRecord_OtherUsersDoNotCount(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	trk := startedTracker(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	trk.SetClock(func() time.Time { return base })

	seedActivity(t, 99, "failed_login", constants.RiskMedium, base.Add(-time.Minute))

	activity, err := trk.Record(testSession(), Event{Action: constants.EventClick})
	require.NoError(t, err)
	assert.Equal(t, constants.RiskLow, activity.Risk)
}

func TestRecord_NetworkOfflineAlwaysHigh(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	trk := startedTracker(t)
	activity, err := trk.Record(testSession(), Event{Action: constants.EventOffline})
	require.NoError(t, err)
	assert.Equal(t, constants.RiskHigh, activity.Risk)
}

// ============== Sessions ==============

func TestSessions_StartRecordEnd(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	trk := startedTracker(t)
	s := testSession()
	trk.StartSession(s)

	states := trk.ActiveSessions()
	require.Len(t, states, 1)
	assert.Equal(t, s.SessionID, states[0].SessionID)
	assert.EqualValues(t, 0, states[0].EventCount)

	_, err := trk.Record(s, Event{Action: constants.EventClick})
	require.NoError(t, err)
	_, err = trk.Record(s, Event{Action: constants.EventKeydown})
	require.NoError(t, err)

	states = trk.ActiveSessions()
	require.Len(t, states, 1)
	assert.EqualValues(t, 2, states[0].EventCount)

	trk.EndSession(s.SessionID)
	assert.Empty(t, trk.ActiveSessions())
}

func TestStop_ClearsSessions(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	trk := startedTracker(t)
	trk.StartSession(testSession())
	trk.Stop()

	assert.False(t, trk.IsRunning())
	assert.Empty(t, trk.ActiveSessions())
}

// ============== Maintain / retention ==============

func TestMaintain_EvictsExpiredActivities(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	trk := New(testutil.TestConfig())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	trk.SetClock(func() time.Time { return base })

	retention := 480 * time.Minute
	seedActivity(t, 7, constants.EventClick, constants.RiskLow, base.Add(-retention-time.Minute)) // 过期
	seedActivity(t, 7, constants.EventClick, constants.RiskLow, base.Add(-retention+time.Minute)) // 保留
	seedActivity(t, 7, constants.EventClick, constants.RiskLow, base.Add(-time.Minute))           // 保留

	trk.Maintain()

	count, err := database.NewActivityRepo().Count()
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestMaintain_EvictsStaleSessions(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	trk := startedTracker(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	trk.SetClock(func() time.Time { return base.Add(-9 * time.Hour) })
	trk.StartSession(Session{UserID: 7, SessionID: "sess_stale"})

	trk.SetClock(func() time.Time { return base })
	trk.StartSession(Session{UserID: 8, SessionID: "sess_fresh"})

	trk.Maintain()

	states := trk.ActiveSessions()
	require.Len(t, states, 1)
	assert.Equal(t, "sess_fresh", states[0].SessionID)
}

// ============== Stats ==============

func TestGetStats(t *testing.T) {
	cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	trk := startedTracker(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	trk.SetClock(func() time.Time { return base })

	seedActivity(t, 7, constants.EventClick, constants.RiskLow, base.Add(-time.Minute))
	seedActivity(t, 7, constants.EventClick, constants.RiskLow, base.Add(-2*time.Minute))
	seedActivity(t, 8, "failed_login", constants.RiskMedium, base.Add(-3*time.Minute))
	// 窗口外
	seedActivity(t, 7, constants.EventClick, constants.RiskLow, base.Add(-2*time.Hour))

	trk.StartSession(testSession())

	stats, err := trk.GetStats()
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Total)
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.EqualValues(t, 2, stats.ByRisk[constants.RiskLow])
	assert.EqualValues(t, 1, stats.ByRisk[constants.RiskMedium])
	assert.EqualValues(t, 2, stats.ByAction[constants.EventClick])
}
