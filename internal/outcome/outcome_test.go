package outcome

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypauto/internal/quota"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestRecorder_StatsAndSummary(t *testing.T) {
	c := &clock{t: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}
	r := NewRecorderWithClock(c.now)

	r.Succeeded("1", quota.HTFollowUp, 7)
	r.Succeeded("1", quota.KVRFollowUp, 0)
	r.Cancelled("2", quota.DIYScreening, "missing lab values", []string{"Kreatinin"}, false)
	r.Skipped("3", "", "all tasks cached")
	r.Failed("4", quota.OBEScreening, "stuck at UNKNOWN")
	c.t = c.t.Add(90 * time.Second)

	s := r.Summary()
	assert.Equal(t, Stats{Succeeded: 2, Cancelled: 1, Skipped: 1, Failed: 1, Elapsed: 90 * time.Second}, s.Stats)
	assert.Equal(t, 1, s.ByTask[quota.HTFollowUp])
	require.Len(t, s.Cancelled, 1)
	assert.Equal(t, []string{"Kreatinin"}, s.Cancelled[0].MissingTests)
	require.Len(t, s.Failed, 1)
	assert.Equal(t, "4", s.Failed[0].PatientID)
}

func TestRecorder_NotifiesListeners(t *testing.T) {
	r := NewRecorder()
	var mu sync.Mutex
	var got []Kind
	r.AddListener(ListenerFunc(func(it Item) {
		mu.Lock()
		got = append(got, it.Kind)
		mu.Unlock()
	}))

	r.Succeeded("1", quota.HTScreening, 3)
	r.Skipped("1", quota.DIYScreening, "quota reached")

	assert.Equal(t, []Kind{Succeeded, Skipped}, got)
}

func TestPatientVerdict(t *testing.T) {
	r := NewRecorder()

	r.Succeeded("ok", quota.HTFollowUp, 5)
	assert.Equal(t, Verdict{Status: StatusSuccess, Message: "1 task(s) completed"}, r.PatientVerdict("ok"))

	r.Cancelled("sms", quota.HTFollowUp, "consent", nil, true)
	assert.Equal(t, StatusSMSGated, r.PatientVerdict("sms").Status)

	r.Succeeded("lab", quota.HTFollowUp, 5)
	r.Cancelled("lab", quota.DIYScreening, "x", []string{"A", "B", "C", "D", "E", "F", "G"}, false)
	v := r.PatientVerdict("lab")
	assert.Equal(t, StatusMissingTests, v.Status)
	assert.Equal(t, "missing tests: A, B, C, D, E and 2 more", v.Message)
	assert.Len(t, v.MissingTests, 7)

	r.Failed("bad", quota.OBEScreening, "stuck at UNKNOWN")
	v = r.PatientVerdict("bad")
	assert.Equal(t, StatusError, v.Status)
	assert.Equal(t, "OBE_TARAMA: stuck at UNKNOWN", v.Message)

	r.Skipped("idle", "", "all tasks cached")
	assert.Equal(t, Verdict{Status: StatusSuccess, Message: "all tasks cached"}, r.PatientVerdict("idle"))
}

func TestPatientName_CarriedIntoItemsAndVerdict(t *testing.T) {
	r := NewRecorder()
	r.NamePatient("12345678901", "AYŞE YILMAZ")
	r.NamePatient("12345678901", "")
	r.Cancelled("12345678901", quota.HTFollowUp, "consent", nil, true)

	items := r.Items("12345678901")
	require.Len(t, items, 1)
	assert.Equal(t, "AYŞE YILMAZ", items[0].PatientName)

	v := r.PatientVerdict("12345678901")
	assert.Equal(t, "AYŞE YILMAZ", v.PatientName)
	assert.Equal(t, StatusSMSGated, v.Status)
	assert.Empty(t, r.PatientVerdict("unknown").PatientName)
}

func TestMissingMessage(t *testing.T) {
	assert.Equal(t, "missing tests: HbA1c", MissingMessage([]string{"HbA1c"}))
	assert.Equal(t, "missing tests: A, B, C, D, E", MissingMessage([]string{"A", "B", "C", "D", "E"}))
}
