package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemainingTarget_Formula(t *testing.T) {
	tr := NewTracker(Settings{
		Targets:        map[TaskType]int{HTFollowUp: 45},
		Current:        map[TaskType]int{HTFollowUp: 10},
		Deferred:       map[TaskType]int{HTFollowUp: 2},
		SessionPercent: 70,
	})

	// floor(45*70/100) = 31; 31 - 10 - 2 = 19
	assert.Equal(t, 19, tr.RemainingTarget(HTFollowUp))
	assert.Equal(t, 0, tr.RemainingTarget(DIYScreening))
}

func TestRemainingTarget_NonIncreasingAndNonNegative(t *testing.T) {
	for _, tt := range AllTypes {
		tr := NewTracker(Settings{
			Targets: map[TaskType]int{tt: 5},
			Current: map[TaskType]int{tt: 1},
		})
		prev := tr.RemainingTarget(tt)
		for i := 0; i < 10; i++ {
			tr.OnTaskSucceeded(tt)
			got := tr.RemainingTarget(tt)
			if got > prev {
				t.Errorf("%s: remaining grew from %d to %d", tt, prev, got)
			}
			if got < 0 {
				t.Errorf("%s: remaining went negative: %d", tt, got)
			}
			prev = got
		}
		assert.Equal(t, 0, prev, tt)
	}
}

func TestShouldProcess_EnabledSet(t *testing.T) {
	tr := NewTracker(Settings{
		Targets: map[TaskType]int{HTFollowUp: 3, DIYFollowUp: 3},
		Enabled: []TaskType{HTFollowUp},
	})
	assert.True(t, tr.ShouldProcess(HTFollowUp))
	assert.False(t, tr.ShouldProcess(DIYFollowUp), "not in enabled set")

	all := NewTracker(Settings{Targets: map[TaskType]int{DIYFollowUp: 1}})
	assert.True(t, all.ShouldProcess(DIYFollowUp))
	all.OnTaskSucceeded(DIYFollowUp)
	assert.False(t, all.ShouldProcess(DIYFollowUp), "budget exhausted")
}

func TestOnTaskUndone_NeverBelowZero(t *testing.T) {
	tr := NewTracker(Settings{})
	tr.OnTaskUndone(KVRFollowUp)
	assert.Equal(t, 0, tr.SessionCompleted(KVRFollowUp))

	tr.OnTaskSucceeded(KVRFollowUp)
	tr.OnTaskUndone(KVRFollowUp)
	assert.Equal(t, 0, tr.SessionCompleted(KVRFollowUp))
}

func TestParseTaskType(t *testing.T) {
	got, err := ParseTaskType(" ht_izlem ")
	require.NoError(t, err)
	assert.Equal(t, HTFollowUp, got)
	assert.Equal(t, Hypertension, got.Domain())
	assert.True(t, got.IsFollowUp())

	_, err = ParseTaskType("KANSER_MAMO")
	assert.Error(t, err)
}

func TestLinkedFollowUp(t *testing.T) {
	linked, ok := LinkedFollowUp(HTFollowUp)
	require.True(t, ok)
	assert.Equal(t, KVRFollowUp, linked)

	_, ok = LinkedFollowUp(HTScreening)
	assert.False(t, ok)
}

func TestSnapshot(t *testing.T) {
	tr := NewTracker(Settings{
		Targets: map[TaskType]int{YASFollowUp: 10},
		Enabled: []TaskType{YASFollowUp},
	})
	tr.OnTaskSucceeded(YASFollowUp)

	rows := tr.Snapshot()
	require.Len(t, rows, len(AllTypes))
	for _, r := range rows {
		if r.Type == YASFollowUp {
			assert.Equal(t, 9, r.Remaining)
			assert.Equal(t, 1, r.Session)
			assert.True(t, r.Enabled)
		} else {
			assert.False(t, r.Enabled, r.Type)
		}
	}
}
