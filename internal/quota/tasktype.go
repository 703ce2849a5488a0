// Package quota tracks monthly targets per task type and gates which cards
// the engine may work on.
package quota

import (
	"fmt"
	"strings"
)

// Domain is a disease category on the portal.
type Domain string

const (
	Hypertension   Domain = "HT"
	Diabetes       Domain = "DIY"
	Obesity        Domain = "OBE"
	Cardiovascular Domain = "KVR"
	Elderly        Domain = "YAS"
)

// Kind separates screening from follow-up work.
type Kind string

const (
	Screening Kind = "TARAMA"
	FollowUp  Kind = "IZLEM"
)

// TaskType is a Domain × Kind pair, encoded the way the portal's settings do ("HT_IZLEM").
type TaskType string

const (
	HTScreening  TaskType = "HT_TARAMA"
	HTFollowUp   TaskType = "HT_IZLEM"
	DIYScreening TaskType = "DIY_TARAMA"
	DIYFollowUp  TaskType = "DIY_IZLEM"
	OBEScreening TaskType = "OBE_TARAMA"
	OBEFollowUp  TaskType = "OBE_IZLEM"
	KVRScreening TaskType = "KVR_TARAMA"
	KVRFollowUp  TaskType = "KVR_IZLEM"
	YASFollowUp  TaskType = "YAS_IZLEM"
)

// AllTypes lists every task type the engine knows how to drive.
var AllTypes = []TaskType{
	HTScreening, HTFollowUp,
	DIYScreening, DIYFollowUp,
	OBEScreening, OBEFollowUp,
	KVRScreening, KVRFollowUp,
	YASFollowUp,
}

// NewTaskType builds the code for a domain and kind.
func NewTaskType(d Domain, k Kind) TaskType {
	return TaskType(string(d) + "_" + string(k))
}

// ParseTaskType validates a code such as "DIY_TARAMA".
func ParseTaskType(s string) (TaskType, error) {
	t := TaskType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown task type %q", s)
}

// Domain returns the disease domain part.
func (t TaskType) Domain() Domain {
	d, _, _ := strings.Cut(string(t), "_")
	return Domain(d)
}

// Kind returns the screening/follow-up part.
func (t TaskType) Kind() Kind {
	_, k, _ := strings.Cut(string(t), "_")
	return Kind(k)
}

// IsFollowUp reports whether t is a follow-up task.
func (t TaskType) IsFollowUp() bool {
	return t.Kind() == FollowUp
}

func (t TaskType) String() string {
	return string(t)
}

// LinkedFollowUp returns the task the portal completes alongside t on the same
// encounter. A hypertension follow-up always carries a cardiovascular-risk follow-up.
func LinkedFollowUp(t TaskType) (TaskType, bool) {
	if t == HTFollowUp {
		return KVRFollowUp, true
	}
	return "", false
}
