package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"hypauto/internal/outcome"
)

// Notice is the JSON document written for each processed patient.
type Notice struct {
	ID           string    `json:"id"`
	PatientID    string    `json:"patient_id"`
	PatientName  string    `json:"patient_name"`
	Status       string    `json:"status"`
	Message      string    `json:"message"`
	MissingTests []string  `json:"missing_tests,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	// Read is flipped by the operator's client once the notice was shown.
	Read bool `json:"read"`
}

// Outbox writes notices into a directory.
type Outbox struct {
	dir string
	now func() time.Time
}

// NewOutbox returns an outbox over dir.
func NewOutbox(dir string) *Outbox {
	return &Outbox{dir: dir, now: time.Now}
}

// Write stores a notice for the verdict as <patient>_<HHMMSS>.json and
// returns its path. The file appears atomically.
func (o *Outbox) Write(patientID string, v outcome.Verdict) (string, error) {
	if err := os.MkdirAll(o.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create outbox: %w", err)
	}
	now := o.now()
	n := Notice{
		ID:           uuid.New().String(),
		PatientID:    patientID,
		PatientName:  v.PatientName,
		Status:       v.Status,
		Message:      v.Message,
		MissingTests: v.MissingTests,
		CreatedAt:    now,
	}
	data, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return "", err
	}

	path := filepath.Join(o.dir, fmt.Sprintf("%s_%s.json", patientID, now.Format("150405")))
	tmp, err := os.CreateTemp(o.dir, ".notice-*.tmp")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return path, nil
}
