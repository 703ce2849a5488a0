package engine

import (
	"fmt"
	"time"

	"hypauto/internal/config"
	"hypauto/internal/quota"
)

// RunConfig is everything a run needs from the settings, fixed at construction.
type RunConfig struct {
	Quota             quota.Settings
	ExcessPolicy      quota.ExcessPolicy
	AttachExisting    bool
	AutoSubmitPIN     bool
	StepBudget        int
	StuckThreshold    int
	KVRStuckThreshold int
	Transition        time.Duration
	TransitionPoll    time.Duration
	CacheMaxAge       time.Duration
	QueueGrace        time.Duration
}

// NewRunConfig derives a RunConfig from the loaded configuration.
func NewRunConfig(cfg *config.Config) (RunConfig, error) {
	qs, err := cfg.QuotaSettings()
	if err != nil {
		return RunConfig{}, err
	}
	policy := quota.ExcessPolicy(cfg.Run.CVRExcessPolicy)
	switch policy {
	case "":
		policy = quota.PolicyLeave
	case quota.PolicyLeave, quota.PolicyAutoDelete:
	default:
		return RunConfig{}, fmt.Errorf("run.cvr_excess_policy: unknown policy %q", policy)
	}
	return RunConfig{
		Quota:             qs,
		ExcessPolicy:      policy,
		AttachExisting:    cfg.Browser.AttachExisting,
		AutoSubmitPIN:     cfg.Run.AutoSubmitPIN,
		StepBudget:        cfg.Run.StepBudget,
		StuckThreshold:    cfg.Run.StuckThreshold,
		KVRStuckThreshold: cfg.Run.CVRStuckThreshold,
		Transition:        cfg.GetTransitionTimeout(),
		TransitionPoll:    cfg.GetTransitionPoll(),
		CacheMaxAge:       cfg.GetCacheMaxAge(),
		QueueGrace:        cfg.GetQueueGrace(),
	}, nil
}
