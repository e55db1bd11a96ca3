package models

import (
	"time"

	"github.com/customeros/mailmedic/internal/enum"
)

// RecoveryFields are the healing-engine columns shared by domains,
// mailboxes and campaigns.
type RecoveryFields struct {
	RecoveryPhase        enum.RecoveryPhase `gorm:"column:recovery_phase;type:varchar(20);index" json:"recoveryPhase"`
	HealingOrigin        enum.HealingOrigin `gorm:"column:healing_origin;type:varchar(20)" json:"healingOrigin"`
	ResilienceScore      int                `gorm:"column:resilience_score;type:integer;NOT NULL;DEFAULT:50" json:"resilienceScore"`
	RelapseCount         int                `gorm:"column:relapse_count;type:integer;NOT NULL;DEFAULT:0" json:"relapseCount"`
	ConsecutivePauses    int                `gorm:"column:consecutive_pauses;type:integer;NOT NULL;DEFAULT:0" json:"consecutivePauses"`
	CooldownUntil        *time.Time         `gorm:"column:cooldown_until;type:timestamp" json:"cooldownUntil"`
	PhaseEnteredAt       *time.Time         `gorm:"column:phase_entered_at;type:timestamp" json:"phaseEnteredAt"`
	CleanSendsSincePhase int                `gorm:"column:clean_sends_since_phase;type:integer;NOT NULL;DEFAULT:0" json:"cleanSendsSincePhase"`
	PhaseSendCount       int                `gorm:"column:phase_send_count;type:integer;NOT NULL;DEFAULT:0" json:"phaseSendCount"`
	PhaseBounceCount     int                `gorm:"column:phase_bounce_count;type:integer;NOT NULL;DEFAULT:0" json:"phaseBounceCount"`
}

// EnterPhase moves the entity into a phase and resets the per-phase
// evidence counters. Clean sends always restart from zero on phase entry.
func (r *RecoveryFields) EnterPhase(phase enum.RecoveryPhase, now time.Time) {
	r.RecoveryPhase = phase
	r.PhaseEnteredAt = &now
	r.CleanSendsSincePhase = 0
	r.PhaseSendCount = 0
	r.PhaseBounceCount = 0
}

// AdjustResilience applies a delta and clamps the score to [0,100].
func (r *RecoveryFields) AdjustResilience(delta int) {
	r.ResilienceScore = ClampScore(r.ResilienceScore + delta)
}

// PhaseBounceRate is the bounce rate observed since phase entry.
func (r *RecoveryFields) PhaseBounceRate() float64 {
	if r.PhaseSendCount == 0 {
		return 0
	}
	return float64(r.PhaseBounceCount) / float64(r.PhaseSendCount)
}

func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// BounceRate computes hard bounces over total sends, 0 when nothing was sent.
func BounceRate(bounces, sends int64) float64 {
	if sends == 0 {
		return 0
	}
	return float64(bounces) / float64(sends)
}
