package healing

import (
	"math"
	"time"

	"github.com/customeros/mailmedic/internal/enum"
	"github.com/customeros/mailmedic/internal/models"
)

// Recovery ladder constants. Cooldowns escalate with repeat offenses;
// graduation evidence scales with resilience and healing origin.
const (
	firstOffenseCooldown  = 24 * time.Hour
	repeatOffenseCooldown = 72 * time.Hour
	maxCooldown           = 168 * time.Hour

	cleanSendBaseFirst  = 10
	cleanSendBaseRepeat = 25

	warmRecoveryBaseSends    = 25
	warmRecoveryBaseDuration = 72 * time.Hour
	warmRecoveryBounceLimit  = 0.02

	rehabMultiplier = 1.5

	graduationBonus = 15
	relapsePenalty  = 25

	restrictedSendBaseVolume = 5
	warmRecoveryBaseVolume   = 25
)

// resilienceMultipliers returns the send and time scaling for a score.
// Fragile entities need more evidence and more time; proven ones less.
func resilienceMultipliers(score int) (send float64, duration float64) {
	switch {
	case score <= 30:
		return 2.0, 1.5
	case score <= 70:
		return 1.0, 1.0
	default:
		return 0.75, 0.75
	}
}

func originMultiplier(origin enum.HealingOrigin) float64 {
	if origin == enum.HealingOriginRehab {
		return rehabMultiplier
	}
	return 1.0
}

// cooldownForOffense returns the base cooldown for the Nth consecutive
// pause, before resilience and origin scaling.
func cooldownForOffense(consecutivePauses int) time.Duration {
	switch {
	case consecutivePauses <= 1:
		return firstOffenseCooldown
	case consecutivePauses == 2:
		return repeatOffenseCooldown
	default:
		return maxCooldown
	}
}

// scaledCooldown stretches a base cooldown by the entity's resilience
// time multiplier and origin, never past the ladder maximum.
func scaledCooldown(base time.Duration, fields *models.RecoveryFields) time.Duration {
	_, durationMult := resilienceMultipliers(fields.ResilienceScore)
	scaled := time.Duration(float64(base) * durationMult * originMultiplier(fields.HealingOrigin))
	if scaled > maxCooldown {
		return maxCooldown
	}
	return scaled
}

// requiredCleanSends is the clean-send evidence needed to leave
// restricted sending.
func requiredCleanSends(fields *models.RecoveryFields) int {
	base := cleanSendBaseFirst
	if fields.ConsecutivePauses > 1 {
		base = cleanSendBaseRepeat
	}
	sendMult, _ := resilienceMultipliers(fields.ResilienceScore)
	return int(math.Ceil(float64(base) * sendMult * originMultiplier(fields.HealingOrigin)))
}

// PhaseVolumeLimit is the daily send budget the entity's recovery phase
// allows. Nil means unbounded. Fragile entities get less volume, not
// more: the budget shrinks as the send multiplier grows.
func PhaseVolumeLimit(fields *models.RecoveryFields) *int {
	var base int
	switch fields.RecoveryPhase {
	case enum.RecoveryPhasePaused, enum.RecoveryPhaseQuarantine:
		zero := 0
		return &zero
	case enum.RecoveryPhaseRestrictedSend:
		base = restrictedSendBaseVolume
	case enum.RecoveryPhaseWarmRecovery:
		base = warmRecoveryBaseVolume
	default:
		return nil
	}
	sendMult, _ := resilienceMultipliers(fields.ResilienceScore)
	limit := int(float64(base) / sendMult)
	if limit < 1 {
		limit = 1
	}
	return &limit
}

// warmRecoveryTargets returns the send-volume and dwell-time thresholds
// for graduating warm recovery.
func warmRecoveryTargets(fields *models.RecoveryFields) (sends int, dwell time.Duration) {
	sendMult, durationMult := resilienceMultipliers(fields.ResilienceScore)
	origin := originMultiplier(fields.HealingOrigin)
	sends = int(math.Ceil(float64(warmRecoveryBaseSends) * sendMult * origin))
	dwell = time.Duration(float64(warmRecoveryBaseDuration) * durationMult * origin)
	if dwell > maxCooldown {
		dwell = maxCooldown
	}
	return sends, dwell
}
