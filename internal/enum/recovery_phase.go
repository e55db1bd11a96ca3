package enum

type RecoveryPhase string

const (
	RecoveryPhaseNone           RecoveryPhase = ""
	RecoveryPhasePaused         RecoveryPhase = "paused"
	RecoveryPhaseQuarantine     RecoveryPhase = "quarantine"
	RecoveryPhaseRestrictedSend RecoveryPhase = "restricted_send"
	RecoveryPhaseWarmRecovery   RecoveryPhase = "warm_recovery"
	RecoveryPhaseHealthy        RecoveryPhase = "healthy"
)

func (p RecoveryPhase) String() string {
	return string(p)
}

// IsRecovering reports whether an entity in this phase is still inside
// the healing pipeline.
func (p RecoveryPhase) IsRecovering() bool {
	switch p {
	case RecoveryPhasePaused, RecoveryPhaseQuarantine, RecoveryPhaseRestrictedSend, RecoveryPhaseWarmRecovery:
		return true
	default:
		return false
	}
}

// RecoveringPhases lists the phases the graduation poller sweeps.
func RecoveringPhases() []RecoveryPhase {
	return []RecoveryPhase{
		RecoveryPhasePaused,
		RecoveryPhaseQuarantine,
		RecoveryPhaseRestrictedSend,
		RecoveryPhaseWarmRecovery,
	}
}

// Next returns the phase an entity graduates into. Phases must be
// traversed in order; there is no shortcut from paused or quarantine
// to healthy.
func (p RecoveryPhase) Next() RecoveryPhase {
	switch p {
	case RecoveryPhasePaused:
		return RecoveryPhaseQuarantine
	case RecoveryPhaseQuarantine:
		return RecoveryPhaseRestrictedSend
	case RecoveryPhaseRestrictedSend:
		return RecoveryPhaseWarmRecovery
	case RecoveryPhaseWarmRecovery:
		return RecoveryPhaseHealthy
	default:
		return p
	}
}
