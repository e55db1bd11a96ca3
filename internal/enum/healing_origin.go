package enum

// HealingOrigin distinguishes entities that entered recovery because of
// pre-existing damage found at onboarding (rehab) from entities that
// degraded during normal operation (recovery). Rehab entities get
// stricter graduation multipliers.
type HealingOrigin string

const (
	HealingOriginNone     HealingOrigin = ""
	HealingOriginRehab    HealingOrigin = "rehab"
	HealingOriginRecovery HealingOrigin = "recovery"
)

func (o HealingOrigin) String() string {
	return string(o)
}
