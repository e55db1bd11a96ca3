package enum

type HealthStatus string

const (
	HealthStatusHealthy HealthStatus = "healthy"
	HealthStatusActive  HealthStatus = "active"
	HealthStatusWarning HealthStatus = "warning"
	HealthStatusPaused  HealthStatus = "paused"
)

func (s HealthStatus) String() string {
	return string(s)
}

// Rank orders statuses by severity. Healthy and active share rank 0:
// active is the campaign spelling of healthy.
func (s HealthStatus) Rank() int {
	switch s {
	case HealthStatusWarning:
		return 1
	case HealthStatusPaused:
		return 2
	default:
		return 0
	}
}

func (s HealthStatus) IsHealthy() bool {
	return s.Rank() == 0
}

// WorstStatus returns the most severe status of the given set.
func WorstStatus(statuses ...HealthStatus) HealthStatus {
	worst := HealthStatusHealthy
	for _, s := range statuses {
		if s.Rank() > worst.Rank() {
			worst = s
		}
	}
	return worst
}

// StatusForRank maps a severity rank back to a status. Campaigns spell
// rank 0 as active, everything else as healthy.
func StatusForRank(rank int, entityType EntityType) HealthStatus {
	switch rank {
	case 2:
		return HealthStatusPaused
	case 1:
		return HealthStatusWarning
	default:
		if entityType == CAMPAIGN {
			return HealthStatusActive
		}
		return HealthStatusHealthy
	}
}
