package enum

type FindingSeverity string

const (
	FindingSeverityCritical FindingSeverity = "critical"
	FindingSeverityWarning  FindingSeverity = "warning"
	FindingSeverityInfo     FindingSeverity = "info"
)

func (s FindingSeverity) String() string {
	return string(s)
}
