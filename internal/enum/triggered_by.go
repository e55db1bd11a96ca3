package enum

type TriggeredBy string

const (
	TriggeredBySystem           TriggeredBy = "system"
	TriggeredByOperatorOverride TriggeredBy = "operator_override"
)

func (t TriggeredBy) String() string {
	return string(t)
}
