package enum

type ReportType string

const (
	ReportTypeOnboarding ReportType = "onboarding"
	ReportTypeScheduled  ReportType = "scheduled"
	ReportTypePostSync   ReportType = "post_sync"
)

func (r ReportType) String() string {
	return string(r)
}
