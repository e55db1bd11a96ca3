package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Scheduled infrastructure assessments, hourly
	CronScheduleAssessments string `env:"CRON_SCHEDULE_ASSESSMENTS" envDefault:"0 0 * * * *"`
	// Recovery graduation sweep, every minute
	CronScheduleGraduationSweep string `env:"CRON_SCHEDULE_GRADUATION_SWEEP" envDefault:"0 * * * * *"`
}
