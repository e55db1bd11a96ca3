package config

type AppConfig struct {
	APIPort     string `env:"PORT,required" envDefault:"12333"`
	APIKey      string `env:"API_KEY,required"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
}

type DatabaseConfig struct {
	Host            string `env:"MAILMEDIC_POSTGRES_HOST,required"`
	Port            string `env:"MAILMEDIC_POSTGRES_PORT,required"`
	User            string `env:"MAILMEDIC_POSTGRES_USER,required"`
	DBName          string `env:"MAILMEDIC_POSTGRES_DB_NAME,required"`
	Password        string `env:"MAILMEDIC_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"MAILMEDIC_POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"MAILMEDIC_POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"MAILMEDIC_POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"MAILMEDIC_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"MAILMEDIC_POSTGRES_SSL_MODE" envDefault:"require"`
}

type DNSConfig struct {
	Resolver        string `env:"DNS_RESOLVER" envDefault:"1.1.1.1:53"`
	TimeoutSeconds  int    `env:"DNS_TIMEOUT_SECONDS" envDefault:"5"`
	CacheTTLSeconds int    `env:"DNS_CACHE_TTL_SECONDS" envDefault:"300"`
}

type PlatformConfig struct {
	Url    string `env:"SENDING_PLATFORM_URL" envDefault:"https://api.customeros.ai" validate:"required"`
	ApiKey string `env:"SENDING_PLATFORM_API_KEY"`
}

type R2StorageConfig struct {
	AccountID       string `env:"CLOUDFLARE_R2_ACCOUNT_ID,required"`
	AccessKeyID     string `env:"CLOUDFLARE_R2_ACCESS_KEY_ID,required"`
	AccessKeySecret string `env:"CLOUDFLARE_R2_ACCESS_KEY_SECRET,required"`
	ReportBucket    string `env:"BUCKET_NAME_REPORT_ARCHIVE" envDefault:"reports"`
}
