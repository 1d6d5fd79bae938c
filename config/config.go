package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	LinkCodeExpiration time.Duration `env:"LINK_CODE_EXPIRATION" envDefault:"10m"`
	Postgres           Postgres
	Redis              Redis
	HTTP               HTTP
	Auth               Auth
	Telegram           Telegram
	API                API
	Cache              Cache
	Jobs               Jobs
	GoogleDrive        GoogleDrive
	Portfolio          Portfolio
}

type Postgres struct {
	Host            string `env:"PG_HOST"`
	Port            int    `env:"PG_PORT"`
	DbName          string `env:"PG_DB_NAME"`
	Password        string `env:"PG_PASSWORD"`
	User            string `env:"PG_USER"`
	MaxOpenConns    int    `env:"PG_MAX_OPEN_CONNS" envDefault:"20"`
	ConnMaxLifetime int    `env:"PG_CONN_MAX_LIFETIME" envDefault:"300"`
	MaxIdleConns    int    `env:"PG_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxIdleTime int    `env:"PG_CONN_MAX_IDLE_TIME" envDefault:"60"`
	MigrationDir    string `env:"PG_MIGRATION_DIR" envDefault:"migrations"`
}

type Redis struct {
	Host     string `env:"REDIS_HOST"`
	Port     int    `env:"REDIS_PORT"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type HTTP struct {
	Addr           string        `env:"HTTP_ADDR" envDefault:":8000"`
	ReadTimeout    time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout   time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"20s"`
	MaxImportBytes int64         `env:"HTTP_MAX_IMPORT_BYTES" envDefault:"5242880"`
}

type Auth struct {
	JWTSecret string        `env:"AUTH_JWT_SECRET"`
	TokenTTL  time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"720h"`
}

type Telegram struct {
	Token            string        `env:"TELEGRAM_TOKEN" envDefault:""`
	UpdTimeout       time.Duration `env:"TELEGRAM_UPD_TIMEOUT" envDefault:"10s"`
	FileLimitInBytes int           `env:"TELEGRAM_FILE_LIMIT_IN_BYTES" envDefault:"20971520"`
	HoldingsPerPage  int           `env:"TELEGRAM_HOLDINGS_PER_PAGE" envDefault:"10"`
}

type API struct {
	Debug        bool          `env:"API_DEBUG" envDefault:"false"`
	Timeout      time.Duration `env:"API_TIMEOUT" envDefault:"10s"`
	AlphaVantage AlphaVantage
}

type AlphaVantage struct {
	Url               string `env:"ALPHA_VANTAGE_URL" envDefault:"https://www.alphavantage.co"`
	Key               string `env:"ALPHA_VANTAGE_API_KEY" envDefault:""`
	RequestsPerMinute int    `env:"ALPHA_VANTAGE_REQUESTS_PER_MINUTE" envDefault:"5"`
}

type Cache struct {
	PricesExpiration time.Duration `env:"CACHE_PRICES_EXPIRATION" envDefault:"15m"`
}

type Jobs struct {
	Workers               int    `env:"JOBS_WORKERS" envDefault:"2"`
	QueueSize             int    `env:"JOBS_QUEUE_SIZE" envDefault:"64"`
	MaxAttempts           int    `env:"JOBS_MAX_ATTEMPTS" envDefault:"3"`
	RefreshPricesCron     string `env:"JOBS_REFRESH_PRICES_CRON" envDefault:"0 22 * * 1-5"`
	RefreshDividendsCron  string `env:"JOBS_REFRESH_DIVIDENDS_CRON" envDefault:"0 3 * * 6"`
	PortfolioSnapshotCron string `env:"JOBS_PORTFOLIO_SNAPSHOT_CRON" envDefault:"30 23 * * *"`
	DividendAlertsCron    string `env:"JOBS_DIVIDEND_ALERTS_CRON" envDefault:"0 8 * * *"`
	CleanupReportsCron    string `env:"JOBS_CLEANUP_REPORTS_CRON" envDefault:"0 4 * * *"`
}

type GoogleDrive struct {
	CredentialsFile string        `env:"GOOGLE_DRIVE_CREDENTIALS_FILE" envDefault:""`
	FileTTL         time.Duration `env:"GOOGLE_DRIVE_FILE_TTL" envDefault:"24h"`
}

type Portfolio struct {
	DefaultCurrency        string        `env:"DEFAULT_CURRENCY" envDefault:"CAD"`
	PriceMaxAge            time.Duration `env:"PRICE_MAX_AGE" envDefault:"168h"`
	DividendAlertDaysAhead int           `env:"DIVIDEND_ALERT_DAYS_AHEAD" envDefault:"7"`
}

func MustLoad() *Config {
	_ = godotenv.Load(".env")

	cfg := &Config{}

	opts := env.Options{RequiredIfNoDef: true}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		log.Fatalf("parse config error: %s", err)
	}

	return cfg
}
