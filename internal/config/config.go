package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppHost  string
	HTTPPort string
	AppEnv   string
	LogLevel string

	// WAGatewayURL is the base URL of the external WhatsApp transport process
	// (the one that holds the socket). Replies are POSTed to {WAGatewayURL}/send.
	WAGatewayURL string

	// Delivery retry policy for the outbound WhatsApp client.
	WASendAttempts  int
	WASendBaseDelay time.Duration

	// DefaultCountryCode is prepended when a customer phone number arrives in
	// local form ("0123456789" -> "+60123456789").
	DefaultCountryCode string

	// CurrencyLocale is the BCP 47 tag used to render monetary amounts in
	// customer-facing messages.
	CurrencyLocale string

	// MenuFooter overrides the quick-menu footer appended to replies. Empty
	// keeps the built-in Malay footer.
	MenuFooter string

	// Keyword overrides for the command classifier. An empty list keeps the
	// built-in bilingual set for that command.
	Keywords struct {
		Reject  []string
		Approve []string
		Pickup  []string
		Invoice []string
		Status  []string
		Support []string
	}

	// AllowRejectedReapproval lets a customer approve a ticket that was
	// previously rejected over chat. Business policy, off by default.
	AllowRejectedReapproval bool

	// Reminder job for tickets stuck in awaiting_approval.
	EnableApprovalReminders bool
	ApprovalReminderCron    string

	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		AppHost:            getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:           firstEnv("APP_PORT", "HTTP_PORT", "8098"),
		AppEnv:             getEnv("APP_ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		WAGatewayURL:       getEnv("WA_OUTBOUND_URL", "http://localhost:3000"),
		WASendAttempts:     getEnvInt("WA_SEND_ATTEMPTS", 3),
		WASendBaseDelay:    getEnvDuration("WA_SEND_BASE_DELAY", 500*time.Millisecond),
		DefaultCountryCode: getEnv("WA_DEFAULT_COUNTRY_CODE", "60"),
		CurrencyLocale:     getEnv("CURRENCY_LOCALE", "ms-MY"),
		MenuFooter:         getEnv("WA_MENU_FOOTER", ""),

		AllowRejectedReapproval: getEnvBool("ALLOW_REJECTED_REAPPROVAL", false),
		EnableApprovalReminders: getEnvBool("ENABLE_TICKET_APPROVAL_REMINDERS", false),
		ApprovalReminderCron:    getEnv("TICKET_APPROVAL_REMINDER_CRON", "0 * * * *"),
	}
	cfg.Keywords.Reject = getEnvList("SOP_KEYWORDS_REJECT")
	cfg.Keywords.Approve = getEnvList("SOP_KEYWORDS_APPROVE")
	cfg.Keywords.Pickup = getEnvList("SOP_KEYWORDS_PICKUP")
	cfg.Keywords.Invoice = getEnvList("SOP_KEYWORDS_INVOICE")
	cfg.Keywords.Status = getEnvList("SOP_KEYWORDS_STATUS")
	cfg.Keywords.Support = getEnvList("SOP_KEYWORDS_SUPPORT")
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "repair_service")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DB.Host == "" || c.DB.Database == "" {
		return errors.New("config: DB_HOST and DB_DATABASE are required")
	}
	if c.AppEnv == "production" && c.DB.Password == "" {
		return errors.New("config: in production DB_PASSWORD is required")
	}
	if c.WASendAttempts < 1 {
		return errors.New("config: WA_SEND_ATTEMPTS must be at least 1")
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

// getEnvList parses a comma-separated env value; nil when unset.
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
