package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/digitbot/internal/domain"
)

// Config es la configuración completa de digitbot.
type Config struct {
	Session  SessionConfig  `yaml:"session"`
	Backtest BacktestConfig `yaml:"backtest"`
	Live     LiveConfig     `yaml:"live"`
	Deriv    DerivConfig    `yaml:"deriv"`
	Storage  StorageConfig  `yaml:"storage"`
	API      APIConfig      `yaml:"api"`
	Telegram TelegramConfig `yaml:"telegram"`
	Log      LogConfig      `yaml:"log"`
}

// SessionConfig son los parámetros de estrategia, comunes a backtest y live.
type SessionConfig struct {
	Market               string             `yaml:"market"`
	ContractType         string             `yaml:"contract_type"` // matches | differs | over_under | even_odd
	StakeAmount          float64            `yaml:"stake_amount"`
	MartingaleStartAfter int                `yaml:"martingale_start_after"`
	MaxMartingaleLevel   int                `yaml:"max_martingale_level"`
	Progression          string             `yaml:"martingale_progression"` // exponential | linear | fibonacci
	ProgressionFactor    float64            `yaml:"martingale_multiplier"`
	MaxStake             float64            `yaml:"max_stake"` // 0 = sin tope
	TargetProfit         float64            `yaml:"target_profit"`
	StopLoss             float64            `yaml:"stop_loss"`
	MinConfidence        float64            `yaml:"min_confidence"`
	WindowSize           int                `yaml:"window_size"`
	MinSamples           int                `yaml:"min_samples"`
	Precision            int                `yaml:"precision"` // 0 = la del mercado
	Barrier              *int               `yaml:"barrier"`   // nil = 5
	Payouts              map[string]float64 `yaml:"payouts"`
	StartingBalance      float64            `yaml:"starting_balance"`
	DataPoints           int                `yaml:"data_points"`
}

// BacktestConfig controla el modo -backtest.
type BacktestConfig struct {
	Markets       []string `yaml:"markets"`        // vacío = solo session.market
	ContractTypes []string `yaml:"contract_types"` // vacío = solo session.contract_type
	Workers       int      `yaml:"workers"`
	CSVPath       string   `yaml:"csv_path"`    // si está, se usa en lugar del API
	LedgerPath    string   `yaml:"ledger_path"` // exporta el ledger a CSV
	PrintTrades   bool     `yaml:"print_trades"`
}

// LiveConfig controla el modo -live.
type LiveConfig struct {
	Currency          string `yaml:"currency"`
	DurationTicks     int    `yaml:"duration_ticks"`
	MaxSubmitRetries  int    `yaml:"max_submit_retries"`
	RetryBackoffMS    int    `yaml:"retry_backoff_ms"`
	MaxFailures       int    `yaml:"max_failures"`        // fallos seguidos antes de degradar
	CooldownSec       int    `yaml:"cooldown_sec"`        // 0 = degradada hasta /resume
	Warmup            bool   `yaml:"warmup"`              // llenar la ventana con historial
	UseAccountBalance bool   `yaml:"use_account_balance"` // balance inicial = saldo real
}

// DerivConfig es la conexión al broker.
type DerivConfig struct {
	Endpoint string `yaml:"endpoint"`
	AppID    string `yaml:"app_id"`
	APIToken string `yaml:"api_token"` // mejor vía DERIV_API_TOKEN en .env
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// APIConfig es el servidor HTTP del modo -serve.
type APIConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TelegramConfig activa las notificaciones si hay token y chat.
type TelegramConfig struct {
	BotToken   string   `yaml:"bot_token"`
	ChatID     string   `yaml:"chat_id"`
	MaxRetries int      `yaml:"max_retries"`
	Events     []string `yaml:"events"` // vacío = todos
	Commands   bool     `yaml:"commands"`
}

// Enabled indica si Telegram está configurado.
func (t TelegramConfig) Enabled() bool { return t.BotToken != "" && t.ChatID != "" }

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// RetryBackoff devuelve el backoff base de reintentos como time.Duration.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Live.RetryBackoffMS) * time.Millisecond
}

// Cooldown devuelve el tiempo tras el que una sesión degradada vuelve a operar.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Live.CooldownSec) * time.Second
}

// SessionFor construye la config de dominio para un mercado y tipo de contrato.
// No valida: eso ocurre al arrancar la sesión.
func (c *Config) SessionFor(market, contractType string) domain.SessionConfig {
	s := c.Session
	sc := domain.SessionConfig{
		Market:               market,
		ContractType:         domain.ContractType(strings.ToLower(contractType)),
		StakeAmount:          s.StakeAmount,
		MartingaleStartAfter: s.MartingaleStartAfter,
		MaxMartingaleLevel:   s.MaxMartingaleLevel,
		Progression:          s.Progression,
		ProgressionFactor:    s.ProgressionFactor,
		MaxStake:             s.MaxStake,
		TargetProfit:         s.TargetProfit,
		StopLoss:             s.StopLoss,
		MinConfidence:        s.MinConfidence,
		WindowSize:           s.WindowSize,
		MinSamples:           s.MinSamples,
		Precision:            s.Precision,
		Barrier:              domain.DefaultBarrier,
		StartingBalance:      s.StartingBalance,
		DataPoints:           s.DataPoints,
	}
	if s.Barrier != nil {
		sc.Barrier = domain.Digit(*s.Barrier)
	}
	if len(s.Payouts) > 0 {
		sc.Payouts = make(map[domain.ContractType]float64, len(s.Payouts))
		for k, v := range s.Payouts {
			sc.Payouts[domain.ContractType(strings.ToLower(k))] = v
		}
	}
	return sc
}

// SessionDefault es SessionFor con el mercado y contrato de la sección session.
func (c *Config) SessionDefault() domain.SessionConfig {
	return c.SessionFor(c.Session.Market, c.Session.ContractType)
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("DERIV_API_TOKEN"); v != "" {
		cfg.Deriv.APIToken = v
	}
	if v := os.Getenv("DERIV_APP_ID"); v != "" {
		cfg.Deriv.AppID = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("DIGITBOT_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
// Los parámetros de estrategia sin default (stake, window) los rechaza la
// validación de la sesión.
func setDefaults(cfg *Config) {
	if cfg.Session.Market == "" {
		cfg.Session.Market = "R_100"
	}
	if cfg.Session.ContractType == "" {
		cfg.Session.ContractType = string(domain.ContractEvenOdd)
	}
	if cfg.Session.StartingBalance == 0 {
		cfg.Session.StartingBalance = 1000
	}
	if cfg.Session.DataPoints <= 0 {
		cfg.Session.DataPoints = 1000
	}
	if cfg.Backtest.Workers <= 0 {
		cfg.Backtest.Workers = 4
	}
	if cfg.Live.Currency == "" {
		cfg.Live.Currency = "USD"
	}
	if cfg.Live.DurationTicks <= 0 {
		cfg.Live.DurationTicks = 1
	}
	if cfg.Live.MaxSubmitRetries <= 0 {
		cfg.Live.MaxSubmitRetries = 3
	}
	if cfg.Live.RetryBackoffMS <= 0 {
		cfg.Live.RetryBackoffMS = 1000
	}
	if cfg.Live.MaxFailures <= 0 {
		cfg.Live.MaxFailures = 1
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "digitbot.db"
	}
	if cfg.API.Addr == "" {
		cfg.API.Addr = ":8080"
	}
	if cfg.Telegram.MaxRetries <= 0 {
		cfg.Telegram.MaxRetries = 3
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
