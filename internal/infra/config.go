package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"scalper_go/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Exchange modes.
const (
	ModeLive  = "live"
	ModePaper = "paper"
)

// StrategyConfig tunes the channel sizer, the pricer and the reconciler.
type StrategyConfig struct {
	MinWindow             int             `yaml:"min_window" validate:"gte=2"`
	ChannelLengthMultiple decimal.Decimal `yaml:"channel_length_multiple" validate:"gte=1"`
	SpendFraction         decimal.Decimal `yaml:"spend_fraction" validate:"gt=0,lt=1"`
	MinTakeProfitPips     int64           `yaml:"min_take_profit_pips" validate:"gte=0"`
	MinTakeProfitTicks    int64           `yaml:"min_take_profit_ticks" validate:"gte=0"`
	LowerQuantile         decimal.Decimal `yaml:"lower_quantile" validate:"gte=0,lt=1"`
	UpperQuantile         decimal.Decimal `yaml:"upper_quantile" validate:"gt=0,lte=1"`
	DistributionRatio     decimal.Decimal `yaml:"distribution_ratio" validate:"gt=0,lte=1"`
	MaxRoundTrips         int             `yaml:"max_round_trips" validate:"gte=0"` // 0 = unlimited
	MaxBuffer             int             `yaml:"max_buffer" validate:"gte=0"`      // 0 = unbounded
}

// Config holds every setting of the bot.
// Secrets are read from the environment (or .env) after the YAML file.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Exchange struct {
		Mode             string `yaml:"mode" validate:"oneof=live paper"`
		RestURL          string `yaml:"rest_url" validate:"required,url"`
		WSURL            string `yaml:"ws_url" validate:"required,url"`
		APIKey           string `yaml:"api_key"`
		APISecret        string `yaml:"api_secret"`
		RecvWindow       int64  `yaml:"recv_window" validate:"gte=0"`
		RequestTimeoutMS int    `yaml:"request_timeout_ms" validate:"gt=0"`
	} `yaml:"exchange"`

	Pair struct {
		Base  string `yaml:"base" validate:"required,alphanum"`
		Quote string `yaml:"quote" validate:"required,alphanum"`
	} `yaml:"pair"`

	Strategy StrategyConfig `yaml:"strategy"`

	Paper struct {
		Balances map[string]decimal.Decimal `yaml:"balances"`
		MakerFee decimal.Decimal            `yaml:"maker_fee" validate:"gte=0,lt=100"` // percent
		TakerFee decimal.Decimal            `yaml:"taker_fee" validate:"gte=0,lt=100"` // percent
	} `yaml:"paper"`

	Engine struct {
		InboxSize int `yaml:"inbox_size" validate:"gt=0"`
	} `yaml:"engine"`

	Journal struct {
		Path string `yaml:"path"` // empty disables the journal
	} `yaml:"journal"`

	Server struct {
		Addr           string   `yaml:"addr"` // empty disables the ops server
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Logging struct {
		Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// Symbol is the exchange symbol of the configured pair.
func (c *Config) Symbol() string {
	return strings.ToUpper(c.Pair.Base + c.Pair.Quote)
}

// RequestTimeout is the per-request REST deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Exchange.RequestTimeoutMS) * time.Millisecond
}

// IsPaper reports whether orders are simulated.
func (c *Config) IsPaper() bool {
	return c.Exchange.Mode == ModePaper
}

// DefaultConfig returns the settings used when a key is missing from the file.
func DefaultConfig() *Config {
	var c Config
	c.App.Name = "scalper"
	c.Exchange.Mode = ModeLive
	c.Exchange.RestURL = "https://api.binance.com"
	c.Exchange.WSURL = "wss://stream.binance.com:9443"
	c.Exchange.RecvWindow = 5000
	c.Exchange.RequestTimeoutMS = 10000
	c.Strategy = StrategyConfig{
		MinWindow:             3,
		ChannelLengthMultiple: decimal.NewFromInt(1),
		SpendFraction:         decimal.RequireFromString("0.1"),
		MinTakeProfitPips:     1,
		MinTakeProfitTicks:    1,
		LowerQuantile:         decimal.RequireFromString("0.01"),
		UpperQuantile:         decimal.RequireFromString("0.99"),
		DistributionRatio:     decimal.RequireFromString("0.4"),
		MaxBuffer:             2000,
	}
	c.Paper.MakerFee = decimal.RequireFromString("0.1")
	c.Paper.TakerFee = decimal.RequireFromString("0.1")
	c.Engine.InboxSize = 1024
	c.Logging.Level = "info"
	c.Logging.Dir = "logs"
	return &c
}

// LoadConfig reads the YAML file at path over the defaults, applies .env and
// environment overrides, then validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.ConfigError{Field: path, Err: domain.ErrConfigNotFound}
		}
		return nil, &domain.ConfigError{Field: path, Err: err}
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &domain.ConfigError{Field: path, Err: err}
	}

	// A missing .env is normal in production.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &domain.ConfigError{Field: ".env", Err: err}
	}
	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field rules and the constraints that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &domain.ConfigError{
				Field: fe.Namespace(),
				Err:   fmt.Errorf("failed %q (param %q) with value %v", fe.Tag(), fe.Param(), fe.Value()),
			}
		}
		return &domain.ConfigError{Field: "config", Err: err}
	}

	if !hasPrefix(c.Exchange.WSURL, "ws://") && !hasPrefix(c.Exchange.WSURL, "wss://") {
		return &domain.ConfigError{Field: "exchange.ws_url", Err: fmt.Errorf("invalid websocket URL: %s", c.Exchange.WSURL)}
	}
	s := c.Strategy
	if !s.LowerQuantile.LessThan(s.UpperQuantile) {
		return &domain.ConfigError{Field: "strategy.lower_quantile", Err: fmt.Errorf("must be below upper_quantile %s", s.UpperQuantile)}
	}
	if strings.EqualFold(c.Pair.Base, c.Pair.Quote) {
		return &domain.ConfigError{Field: "pair", Err: fmt.Errorf("base and quote are both %s", c.Pair.Base)}
	}
	if c.IsPaper() {
		for asset, amount := range c.Paper.Balances {
			if amount.IsNegative() {
				return &domain.ConfigError{Field: "paper.balances." + asset, Err: fmt.Errorf("negative balance %s", amount)}
			}
		}
	} else if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
		return &domain.ConfigError{Field: "exchange.api_key", Err: errors.New("live mode needs API_KEY and API_SECRET")}
	}
	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv replaces config values with environment variables when set.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("API_KEY"); key != "" {
		cfg.Exchange.APIKey = key
	}
	if secret := os.Getenv("API_SECRET"); secret != "" {
		cfg.Exchange.APISecret = secret
	}
	if base := os.Getenv("BASE_ASSET"); base != "" {
		cfg.Pair.Base = strings.ToUpper(base)
	}
	if quote := os.Getenv("QUOTE_ASSET"); quote != "" {
		cfg.Pair.Quote = strings.ToUpper(quote)
	}
	if mode := os.Getenv("SCALPER_MODE"); mode != "" {
		cfg.Exchange.Mode = strings.ToLower(mode)
	}
}
