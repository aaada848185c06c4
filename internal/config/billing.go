package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig carries the tunables read by the billing engine on every call.
type BillingConfig struct {
	InvoicePrefix          string          `mapstructure:"invoicePrefix"`
	DefaultTaxRate         decimal.Decimal `mapstructure:"defaultTaxRate"`
	PaymentTermDays        int             `mapstructure:"paymentTermDays"`
	RenewalWindowDays      int             `mapstructure:"renewalWindowDays"`
	DefaultGracePeriodDays int             `mapstructure:"defaultGracePeriodDays"`
	SystemBaseCurrency     string          `mapstructure:"systemBaseCurrency"`
	RateCacheTTL           time.Duration   `mapstructure:"rateCacheTTL"`
	InvoiceNumberRetries   int             `mapstructure:"invoiceNumberRetries"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		InvoicePrefix:          "INV",
		DefaultTaxRate:         decimal.Zero,
		PaymentTermDays:        14,
		RenewalWindowDays:      7,
		DefaultGracePeriodDays: 7,
		SystemBaseCurrency:     "USD",
		RateCacheTTL:           time.Minute,
		InvoiceNumberRetries:   1,
	}
}

// BillingConfigProvider exposes the current billing configuration.
type BillingConfigProvider interface {
	Get() BillingConfig
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	log = log.Named("billing.config")
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/clinicbilling")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CLINICBILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.invoicePrefix", defaults.InvoicePrefix)
	v.SetDefault("billing.defaultTaxRate", defaults.DefaultTaxRate.String())
	v.SetDefault("billing.paymentTermDays", defaults.PaymentTermDays)
	v.SetDefault("billing.renewalWindowDays", defaults.RenewalWindowDays)
	v.SetDefault("billing.defaultGracePeriodDays", defaults.DefaultGracePeriodDays)
	v.SetDefault("billing.systemBaseCurrency", defaults.SystemBaseCurrency)
	v.SetDefault("billing.rateCacheTTL", defaults.RateCacheTTL)
	v.SetDefault("billing.invoiceNumberRetries", defaults.InvoiceNumberRetries)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodeBillingConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeBillingConfig(v)
			if err != nil {
				log.Warn("billing config reload ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("billing config reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

// NewStaticBillingConfig returns a holder pinned to cfg, for tests and tools.
func NewStaticBillingConfig(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func decodeBillingConfig(v *viper.Viper) (BillingConfig, error) {
	var cfg BillingConfig
	cfg.InvoicePrefix = strings.TrimSpace(v.GetString("billing.invoicePrefix"))
	rate, err := decimal.NewFromString(strings.TrimSpace(v.GetString("billing.defaultTaxRate")))
	if err != nil {
		return BillingConfig{}, errors.New("billing.defaultTaxRate must be a decimal")
	}
	cfg.DefaultTaxRate = rate
	cfg.PaymentTermDays = v.GetInt("billing.paymentTermDays")
	cfg.RenewalWindowDays = v.GetInt("billing.renewalWindowDays")
	cfg.DefaultGracePeriodDays = v.GetInt("billing.defaultGracePeriodDays")
	cfg.SystemBaseCurrency = strings.ToUpper(strings.TrimSpace(v.GetString("billing.systemBaseCurrency")))
	cfg.RateCacheTTL = v.GetDuration("billing.rateCacheTTL")
	cfg.InvoiceNumberRetries = v.GetInt("billing.invoiceNumberRetries")

	if err := validateBillingConfig(cfg); err != nil {
		return BillingConfig{}, err
	}
	return cfg, nil
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.InvoicePrefix == "" {
		return errors.New("billing.invoicePrefix cannot be empty")
	}
	if cfg.SystemBaseCurrency == "" {
		return errors.New("billing.systemBaseCurrency cannot be empty")
	}
	if cfg.DefaultTaxRate.IsNegative() {
		return errors.New("billing.defaultTaxRate cannot be negative")
	}
	if cfg.PaymentTermDays < 0 || cfg.RenewalWindowDays < 0 || cfg.DefaultGracePeriodDays < 0 {
		return errors.New("billing day counts cannot be negative")
	}
	if cfg.RateCacheTTL < 0 {
		return errors.New("billing.rateCacheTTL cannot be negative")
	}
	if cfg.InvoiceNumberRetries < 0 {
		return errors.New("billing.invoiceNumberRetries cannot be negative")
	}
	return nil
}
