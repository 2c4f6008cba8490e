package config

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"
	"github.com/gtdvccc/solclmm/pkg/clmm"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the settings shared by every command.
type Config struct {
	ProgramID      string  `validate:"omitempty,pubkey"`
	TicksPerArray  int     `validate:"oneof=30 100"`
	TickStep       uint64  `validate:"gt=0"`
	PriceStep      uint64  `validate:"gt=0"`
	FeeDenominator uint64  `validate:"gt=0"`
	GrossMode      string  `validate:"oneof=cumulative active"`
	FeeTiers       []int32 `validate:"min=1,dive,gt=0"`
	Store          string  `validate:"oneof=memory sqlite mysql postgres"`
	StoreDSN       string  `validate:"required_unless=Store memory"`
	Ledger         string  `validate:"oneof=memory journal solana"`
	RPCURL         string  `validate:"required_if=Ledger solana"`
	WSURL          string
	Simulate       bool
	LogLevel       string `validate:"oneof=debug info warn error"`
}

// Load merges defaults, the config file, CLMM_* environment variables and
// flags into Config, then validates the result.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CLMM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("program-id", clmm.DEFAULT_PROGRAM_ID.String())
	v.SetDefault("ticks-per-array", clmm.TICKS_PER_ARRAY)
	v.SetDefault("tick-step", clmm.TICK_STEP)
	v.SetDefault("price-step", clmm.SWAP_PRICE_STEP)
	v.SetDefault("fee-denominator", clmm.FEE_DENOMINATOR)
	v.SetDefault("gross-mode", string(clmm.GrossCumulative))
	v.SetDefault("fee-tiers", []int{1, 10, 60})
	v.SetDefault("store", "sqlite")
	v.SetDefault("store-dsn", "./data/clmm.db")
	v.SetDefault("ledger", "journal")
	v.SetDefault("rpc", "https://api.mainnet-beta.solana.com")
	v.SetDefault("simulate", true)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	tiers, err := getTiers(v, "fee-tiers")
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		ProgramID:      v.GetString("program-id"),
		TicksPerArray:  v.GetInt("ticks-per-array"),
		TickStep:       v.GetUint64("tick-step"),
		PriceStep:      v.GetUint64("price-step"),
		FeeDenominator: v.GetUint64("fee-denominator"),
		GrossMode:      v.GetString("gross-mode"),
		FeeTiers:       tiers,
		Store:          v.GetString("store"),
		StoreDSN:       v.GetString("store-dsn"),
		Ledger:         v.GetString("ledger"),
		RPCURL:         v.GetString("rpc"),
		WSURL:          v.GetString("ws"),
		Simulate:       v.GetBool("simulate"),
		LogLevel:       v.GetString("log-level"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("pubkey", func(fl validator.FieldLevel) bool {
		_, err := solana.PublicKeyFromBase58(fl.Field().String())
		return err == nil
	})
	return v
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Ledger == "journal" && c.Store != "sqlite" && c.Store != "mysql" {
		return fmt.Errorf("invalid config: journal ledger needs a sqlite or mysql store, got %q", c.Store)
	}
	return nil
}

// EngineConfig converts the settings into engine parameters.
func (c Config) EngineConfig() (clmm.Config, error) {
	curve, err := clmm.NewLinearCurve(c.TickStep, c.PriceStep, c.FeeDenominator)
	if err != nil {
		return clmm.Config{}, err
	}
	cfg := clmm.Config{
		ProgramID:     clmm.DEFAULT_PROGRAM_ID,
		TicksPerArray: c.TicksPerArray,
		Curve:         curve,
		GrossMode:     clmm.GrossMode(c.GrossMode),
	}
	if c.ProgramID != "" {
		if cfg.ProgramID, err = solana.PublicKeyFromBase58(c.ProgramID); err != nil {
			return clmm.Config{}, fmt.Errorf("program id: %w", err)
		}
	}
	return cfg, nil
}

func getTiers(v *viper.Viper, key string) ([]int32, error) {
	raw := v.Get(key)
	var ints []int
	switch typed := raw.(type) {
	case string:
		for _, part := range strings.Split(typed, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			var n int
			if _, err := fmt.Sscanf(part, "%d", &n); err != nil {
				return nil, fmt.Errorf("%s: %q is not a tick spacing", key, part)
			}
			ints = append(ints, n)
		}
	default:
		ints = v.GetIntSlice(key)
	}
	out := make([]int32, 0, len(ints))
	for _, n := range ints {
		if n < 0 || n > 1<<31-1 {
			return nil, fmt.Errorf("%s: %d is out of range", key, n)
		}
		out = append(out, int32(n))
	}
	return out, nil
}
