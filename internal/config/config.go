package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/declinescan/internal/columns"
	"github.com/KaramelBytes/declinescan/internal/table"
)

// Market maps a user-facing market label to the canonical code found in exports.
type Market struct {
	Label string `mapstructure:"label" yaml:"label" json:"label" validate:"required"`
	Code  string `mapstructure:"code" yaml:"code" json:"code" validate:"required"`
}

// Global configuration structure.
type Global struct {
	// Markets is the label to canonical code map, in display order.
	Markets []Market `mapstructure:"markets" yaml:"markets" validate:"required,min=1,dive"`
	// SelectedMarkets holds display labels; empty selects every market.
	SelectedMarkets []string `mapstructure:"selected_markets" yaml:"selected_markets" validate:"dive,required"`

	// Column discovery vocabulary
	NameKeywords      []string `mapstructure:"name_keywords" yaml:"name_keywords" validate:"required,min=1,dive,required"`
	RatioKeywords     []string `mapstructure:"ratio_keywords" yaml:"ratio_keywords" validate:"dive,required"`
	MarketKeywords    []string `mapstructure:"market_keywords" yaml:"market_keywords" validate:"dive,required"`
	NameFallbackIndex int      `mapstructure:"name_fallback_index" yaml:"name_fallback_index" validate:"gte=-1"`

	// MismatchTolerance is a fraction in [0, 1]; -1 disables the check.
	MismatchTolerance float64 `mapstructure:"mismatch_tolerance" yaml:"mismatch_tolerance" validate:"gte=-1,lte=1"`

	LogLevel   string `mapstructure:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	LogFormat  string `mapstructure:"log_format" yaml:"log_format" validate:"omitempty,oneof=text json"`
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr" validate:"required"`
}

// DefaultMarkets returns the Tokyo Stock Exchange segments.
func DefaultMarkets() []Market {
	return []Market{
		{Label: "プライム", Code: "東Ｐ"},
		{Label: "スタンダード", Code: "東Ｓ"},
		{Label: "グロース", Code: "東Ｇ"},
	}
}

// Default returns the configuration used when no file or env overrides exist.
func Default() *Global {
	markets := DefaultMarkets()
	labels := make([]string, len(markets))
	for i, m := range markets {
		labels[i] = m.Label
	}
	return &Global{
		Markets:           markets,
		SelectedMarkets:   labels,
		NameKeywords:      []string{"銘柄名"},
		RatioKeywords:     []string{"比率"},
		MarketKeywords:    []string{"市場"},
		NameFallbackIndex: 3,
		MismatchTolerance: table.DefaultMismatchTolerance,
		LogLevel:          "warn",
		LogFormat:         "text",
		ListenAddr:        "127.0.0.1:8080",
	}
}

// Rules builds the column resolver vocabulary from the keyword settings.
func (c *Global) Rules() columns.Rules {
	return columns.Rules{
		Rules: []columns.Rule{
			{Role: columns.RoleName, Keywords: c.NameKeywords},
			{Role: columns.RoleRatio, Keywords: c.RatioKeywords},
			{Role: columns.RoleMarket, Keywords: c.MarketKeywords},
		},
		NameFallbackIndex: c.NameFallbackIndex,
	}
}

// TableOptions returns parser options derived from the configuration.
func (c *Global) TableOptions() table.Options {
	opt := table.DefaultOptions()
	opt.MismatchTolerance = c.MismatchTolerance
	return opt
}

// MarketCodes translates display labels to canonical codes. Labels that are
// not in the market map are taken to be codes already.
func (c *Global) MarketCodes(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	byLabel := make(map[string]string, len(c.Markets))
	for _, m := range c.Markets {
		byLabel[m.Label] = m.Code
	}
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if code, ok := byLabel[l]; ok {
			out = append(out, code)
			continue
		}
		out = append(out, l)
	}
	return out
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.declinescan/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		path = cfgFile
	} else {
		dir, err := configDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults; flags are applied by the caller.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("DECLINESCAN")
	v.AutomaticEnv()

	def := Default()
	markets := make([]map[string]any, len(def.Markets))
	for i, m := range def.Markets {
		markets[i] = map[string]any{"label": m.Label, "code": m.Code}
	}
	v.SetDefault("markets", markets)
	v.SetDefault("selected_markets", def.SelectedMarkets)
	v.SetDefault("name_keywords", def.NameKeywords)
	v.SetDefault("ratio_keywords", def.RatioKeywords)
	v.SetDefault("market_keywords", def.MarketKeywords)
	v.SetDefault("name_fallback_index", def.NameFallbackIndex)
	v.SetDefault("mismatch_tolerance", def.MismatchTolerance)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)
	v.SetDefault("listen_addr", def.ListenAddr)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		dir, err := configDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// optional read
		_ = v.ReadInConfig()
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report config keys rather than Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks value ranges and required keys.
func (c *Global) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s item(s)", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".declinescan"), nil
}
