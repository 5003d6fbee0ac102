package config

import (
	"fmt"
	"reflect"
	"strings"

	"golang-conciliation-service/internal/classifier"
	"golang-conciliation-service/internal/matcher"
	"golang-conciliation-service/internal/normalizer"
	"golang-conciliation-service/internal/parsers"
	"golang-conciliation-service/internal/reconciler"
	"golang-conciliation-service/internal/reporter"
	"golang-conciliation-service/pkg/logger"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// Settings is the complete CLI configuration. Every section mirrors the
// configuration type of the package it configures.
type Settings struct {
	Log        logger.Config          `mapstructure:"log"`
	Normalizer normalizer.Config      `mapstructure:"normalizer"`
	Classifier classifier.Config      `mapstructure:"classifier"`
	Matching   matcher.MatchingConfig `mapstructure:"matching"`
	Exports    parsers.ExportConfig   `mapstructure:"exports"`
	Report     reporter.ReportConfig  `mapstructure:"report"`

	ReadWorkers    int  `mapstructure:"read_workers"`
	VerifyPairings bool `mapstructure:"verify_pairings"`
}

// EnvKeys are the settings that can be overridden with CONCILIATOR_ variables.
// Nested keys use underscores, e.g. CONCILIATOR_MATCHING_TOLERANCE.
var EnvKeys = []string{
	"log.level",
	"log.format",
	"log.output",
	"log.file",
	"normalizer.special_marker",
	"classifier.treasury_tax_id",
	"classifier.market_tax_ids",
	"classifier.excluded_tax_ids",
	"matching.tolerance",
	"matching.strategy",
	"exports.excluded_statuses",
	"report.format",
	"report.include_matched",
	"report.csv_delimiter",
	"read_workers",
	"verify_pairings",
}

// Default returns the settings used when nothing is configured. The CLI logs
// warnings only unless --verbose is set.
func Default() *Settings {
	service := reconciler.DefaultConfig()

	logConfig := logger.DefaultConfig()
	logConfig.Level = logger.WarnLevel

	return &Settings{
		Log:            *logConfig,
		Normalizer:     service.Normalizer,
		Classifier:     service.Classifier,
		Matching:       *service.Matching,
		Exports:        service.Exports,
		Report:         *reporter.DefaultReportConfig(),
		ReadWorkers:    service.ReadWorkers,
		VerifyPairings: service.VerifyPairings,
	}
}

// BindEnv registers EnvKeys on v under the given prefix
func BindEnv(v *viper.Viper, prefix string) error {
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var err error
	for _, key := range EnvKeys {
		err = multierr.Append(err, v.BindEnv(key))
	}
	return err
}

// Load decodes the keys set in v over Default and validates the result
func Load(v *viper.Viper) (*Settings, error) {
	settings := Default()

	if err := v.Unmarshal(settings, viper.DecodeHook(DecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// DecodeHook converts the scalar forms config files and environment variables
// produce into the types Settings uses
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		StringToDecimalHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		trimSliceHookFunc(),
	)
}

// StringToDecimalHookFunc decodes strings and numbers into decimal.Decimal
func StringToDecimalHookFunc() mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf(decimal.Decimal{})

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != target {
			return data, nil
		}

		switch from.Kind() {
		case reflect.String:
			s := strings.TrimSpace(data.(string))
			if s == "" {
				return decimal.Zero, nil
			}
			return decimal.NewFromString(s)
		case reflect.Float32, reflect.Float64:
			return decimal.NewFromFloat(cast.ToFloat64(data)), nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return decimal.NewFromInt(cast.ToInt64(data)), nil
		default:
			return data, nil
		}
	}
}

// trimSliceHookFunc trims the elements of string lists so "a, b" decodes to
// two clean entries
func trimSliceHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to.Kind() != reflect.Slice || to.Elem().Kind() != reflect.String {
			return data, nil
		}
		if from.Kind() != reflect.Slice {
			return data, nil
		}

		items := cast.ToStringSlice(data)
		out := make([]string, 0, len(items))
		for _, item := range items {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out, nil
	}
}

// Validate reports every invalid section at once
func (s *Settings) Validate() error {
	var err error

	if verr := s.Log.Validate(); verr != nil {
		err = multierr.Append(err, fmt.Errorf("log: %w", verr))
	}
	if verr := s.Report.Validate(); verr != nil {
		err = multierr.Append(err, fmt.Errorf("report: %w", verr))
	}
	if verr := s.Service().Validate(); verr != nil {
		err = multierr.Append(err, verr)
	}

	return err
}

// Service returns the reconciler configuration described by s
func (s *Settings) Service() *reconciler.Config {
	return &reconciler.Config{
		Normalizer:     s.Normalizer,
		Classifier:     s.Classifier,
		Matching:       s.Matching.Clone(),
		Exports:        s.Exports,
		ReadWorkers:    s.ReadWorkers,
		VerifyPairings: s.VerifyPairings,
	}
}

// Logger builds the logger described by s. Verbose forces debug level.
func (s *Settings) Logger(verbose bool) (logger.Logger, error) {
	config := s.Log
	if verbose {
		config.Level = logger.DebugLevel
	}
	return logger.NewLogger(&config)
}
