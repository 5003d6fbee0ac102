package cmd

import (
	"context"
	"fmt"
	"os"

	"golang-conciliation-service/cmd/conciliator/config"
	"golang-conciliation-service/pkg/errors"
	"golang-conciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the CLI reads
const EnvPrefix = "CONCILIATOR"

var (
	cfgFile  string
	verbose  bool
	settings *config.Settings

	// flagKeys maps each command to the viper keys its flags configure
	flagKeys = make(map[*cobra.Command]map[string]string)

	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "conciliator",
	Short: "Payment conciliation tool",
	Long: `Conciliator matches payment requests, payment receipts and bank ledger
movements and reports which records are fully matched, matched by amount only
or still pending.

Examples:
  conciliator reconcile --requests estado.xlsx --receipts cobros.xlsx --ledger banco_pesos.xlsx
  conciliator reconcile --requests estado.xlsx --confirmations confirmadas.xlsx \
    --receipts cobros.xlsx --ledger banco_pesos.xlsx --restricted-ledger banco_restringido.xlsx \
    --output conciliacion.xlsx
  conciliator classify --ledger banco_usd.xlsx --format json
  conciliator version`,
	Version:           getVersionString(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadSettings,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, so an interrupt cancels the run
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional, YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig points viper at the config file and the environment
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := config.BindEnv(viper.GetViper(), EnvPrefix); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding environment: %s\n", err)
	}
}

// loadSettings reads the config file, decodes the settings and installs the
// configured logger as the global logger
func loadSettings(cmd *cobra.Command, args []string) error {
	bindFlags(cmd.Flags(), flagKeys[cmd])

	if cfgFile != "" {
		if err := viper.ReadInConfig(); err != nil {
			return errors.ConfigurationError(errors.CodeMissingConfig, "config", cfgFile, err).
				WithSuggestion("Check that the --config file exists and is valid YAML")
		}
	}

	loaded, err := config.Load(viper.GetViper())
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "config", viper.ConfigFileUsed(), err)
	}
	settings = loaded

	log, err := settings.Logger(viper.GetBool("verbose"))
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", settings.Log.Level, err)
	}
	logger.SetGlobalLogger(log)

	if viper.ConfigFileUsed() != "" {
		log.WithField("file", viper.ConfigFileUsed()).Debug("Using config file")
	}
	return nil
}

// bindFlags binds each flag of flags to the viper key it configures. Only the
// running command is bound; reconcile and classify share keys.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if flag := flags.Lookup(name); flag != nil {
			viper.BindPFlag(key, flag)
		}
	}
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
