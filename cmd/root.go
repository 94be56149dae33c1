package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/hmi-harness/internal/bench"
	"github.com/xkilldash9x/hmi-harness/internal/config"
	"github.com/xkilldash9x/hmi-harness/internal/observability"
)

// skipConfig marks commands that run without loading the configuration.
const skipConfig = "skip-config"

// app holds the state shared by the commands of one invocation.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger

	// benchOpts are appended to every bench.Open call. Tests use it to
	// replace backend openers.
	benchOpts []bench.Option
	// saveRuns persists results when a database is configured.
	saveRuns runSaver
}

// NewRootCommand builds a fresh command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{saveRuns: saveRunsPostgres})
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "hmi-harness",
		Short:         "hmi-harness drives HMI screens through end-to-end test scenarios.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipConfig] == "true" {
				return nil
			}
			return a.initialize()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newRunCmd(a),
		newTypeCmd(a),
		newScenariosCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree with ctx and logs a failure.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			observability.GetLogger().Warn("Command aborted by signal.")
		} else {
			observability.GetLogger().Error("Command execution failed.", zap.Error(err))
		}
	}
	observability.Sync()
	return err
}

// initialize reads the config file and environment and sets up logging.
func (a *app) initialize() error {
	v := viper.New()
	config.SetDefaults(v)

	if a.cfgFile != "" {
		path, err := homedir.Expand(a.cfgFile)
		if err != nil {
			return fmt.Errorf("failed to expand config path: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("HMI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}

	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		observability.InitializeLogger(config.NewDefaultConfig().Logger())
		return err
	}
	a.cfg = cfg

	observability.InitializeLogger(cfg.Logger())
	a.logger = observability.GetLogger()
	a.logger.Debug("Configuration loaded.",
		zap.String("file", v.ConfigFileUsed()),
		zap.Strings("devices", cfg.DeviceNames()),
		zap.String("version", Version))
	return nil
}
