package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/arcward/guildsweep/guildsweep"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = guildsweep.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "guildsweep [flags]",
	Short: "List the Discord servers an account belongs to and leave them in bulk",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := loadConfig(cfg); err != nil {
			log.Fatalln(err)
		}
	},
}

// loadConfig decodes the viper settings into c. mapstructure decodes into
// a non-nil struct pointer in place, so the log level pointers are
// cleared first for LevelToStringHookFunc to replace them.
func loadConfig(c *guildsweep.Config) error {
	c.LogLevel = nil
	if c.Discord != nil {
		c.Discord.LogLevel = nil
		c.Discord.DiscordGoLogLevel = nil
	}
	return viper.Unmarshal(
		c,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				LevelToStringHookFunc(),
			),
		),
	)
}

func getLogLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		signal.Stop(signals)
		cancel()
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		if err := godotenv.Load(configFile); err != nil {
			log.Printf("unable to load env file %q: %v", configFile, err)
		}
	}

	viper.SetDefault("log_level", guildsweep.DefaultLogLevel.String())
	viper.SetDefault("shutdown_timeout", guildsweep.DefaultShutdownTimeout)
	// Any non-empty NO_COLOR disables colors (https://no-color.org)
	viper.SetDefault("no_color", os.Getenv("NO_COLOR") != "")

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.bot_token", false)
	viper.SetDefault("discord.api_base", guildsweep.DefaultDiscordAPIBase)
	viper.SetDefault(
		"discord.request_timeout",
		guildsweep.DefaultDiscordRequestTimeout,
	)
	viper.SetDefault(
		"discord.log_level",
		guildsweep.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		guildsweep.DefaultDiscordgoLogLevel.String(),
	)

	// Background refresh
	viper.SetDefault("refresh.enabled", guildsweep.DefaultRefreshEnabled)
	viper.SetDefault("refresh.interval", guildsweep.DefaultRefreshInterval)

	// Leave pacing
	viper.SetDefault("leave.pace_delay", guildsweep.DefaultLeavePaceDelay)
	viper.SetDefault(
		"leave.default_retry_after",
		guildsweep.DefaultLeaveDefaultRetryAfter,
	)

	envPrefix := os.Getenv(guildsweep.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = guildsweep.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	fatalErr := func(err error) {
		if err != nil {
			log.Fatalf("error: %v", err)
		}
	}

	// The prefixed names take precedence over the bare ones
	fatalErr(
		viper.BindEnv(
			"discord.token",
			envPrefix+"_DISCORD_TOKEN",
			guildsweep.EnvvarDiscordToken,
		),
	)

	for _, key := range []string{
		"log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
	} {
		if _, err := getLogLevel(viper.GetString(key)); err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
	}
}

//goland:noinspection GoLinter,GoLinter
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Env file to load settings from (default: .env)",
	)
}
