package commands

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"

	"cipherlink/internal/app"
	"cipherlink/internal/crypto"
)

// Execute builds the root command and runs it.
func Execute() error {
	root := &cobra.Command{
		Use:           "cipherlink",
		Short:         "End-to-end encryption with X3DH and the Double Ratchet",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(); err != nil {
				return err
			}
			initLog(viper.GetUint("logLevel"), viper.GetString("log"))
			return crypto.Init()
		},
	}

	root.PersistentFlags().String("home", "", "data dir (default ~/.cipherlink)")
	root.PersistentFlags().StringP("passphrase", "p", "", "passphrase protecting keys and sessions")
	root.PersistentFlags().Int("opks", app.DefaultOneTimePreKeys, "one-time pre-keys to generate")
	root.PersistentFlags().UintP("logLevel", "v", 0, "verbosity: 0 info, 1 debug, 2 trace")
	root.PersistentFlags().String("log", "-", "log file path, - for stdout")
	for _, name := range []string{"home", "passphrase", "opks", "logLevel", "log"} {
		_ = viper.BindPFlag(name, root.PersistentFlags().Lookup(name))
	}

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		bundleCmd(),
		rotateCmd(),
		addPeerCmd(),
		startSessionCmd(),
		endSessionCmd(),
		sendCmd(),
		recvCmd(),
		demoCmd(),
	)
	return root.Execute()
}

// loadConfig resolves the home directory and merges an optional
// config.yaml found there. Flags and environment take precedence.
func loadConfig() error {
	viper.SetEnvPrefix("CIPHERLINK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if viper.GetString("home") == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return errors.WithStack(err)
		}
		viper.SetDefault("home", filepath.Join(dir, ".cipherlink"))
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(viper.GetString("home"))
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errors.Wrap(err, "read config")
		}
	}
	return nil
}

func initLog(threshold uint, logPath string) {
	if logPath != "-" && logPath != "" {
		// Disable stdout output
		jww.SetStdoutOutput(io.Discard)
		// Use log file
		logOutput, err := os.OpenFile(logPath,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			panic(err.Error())
		}
		jww.SetLogOutput(logOutput)
	}

	switch {
	case threshold > 1:
		jww.SetStdoutThreshold(jww.LevelTrace)
		jww.SetLogThreshold(jww.LevelTrace)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	case threshold == 1:
		jww.SetStdoutThreshold(jww.LevelDebug)
		jww.SetLogThreshold(jww.LevelDebug)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	default:
		jww.SetStdoutThreshold(jww.LevelWarn)
		jww.SetLogThreshold(jww.LevelInfo)
	}
}

func config() app.Config {
	return app.Config{
		Home:           viper.GetString("home"),
		Passphrase:     viper.GetString("passphrase"),
		OneTimePreKeys: viper.GetInt("opks"),
	}
}

// withApp opens the stores, runs fn and closes them again.
func withApp(fn func(w *app.Wire) error) error {
	cfg := config()
	if cfg.Passphrase == "" {
		return errors.New("passphrase required (-p or CIPHERLINK_PASSPHRASE)")
	}
	w, err := app.NewWire(cfg, app.LogEvents(jww.INFO.Printf))
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	return fn(w)
}

// readInput reads a file argument, "-" meaning stdin.
func readInput(path string) ([]byte, error) {
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		return b, errors.WithStack(err)
	}
	b, err := os.ReadFile(path)
	return b, errors.WithStack(err)
}

// writeOutput writes b to path, "" or "-" meaning stdout.
func writeOutput(path string, b []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(append(b, '\n'))
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(path, b, 0o600))
}
