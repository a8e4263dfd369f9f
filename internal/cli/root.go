package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"leetmail/internal/config"
)

var v = config.New()

var rootCmd = &cobra.Command{
	Use:           "leetmail",
	Short:         "LeetCode daily problem reminders by email",
	Long:          "Sends each verified subscriber the LeetCode daily problem at their local slot hours until they solve it.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("database_url", "", "Postgres connection URL")
	pf.String("log_level", "info", "Log level: debug, info, warn, error")
	pf.Bool("log_console", false, "Human readable logs instead of JSON")
	pf.String("delivery", "gmail", "Delivery mode: gmail or log")
	bindFlags(v, pf, "database_url", "log_level", "log_console", "delivery")

	rootCmd.AddCommand(serveCmd, runCycleCmd, tokenCmd, hashSecretCmd, migrateCmd)
}

func initConfig() {
	if used, err := config.ReadFile(v); err != nil {
		fmt.Fprintf(os.Stderr, "config file: %v\n", err)
	} else if used != "" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", used)
	}
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet, names ...string) {
	for _, n := range names {
		_ = v.BindPFlag(n, fs.Lookup(n))
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
