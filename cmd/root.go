package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/nsyszr/punchclock/config"
	"github.com/nsyszr/punchclock/pkg/cmd/cli"
	"github.com/nsyszr/punchclock/pkg/controller"
	"github.com/nsyszr/punchclock/pkg/reconcile"
	"github.com/nsyszr/punchclock/pkg/terminal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string
var c = new(config.Config)
var cmdHandler = cli.NewHandler(c)

var (
	Version   = "dev-master"
	BuildTime = "undefined"
	GitHash   = "undefined"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "punchclock",
	Short: "Attendance terminal sync service",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(cmd.UsageString())
		os.Exit(2)
	},
}

// Execute runs the root command and is called by main.main()
func Execute() {
	c.BuildTime = BuildTime
	c.BuildVersion = Version
	c.BuildHash = GitHash

	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.punchclock.yml)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// enable ability to specify config file via flag
		viper.SetConfigFile(cfgFile)
	} else {
		path := absPathify("$HOME")
		if _, err := os.Stat(filepath.Join(path, ".punchclock.yml")); err != nil {
			_, _ = os.Create(filepath.Join(path, ".punchclock.yml"))
		}

		viper.SetConfigType("yaml")
		viper.SetConfigName(".punchclock") // name of config file (without extension)
		viper.AddConfigPath("$HOME")       // adding home directory as first search path
	}
	viper.AutomaticEnv() // read in environment variables that match

	// Fetch settings
	viper.BindEnv("PORT")
	viper.SetDefault("PORT", 8080)

	viper.BindEnv("HOST")
	viper.SetDefault("HOST", "")

	viper.BindEnv("DATABASE_URL")
	viper.SetDefault("DATABASE_URL", "")

	viper.BindEnv("NATS_URL")
	viper.SetDefault("NATS_URL", "")

	viper.BindEnv("LOG_LEVEL")
	viper.SetDefault("LOG_LEVEL", "info")

	viper.BindEnv("LOG_FORMAT")
	viper.SetDefault("LOG_FORMAT", "text")

	viper.BindEnv("SYNC_MAX_WORKERS")
	viper.SetDefault("SYNC_MAX_WORKERS", controller.DefaultMaxWorkers)

	viper.BindEnv("SYNC_LEASE_TTL")
	viper.SetDefault("SYNC_LEASE_TTL", controller.DefaultLeaseTTL)

	viper.BindEnv("DEVICE_CONNECT_TIMEOUT")
	viper.SetDefault("DEVICE_CONNECT_TIMEOUT", controller.DefaultConnectTimeout)

	viper.BindEnv("DEVICE_FETCH_TIMEOUT")
	viper.SetDefault("DEVICE_FETCH_TIMEOUT", terminal.DefaultFetchTimeout)

	viper.BindEnv("DEVICE_BULK_TIMEOUT")
	viper.SetDefault("DEVICE_BULK_TIMEOUT", terminal.DefaultBulkTimeout)

	// -1 disables retries, 0 means the default.
	viper.BindEnv("DEVICE_MAX_RETRIES")
	viper.SetDefault("DEVICE_MAX_RETRIES", terminal.DefaultMaxRetries)

	viper.BindEnv("CLOCK_OFFSET_QUANTUM")
	viper.SetDefault("CLOCK_OFFSET_QUANTUM", reconcile.DefaultOffsetQuantum)

	viper.BindEnv("STORE_TIMEOUT")
	viper.SetDefault("STORE_TIMEOUT", controller.DefaultStoreTimeout)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf(`Config file not found because "%s"`, err)
		fmt.Println("")
	}

	if err := viper.Unmarshal(c); err != nil {
		log.Fatal(fmt.Sprintf("Could not read config because %s.", err))
	}
}

func absPathify(inPath string) string {
	if strings.HasPrefix(inPath, "$HOME") {
		inPath = userHomeDir() + inPath[5:]
	}

	if strings.HasPrefix(inPath, "$") {
		end := strings.Index(inPath, string(os.PathSeparator))
		inPath = os.Getenv(inPath[1:end]) + inPath[end:]
	}

	if filepath.IsAbs(inPath) {
		return filepath.Clean(inPath)
	}

	p, err := filepath.Abs(inPath)
	if err == nil {
		return filepath.Clean(p)
	}
	return ""
}

func userHomeDir() string {
	if runtime.GOOS == "windows" {
		home := os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
		if home == "" {
			home = os.Getenv("USERPROFILE")
		}
		return home
	}
	return os.Getenv("HOME")
}
