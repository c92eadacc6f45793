package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/davsync/davsync/internal/session"
	"github.com/davsync/davsync/internal/version"
)

var (
	red  = color.New(color.FgHiRed, color.Bold).SprintFunc()
	cyan = color.New(color.FgHiCyan).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:     "davsync [flags] <source_dir> <server_url>",
	Short:   "Synchronize a local directory with a WebDAV server folder",
	Long:    cyan("davsync") + " runs one synchronization between a local directory\nand a folder on an ownCloud-compatible server, then exits.",
	Version: version.Detailed(),
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := optionsFromFlags(args)
		if err != nil {
			return err
		}
		if err := opts.Validate(); err != nil {
			return err
		}

		setupLogger()

		// usage was fine, failures past this point are runtime errors
		cmd.SilenceUsage = true

		s, err := session.New(opts)
		if err != nil {
			return err
		}
		return s.Run(cmd.Context())
	},
}

func init() {
	f := rootCmd.Flags()
	f.SortFlags = false

	// "-h" means hidden files here, so the help flag keeps only its
	// long form
	f.Bool("help", false, "help for davsync")
	f.BoolP("hidden", "h", false, "sync hidden files")

	f.BoolP("silent", "s", false, "don't show sync activity")
	f.Bool("logdebug", false, "print debug level log output")

	f.StringP("user", "u", "", "use [user] as the login name")
	f.StringP("password", "p", "", "use [password] as the password")
	f.BoolP("netrc", "n", false, "use netrc (5) for login")
	f.Bool("non-interactive", false, "do not block execution with interaction")

	f.String("httpproxy", "", "use [proxy] as the http proxy, format \"http://hostname:port\"")
	f.Bool("trust", false, "trust the SSL certificate")
	f.String("davpath", session.DefaultDavPath, "use [path] as the server's WebDAV endpoint")

	f.String("exclude", "", "path to an additional exclude list file")
	f.String("unsyncedfolders", "", "file containing the list of unsynced remote folders (selective sync)")
	f.Int("max-sync-retries", session.DefaultMaxSyncRetries, "retries a sync at most [n] times before giving up")

	f.Int64("uplimit", 0, "limit the upload speed in KB/s, 0 means unlimited")
	f.Int64("downlimit", 0, "limit the download speed in KB/s, 0 means unlimited")

	viper.SetEnvPrefix("DAVSYNC")
	viper.AutomaticEnv()
	viper.BindPFlags(f)
}

// optionsFromFlags turns the resolved flag set into session options.
func optionsFromFlags(args []string) (*session.Options, error) {
	opts := &session.Options{
		SourceDir:       args[0],
		TargetURL:       args[1],
		User:            viper.GetString("user"),
		Password:        viper.GetString("password"),
		TrustSSL:        viper.GetBool("trust"),
		UseNetrc:        viper.GetBool("netrc"),
		Interactive:     !viper.GetBool("non-interactive"),
		SyncHiddenFiles: viper.GetBool("hidden"),
		ExcludeFile:     viper.GetString("exclude"),
		UnsyncedFolders: viper.GetString("unsyncedfolders"),
		DavPath:         viper.GetString("davpath"),
		MaxSyncRetries:  viper.GetInt("max-sync-retries"),
		MaxParallel:     viper.GetInt("max_parallel"),
		UploadLimit:     viper.GetInt64("uplimit") * 1000,
		DownloadLimit:   viper.GetInt64("downlimit") * 1000,
	}

	if proxy := viper.GetString("httpproxy"); proxy != "" {
		p, err := session.ParseProxy(proxy)
		if err != nil {
			return nil, err
		}
		opts.Proxy = p
	}

	return opts, nil
}

// setupLogger installs the process-wide slog handler. Silent mode
// suppresses all sync activity output, prompts still reach the
// terminal directly.
func setupLogger() {
	var out io.Writer = os.Stderr
	if viper.GetBool("silent") {
		out = io.Discard
	}

	level := slog.LevelInfo
	if viper.GetBool("logdebug") {
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(tint.NewHandler(out, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})))
}

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red("error:"), err)
		os.Exit(1)
	}
}
