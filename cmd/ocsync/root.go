package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Ning0612/ocsync/internal/config"
	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/logger"
	"github.com/Ning0612/ocsync/internal/progress"
	"github.com/Ning0612/ocsync/internal/service"
	"github.com/Ning0612/ocsync/internal/view"
)

// settlePoll is how often commands check whether their work is done.
const settlePoll = 100 * time.Millisecond

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ocsync",
	Short: "Browse and synchronize an ownCloud account",
	Long: `ocsync keeps local copies of ownCloud files in step with the server.

Files are downloaded on demand and uploaded back when edited. Files and
folders can be kept in sync, in which case "ocsync watch" pushes local
edits and pulls server changes in the background.

Configuration is read from config.yaml in ., ./configs, the user config
dir or ~/.ocsync. Every key can be overridden with an OCSYNC_ variable,
e.g. OCSYNC_ACCOUNT_PASSWORD.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: search the standard locations)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
}

// loadConfig reads the configuration and installs the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		if errors.Is(err, domain.ErrConfigNotFound) {
			return nil, fmt.Errorf("%w; create config.yaml in one of %v", err, config.DefaultConfigPaths())
		}
		return nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := logger.Init(cfg.LoggerConfig()); err != nil && !errors.Is(err, logger.ErrAlreadyInitialized) {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// newReporter prints transfer progress when stderr is a terminal.
func newReporter() progress.Reporter {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return progress.NewCallbackReporter(func(u progress.Update) {
		fmt.Fprintln(os.Stderr, progress.Line(u))
	}, 500*time.Millisecond)
}

// withService runs fn against a started, focused account service. The
// account lock is held for command while fn runs.
func withService(cmd *cobra.Command, command string, fn func(ctx context.Context, svc *service.SyncService) error) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Shutdown()

	svc, err := service.NewSyncService(ctx, cfg, service.ServiceOptions{
		View:     view.NewConsole(os.Stdout),
		Reporter: newReporter(),
	})
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Start(ctx, command); err != nil {
		return err
	}
	if err := svc.Session().Focus(ctx, true); err != nil {
		return err
	}
	return fn(ctx, svc)
}

// enter browses dir and waits for its refresh to land.
func enter(ctx context.Context, svc *service.SyncService, dir string) error {
	if err := svc.Session().Browse(ctx, dir); err != nil {
		return err
	}
	if err := svc.Settle(ctx, settlePoll); err != nil {
		return err
	}
	return answerTrust(ctx, svc)
}

// answerTrust asks the user about a certificate the server presented and
// refreshes again once it is accepted.
func answerTrust(ctx context.Context, svc *service.SyncService) error {
	session := svc.Session()
	cert, err := session.PendingCertificate(ctx)
	if err != nil || cert == nil {
		return err
	}
	if !interactive() {
		session.AcceptCertificate(ctx, false)
		return fmt.Errorf("server certificate is not trusted; run again from a terminal to accept it")
	}

	prompt := promptui.Prompt{Label: "Trust this certificate", IsConfirm: true}
	_, perr := prompt.Run()
	accept := perr == nil
	if err := session.AcceptCertificate(ctx, accept); err != nil {
		return err
	}
	if !accept {
		return fmt.Errorf("server certificate rejected")
	}
	return svc.Settle(ctx, settlePoll)
}

// resultError turns a failed result into the command's error. The view
// already told the user what went wrong.
func resultError(res domain.Result) error {
	if res.Success() {
		return nil
	}
	return fmt.Errorf("%s %s: %s", res.Kind, res.Target, res.Code)
}

func remoteArg(arg string) string {
	return domain.CleanPath(filepath.ToSlash(arg))
}
