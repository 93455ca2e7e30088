package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/ocsync/internal/config"
	"github.com/Ning0612/ocsync/internal/daemon"
	"github.com/Ning0612/ocsync/internal/lock"
	"github.com/Ning0612/ocsync/internal/logger"
	"github.com/Ning0612/ocsync/internal/service"
	"github.com/Ning0612/ocsync/internal/state"
	"github.com/Ning0612/ocsync/internal/view"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [folder...]",
	Short: "Keep the account in sync until interrupted",
	Long: `Refreshes the given folders, or the root, every interval and pushes
edits of kept-in-sync files as soon as they are saved. Runs in the
foreground; use "ocsync watch stop" from another terminal to end it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Shutdown()

		interval := watchInterval
		if interval == 0 {
			interval = cfg.Sync.Interval
		}
		folders := make([]string, len(args))
		for i, a := range args {
			folders[i] = remoteArg(a)
		}

		svc, err := service.NewSyncService(ctx, cfg, service.ServiceOptions{
			View:     view.NewConsole(os.Stdout),
			Reporter: newReporter(),
		})
		if err != nil {
			return err
		}
		d, err := service.NewDaemonService(svc)
		if err != nil {
			svc.Close()
			return err
		}
		defer d.Close()

		if err := d.Start(ctx, interval, folders); err != nil {
			return err
		}
		fmt.Printf("watching %s every %s (pid %d)\n", cfg.Account.Name, interval, os.Getpid())
		<-ctx.Done()
		return nil
	},
}

var watchStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running watch",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pid := watchPIDFile(cfg)
		if err := pid.Stop(); err != nil {
			if errors.Is(err, daemon.ErrNotRunning) {
				fmt.Println("watch is not running")
				return nil
			}
			return err
		}
		fmt.Println("watch stopped")
		return nil
	},
}

var watchStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a watch runs and the last synchronization",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		pid := watchPIDFile(cfg)
		if running, _ := pid.IsRunning(); running {
			n, _ := pid.Read()
			fmt.Printf("watch: running (pid %d)\n", n)
		} else {
			fmt.Println("watch: not running")
		}

		fl, err := lock.NewFileLock(cfg.LockDir(), cfg.Account.Name)
		if err != nil {
			return err
		}
		if holder, err := fl.GetHolder(); err == nil {
			fmt.Printf("lock: held by %q (pid %d on %s since %s)\n",
				holder.Command, holder.PID, holder.Hostname, holder.StartTime.Format(time.RFC3339))
		} else {
			fmt.Println("lock: free")
		}

		history, err := state.NewManager(cfg.HistoryPath())
		if err != nil {
			return err
		}
		defer history.Close()
		records, err := history.History(cmd.Context(), cfg.Account.Name, 1)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("last sync: never")
			return nil
		}
		last := records[0]
		fmt.Printf("last sync: %s %s %s at %s\n", last.Operation, last.RemotePath, last.Code, last.EndTime.Format(time.RFC3339))
		return nil
	},
}

func watchPIDFile(cfg *config.Config) *daemon.PIDFile {
	return daemon.NewPIDFile(daemon.PIDPath(config.ExpandPath(cfg.Storage.DataDir), cfg.Account.Name))
}

func init() {
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 0, "time between refreshes (default: sync.interval)")
	watchCmd.AddCommand(watchStopCmd)
	watchCmd.AddCommand(watchStatusCmd)
	rootCmd.AddCommand(watchCmd)
}
