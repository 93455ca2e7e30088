package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/Ning0612/ocsync/internal/lock"
	"github.com/Ning0612/ocsync/internal/logger"
	"github.com/Ning0612/ocsync/internal/remote"
	"github.com/Ning0612/ocsync/internal/state"
)

var (
	historyLimit int
	unlockForce  bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize ocsync against the server with OAuth",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Shutdown()

		if !cfg.Account.UsesOAuth() {
			return fmt.Errorf("account %s does not use OAuth; set account.oauth_client_id", cfg.Account.Name)
		}
		auth := remote.NewAuthenticator(cfg.Account.ServerURL, cfg.Account.OAuthClientID, cfg.Account.OAuthClientSecret, cfg.TokenPath())
		url, _, err := auth.AuthCodeURL()
		if err != nil {
			return err
		}
		fmt.Printf("Open this URL, grant access and paste the code you get back:\n\n  %s\n\n", url)

		prompt := promptui.Prompt{Label: "Authorization code"}
		code, err := prompt.Run()
		if err != nil {
			return fmt.Errorf("login cancelled: %w", err)
		}
		if _, err := auth.Exchange(ctx, code); err != nil {
			return err
		}
		fmt.Printf("Token saved to %s\n", auth.TokenPath())
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [path]",
	Short: "Show the latest finished operations",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Shutdown()

		m, err := state.NewManager(cfg.HistoryPath())
		if err != nil {
			return err
		}
		defer m.Close()

		var records []state.SyncRecord
		if len(args) == 1 {
			records, err = m.PathHistory(cmd.Context(), cfg.Account.Name, remoteArg(args[0]), historyLimit)
		} else {
			records, err = m.History(cmd.Context(), cfg.Account.Name, historyLimit)
		}
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("no history")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FINISHED\tOPERATION\tPATH\tRESULT\tERROR")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.EndTime.Local().Format(time.DateTime), r.Operation, r.RemotePath, r.Code, r.Error)
		}
		return w.Flush()
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Remove the account lock left behind by a crashed process",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Shutdown()

		fl, err := lock.NewFileLock(cfg.LockDir(), cfg.Account.Name)
		if err != nil {
			return err
		}
		holder, err := fl.GetHolder()
		if err != nil {
			fmt.Println("account is not locked")
			return nil
		}
		fmt.Printf("locked by %q, pid %d on %s since %s\n",
			holder.Command, holder.PID, holder.Hostname, holder.StartTime.Format(time.RFC3339))

		if !unlockForce {
			if !interactive() {
				return fmt.Errorf("refusing to unlock without --force")
			}
			prompt := promptui.Prompt{Label: "Remove the lock anyway", IsConfirm: true}
			if _, err := prompt.Run(); err != nil {
				return nil
			}
		}
		if err := fl.ForceRelease(); err != nil {
			return err
		}
		fmt.Println("lock removed")
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries")
	unlockCmd.Flags().BoolVarP(&unlockForce, "force", "f", false, "do not ask")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(unlockCmd)
}
