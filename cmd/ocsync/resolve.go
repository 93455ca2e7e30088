package main

import (
	"context"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/service"
)

var resolveDecision string

var resolveCmd = &cobra.Command{
	Use:   "resolve <file>",
	Short: "Decide which copy of a conflicted file wins",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := remoteArg(args[0])
		return withService(cmd, "resolve", func(ctx context.Context, svc *service.SyncService) error {
			if err := enter(ctx, svc, domain.ParentPath(p)); err != nil {
				return err
			}
			if err := svc.Session().OpenConflict(ctx, p); err != nil {
				return err
			}
			return resolveOpen(ctx, svc, resolveDecision)
		})
	},
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveDecision, "decision", "d", "", "local, server, keep_both or cancel")
	rootCmd.AddCommand(resolveCmd)
}

func decisionLabel(d domain.Decision) string {
	switch d {
	case domain.DecisionLocal:
		return "Keep my copy and upload it"
	case domain.DecisionServer:
		return "Take the server version"
	case domain.DecisionKeepBoth:
		return "Keep both, uploading mine under a new name"
	case domain.DecisionCancel:
		return "Decide later"
	}
	return string(d)
}

// resolveOpen answers the open conflict with flag, or asks for an answer.
// Unknown answers are passed on and end up cancelling.
func resolveOpen(ctx context.Context, svc *service.SyncService, flag string) error {
	session := svc.Session()
	file, open, err := session.Conflict(ctx)
	if err != nil {
		return err
	}
	if !open {
		return domain.ErrNoConflict
	}

	decision := domain.Decision(flag)
	if flag == "" {
		if !interactive() {
			return fmt.Errorf("%s is in conflict; pass --decision", file.RemotePath)
		}
		labels := make([]string, len(domain.Decisions))
		for i, d := range domain.Decisions {
			labels[i] = decisionLabel(d)
		}
		prompt := promptui.Select{
			Label: fmt.Sprintf("%s changed here and on the server", file.RemotePath),
			Items: labels,
		}
		i, _, err := prompt.Run()
		if err != nil {
			decision = domain.DecisionCancel
		} else {
			decision = domain.Decisions[i]
		}
	}

	if _, err := session.Decide(ctx, decision); err != nil {
		return err
	}
	return svc.Settle(ctx, settlePoll)
}
