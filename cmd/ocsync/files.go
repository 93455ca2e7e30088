package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/service"
)

var (
	syncDecision string
	mkdirParents bool
	rmLocal      bool
)

var lsCmd = &cobra.Command{
	Use:     "ls [folder]",
	Aliases: []string{"browse"},
	Short:   "List a folder after refreshing it from the server",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := domain.RootPath
		if len(args) == 1 {
			dir = remoteArg(args[0])
		}
		return withService(cmd, "ls", func(ctx context.Context, svc *service.SyncService) error {
			return enter(ctx, svc, dir)
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync <file>",
	Short: "Bring one file up to date in whichever direction changed",
	Long: `Downloads the file when it is not here or changed on the server, and
uploads it when it was edited locally. When both sides changed you are asked
which copy wins, unless --decision says so.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := remoteArg(args[0])
		return withService(cmd, "sync", func(ctx context.Context, svc *service.SyncService) error {
			if err := enter(ctx, svc, domain.ParentPath(p)); err != nil {
				return err
			}
			res, err := svc.Session().SyncFile(ctx, p)
			if err != nil {
				return err
			}
			if res.Code == domain.CodeSyncConflict {
				return resolveOpen(ctx, svc, syncDecision)
			}
			if err := resultError(res); err != nil {
				return err
			}
			return svc.Settle(ctx, settlePoll)
		})
	},
}

var openCmd = &cobra.Command{
	Use:   "open <file>",
	Short: "Download a file if needed and print where its local copy is",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := remoteArg(args[0])
		return withService(cmd, "open", func(ctx context.Context, svc *service.SyncService) error {
			if err := enter(ctx, svc, domain.ParentPath(p)); err != nil {
				return err
			}
			if err := svc.Session().Preview(ctx, p); err != nil {
				return err
			}
			return svc.Settle(ctx, settlePoll)
		})
	},
}

var mvCmd = &cobra.Command{
	Use:     "mv <path> <new-name>",
	Aliases: []string{"rename"},
	Short:   "Rename a file or folder inside its folder",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := remoteArg(args[0])
		return withService(cmd, "mv", func(ctx context.Context, svc *service.SyncService) error {
			if err := enter(ctx, svc, domain.ParentPath(p)); err != nil {
				return err
			}
			res, err := svc.Session().Rename(ctx, p, args[1])
			if err != nil {
				return err
			}
			return resultError(res)
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Remove a file or folder from the server and this machine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := remoteArg(args[0])
		return withService(cmd, "rm", func(ctx context.Context, svc *service.SyncService) error {
			if err := enter(ctx, svc, domain.ParentPath(p)); err != nil {
				return err
			}
			res, err := svc.Session().Remove(ctx, p, rmLocal)
			if err != nil {
				return err
			}
			return resultError(res)
		})
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <folder>",
	Short: "Create a folder on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := remoteArg(args[0])
		return withService(cmd, "mkdir", func(ctx context.Context, svc *service.SyncService) error {
			// 父資料夾可能還不存在
			parent := domain.ParentPath(p)
			if mkdirParents {
				parent = domain.RootPath
			}
			if err := enter(ctx, svc, parent); err != nil {
				return err
			}
			res, err := svc.Session().Mkdir(ctx, p, mkdirParents)
			if err != nil {
				return err
			}
			return resultError(res)
		})
	},
}

func pinCommand(use, short string, keep bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <path>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := remoteArg(args[0])
			return withService(cmd, use, func(ctx context.Context, svc *service.SyncService) error {
				if err := enter(ctx, svc, domain.ParentPath(p)); err != nil {
					return err
				}
				return svc.Session().Pin(ctx, p, keep)
			})
		},
	}
}

func init() {
	syncCmd.Flags().StringVarP(&syncDecision, "decision", "d", "", "answer for a conflict: local, server, keep_both or cancel")
	rmCmd.Flags().BoolVar(&rmLocal, "local", false, "only remove the local copy")
	mkdirCmd.Flags().BoolVarP(&mkdirParents, "parents", "p", false, "create missing parent folders")

	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(mvCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(pinCommand("pin", "Keep a file or folder in sync", true))
	rootCmd.AddCommand(pinCommand("unpin", "Stop keeping a file or folder in sync", false))
}
