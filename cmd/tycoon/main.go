package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tycoon/internal/config"
	"tycoon/internal/economy"
	"tycoon/internal/game"
	"tycoon/internal/save"
	"tycoon/internal/session"
	"tycoon/internal/store"
	"tycoon/internal/syncq"

	"github.com/spf13/cobra"
)

type app struct {
	cfgPath string
	slot    string
	verbose bool

	cfg    config.CLIConfig
	log    *slog.Logger
	engine *game.Engine
}

func main() {
	a := &app{}
	root := &cobra.Command{
		Use:           "tycoon",
		Short:         "Idle tycoon in your terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config file (default ./tycoon.yaml or ~/.tycoon/tycoon.yaml)")
	root.PersistentFlags().StringVar(&a.slot, "slot", "default", "save slot")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log engine and store activity")

	root.AddCommand(
		newNewCmd(a),
		newStatusCmd(a),
		newTriggerCmd(a),
		newBuyCmd(a),
		newUpgradeCmd(a),
		newHireCmd(a),
		newPrestigeCmd(a),
		newOfflineCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newSlotsCmd(a),
		newSyncCmd(a),
		newPlayCmd(a),
		newRemoteCmd(a),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(fmt.Sprintf("error: %v", err))
		os.Exit(1)
	}
}

func (a *app) load() error {
	cfg, err := config.LoadCLI(a.cfgPath)
	if err != nil {
		return err
	}
	if !a.verbose {
		cfg.Log.Level = "warn"
	}
	a.cfg = cfg
	a.log = cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(a.log)

	cat, err := cfg.Game.Catalog()
	if err != nil {
		return err
	}
	a.engine = game.NewEngine(cat, a.log)
	return nil
}

func (a *app) queue() *syncq.Queue {
	return syncq.New(a.cfg.Session.QueuePath)
}

// withSession opens the slot, runs fn and closes the session, which writes
// the final save.
func (a *app) withSession(ctx context.Context, fn func(*session.Session, session.Response) error) error {
	st, err := store.Open(ctx, a.cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	sess, first, err := session.Open(ctx, session.Options{
		Slot:          a.slot,
		Engine:        a.engine,
		Store:         st,
		Queue:         a.queue(),
		Logger:        a.log,
		TickEvery:     a.cfg.Session.TickEvery,
		AutosaveEvery: a.cfg.Session.AutosaveEvery,
		SaveRetries:   a.cfg.Session.SaveRetries,
		SaveBackoff:   a.cfg.Session.SaveBackoff,
	})
	if err != nil {
		return err
	}
	runErr := fn(sess, first)

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sess.Close(closeCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// runCommand sends one command to the slot and prints the outcome.
func (a *app) runCommand(cmd *cobra.Command, c session.Command, verb string) error {
	return a.withSession(cmd.Context(), func(s *session.Session, first session.Response) error {
		renderNotices(first)
		resp, err := s.Do(cmd.Context(), c)
		if err != nil {
			return err
		}
		if resp.Err != nil {
			return resp.Err
		}
		renderOutcome(verb, resp)
		return nil
	})
}

func newNewCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a new game in the slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := store.Open(ctx, a.cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close()

			if _, err := st.Get(ctx, a.slot); err == nil && !force {
				return fmt.Errorf("slot %q already has a save, use --force to overwrite it", a.slot)
			} else if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			now := time.Now()
			blob, err := save.Encode(a.engine.NewState(now.UnixMilli()), now.UnixMilli())
			if err != nil {
				return err
			}
			if err := st.Put(ctx, a.slot, blob); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("New game started in slot %q.", a.slot))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing save")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show balance, businesses and what you can buy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), func(s *session.Session, first session.Response) error {
				renderNotices(first)
				snap := s.Latest()
				renderSnapshot(a.slot, snap)
				return nil
			})
		},
	}
}

func newTriggerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger BUSINESS",
		Short: "Start a production cycle on a business without a manager",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCommand(cmd, session.Command{Type: session.TypeTrigger, BusinessID: args[0]}, "Started")
		},
	}
}

func newBuyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "buy BUSINESS [QTY|max]",
		Short: "Buy units of a business",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bulk := "1"
			if len(args) == 2 {
				bulk = strings.TrimSpace(args[1])
			}
			if _, err := game.ParseBulk(bulk); err != nil {
				return err
			}
			return a.runCommand(cmd, session.Command{Type: session.TypeBuy, BusinessID: args[0], Bulk: bulk}, "Bought")
		},
	}
}

func newUpgradeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade UPGRADE",
		Short: "Buy an upgrade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCommand(cmd, session.Command{Type: session.TypeUpgrade, UpgradeID: args[0]}, "Purchased")
		},
	}
}

func newHireCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hire MANAGER",
		Short: "Hire a manager to automate a business",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCommand(cmd, session.Command{Type: session.TypeManager, ManagerID: args[0]}, "Hired")
		},
	}
}

func newPrestigeCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "prestige",
		Short: "Reset progress for permanent prestige points",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), func(s *session.Session, first session.Response) error {
				renderNotices(first)
				preview := s.Latest().Prestige
				if preview.Gain.LessThanOrEqual(economy.Zero) {
					printWarn("Nothing to gain yet. Earn more before prestiging.")
					return nil
				}
				if !yes {
					ok, err := promptConfirm(fmt.Sprintf("Reset for %s prestige points?", formatMoney(preview.Gain)))
					if err != nil || !ok {
						return err
					}
				}
				resp, err := s.Do(cmd.Context(), session.Command{Type: session.TypePrestige})
				if err != nil {
					return err
				}
				if resp.Err != nil {
					return resp.Err
				}
				renderOutcome("Prestiged", resp)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newOfflineCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "offline [DURATION]",
		Short: "Preview what automated businesses earn while you are away",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			away := a.engine.Catalog().Tuning.OfflineCap
			if len(args) == 1 {
				d, err := time.ParseDuration(args[0])
				if err != nil {
					return fmt.Errorf("parse duration: %w", err)
				}
				away = d
			}
			return a.withSession(cmd.Context(), func(s *session.Session, first session.Response) error {
				renderNotices(first)
				p := a.engine.Project(s.Latest().State, away.Milliseconds())
				renderProjection(away, a.engine.Catalog().Tuning.OfflineCap, p)
				return nil
			})
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [FILE]",
		Short: "Write the slot's save envelope to a file or stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), func(s *session.Session, _ session.Response) error {
				resp, err := s.Do(cmd.Context(), session.Command{Type: session.TypeSave})
				if err != nil {
					return err
				}
				if resp.Err != nil {
					return resp.Err
				}
				if len(args) == 0 {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), string(resp.Save))
					return err
				}
				if err := os.WriteFile(args[0], resp.Save, 0o600); err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Exported slot %q to %s.", a.slot, args[0]))
				return nil
			})
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Replace the slot with a save envelope from a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if _, _, err := save.Decode(raw, a.engine); err != nil {
				return fmt.Errorf("refusing to import: %w", err)
			}
			return a.withSession(cmd.Context(), func(s *session.Session, _ session.Response) error {
				resp, err := s.Do(cmd.Context(), session.Command{Type: session.TypeInit, Payload: raw})
				if err != nil {
					return err
				}
				if resp.Err != nil {
					return resp.Err
				}
				renderNotices(resp)
				printSuccess(fmt.Sprintf("Imported %s into slot %q.", args[0], a.slot))
				return nil
			})
		},
	}
}

func newSlotsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List save slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(cmd.Context(), a.cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close()
			slots, err := st.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(slots) == 0 {
				printInfo("No saves yet. Run `tycoon new`.")
				return nil
			}
			for _, slot := range slots {
				if slot == a.slot {
					accent.Printf("* %s\n", slot)
					continue
				}
				fmt.Printf("  %s\n", slot)
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "rm SLOT",
		Short: "Delete a save slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(cmd.Context(), a.cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Deleted slot %q.", args[0]))
			return nil
		},
	})
	return cmd
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay saves that failed to write",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := a.queue()
			pending, err := q.Load()
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			st, err := store.Open(cmd.Context(), a.cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			done, failed, err := q.Replay(ctx, st.Put)
			if err != nil {
				return err
			}
			for _, f := range failed {
				printError(fmt.Sprintf("Sync failed for slot %s (queued %s, %d attempts)", f.Slot, f.QueuedAt.Format(time.RFC3339), f.Attempts))
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", done, len(failed)))
			return nil
		},
	}
}
