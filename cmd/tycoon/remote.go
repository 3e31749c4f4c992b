package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	cl "tycoon/internal/cli"
	"tycoon/internal/config"
	"tycoon/internal/session"
)

func newRemoteCmd(a *app) *cobra.Command {
	var apiBase string
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Play a slot hosted by tycoon-server",
	}
	cmd.PersistentFlags().StringVar(&apiBase, "api", "", "server base URL (default from config)")

	client := func() *cl.Client {
		base := strings.TrimSpace(apiBase)
		if base == "" {
			base = a.cfg.APIBaseURL
		}
		return cl.NewClient(base)
	}
	profile := func() (cl.Profile, *cl.Client, error) {
		p, err := cl.LoadProfile(config.HomeDir())
		if err != nil {
			return p, nil, err
		}
		if strings.TrimSpace(apiBase) == "" && p.BaseURL != "" {
			return p, cl.NewClient(p.BaseURL), nil
		}
		return p, client(), nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "open",
			Short: "Open the slot on the server and remember the session",
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				c := client()
				info, err := c.OpenSession(ctx, a.slot)
				if err != nil {
					return err
				}
				if err := cl.SaveProfile(config.HomeDir(), cl.Profile{BaseURL: c.BaseURL, SessionID: info.Session, Slot: info.Slot}); err != nil {
					return err
				}
				if info.Opened != nil {
					renderNotices(*info.Opened)
				}
				printSuccess(fmt.Sprintf("Joined session %s for slot %q.", info.Session, info.Slot))
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the remote session",
			RunE: func(cmd *cobra.Command, args []string) error {
				p, c, err := profile()
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				info, err := c.SessionState(ctx, p.SessionID)
				if err != nil {
					return err
				}
				if info.Snapshot != nil {
					renderSnapshot(info.Slot, *info.Snapshot)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "do TYPE [ID] [QTY|max]",
			Short: "Send one command (TRIGGER, BUY, UPGRADE, MANAGER, PRESTIGE, TICK, SAVE)",
			Args:  cobra.RangeArgs(1, 3),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, c, err := profile()
				if err != nil {
					return err
				}
				sc, err := remoteCommand(args)
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				resp, err := c.Command(ctx, p.SessionID, sc)
				if err != nil {
					return err
				}
				renderOutcome("Done", resp)
				return nil
			},
		},
		newRemoteWatchCmd(profile),
		&cobra.Command{
			Use:   "close",
			Short: "Close the remote session and forget it",
			RunE: func(cmd *cobra.Command, args []string) error {
				p, c, err := profile()
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				if err := c.CloseSession(ctx, p.SessionID); err != nil {
					return err
				}
				if err := cl.ClearProfile(config.HomeDir()); err != nil {
					return err
				}
				printSuccess("Remote session closed.")
				return nil
			},
		},
	)
	return cmd
}

func newRemoteWatchCmd(profile func() (cl.Profile, *cl.Client, error)) *cobra.Command {
	var every time.Duration
	var count int
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream ticks from the remote session",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, c, err := profile()
			if err != nil {
				return err
			}
			seen := 0
			errDone := fmt.Errorf("watched %d ticks", count)
			err = c.Watch(cmd.Context(), p.SessionID, every, func(r session.Response) error {
				if r.Type != session.TypeTick || r.Snapshot == nil {
					return nil
				}
				fmt.Printf("%s  balance %s  income $%s/s\n",
					time.Now().Format(time.TimeOnly), colorizeMoney(r.Snapshot.State.Balance), formatMoney(r.Snapshot.IncomePerSecond))
				seen++
				if count > 0 && seen >= count {
					return errDone
				}
				return nil
			})
			if errors.Is(err, errDone) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&every, "every", time.Second, "tick interval")
	cmd.Flags().IntVar(&count, "count", 0, "stop after this many ticks (0 streams until interrupted)")
	return cmd
}

func remoteCommand(args []string) (session.Command, error) {
	c := session.Command{Type: session.Type(strings.ToUpper(args[0]))}
	id := ""
	if len(args) > 1 {
		id = args[1]
	}
	switch c.Type {
	case session.TypeTrigger, session.TypeBuy:
		c.BusinessID = id
	case session.TypeUpgrade:
		c.UpgradeID = id
	case session.TypeManager:
		c.ManagerID = id
	}
	if len(args) > 2 {
		c.Bulk = args[2]
	}
	if id == "" && (c.Type == session.TypeTrigger || c.Type == session.TypeBuy || c.Type == session.TypeUpgrade || c.Type == session.TypeManager) {
		return c, fmt.Errorf("%s needs an id", c.Type)
	}
	return c, nil
}
