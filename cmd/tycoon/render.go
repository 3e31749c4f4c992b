package main

import (
	"bufio"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"

	"tycoon/internal/economy"
	"tycoon/internal/game"
	"tycoon/internal/session"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
	muted       = color.New(color.FgHiBlack)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptConfirm(label string) (bool, error) {
	fmt.Printf("%s [y/N]: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func formatMoney(d decimal.Decimal) string {
	return economy.Format(d, 2)
}

func renderNotices(resp session.Response) {
	if resp.Notice != "" {
		printWarn(resp.Notice)
	}
	if r := resp.Offline; r != nil && r.EffectiveMs > 0 && r.Earnings.IsPositive() {
		msg := fmt.Sprintf("While you were away (%s) your managers earned $%s.",
			time.Duration(r.EffectiveMs)*time.Millisecond, formatMoney(r.Earnings))
		if r.Capped {
			msg += fmt.Sprintf(" Progress was capped; you were gone %s.", time.Duration(r.ElapsedMs)*time.Millisecond)
		}
		printSuccess(msg)
	}
}

func renderOutcome(verb string, resp session.Response) {
	r := resp.Result
	switch {
	case r == nil:
		printSuccess(verb + ".")
	case !r.Success:
		printWarn(fmt.Sprintf("Not done: %s.", r.Reason))
	case r.Quantity > 0:
		printSuccess(fmt.Sprintf("%s %d for $%s.", verb, r.Quantity, formatMoney(r.Spent)))
	case r.Gained.IsPositive():
		printSuccess(fmt.Sprintf("%s for %s prestige points.", verb, formatMoney(r.Gained)))
	default:
		printSuccess(fmt.Sprintf("%s for $%s.", verb, formatMoney(r.Spent)))
	}
	if resp.Snapshot != nil {
		fmt.Printf("Balance: %s\n", colorizeMoney(resp.Snapshot.State.Balance))
	}
}

func renderSnapshot(slot string, snap game.Snapshot) {
	st := snap.State
	accent.Printf("\n== TYCOON (slot %s) ==\n", slot)
	fmt.Printf("Balance:          %s\n", colorizeMoney(st.Balance))
	fmt.Printf("Income:           $%s/s\n", formatMoney(snap.IncomePerSecond))
	fmt.Printf("Earned this run:  $%s\n", formatMoney(st.TotalEarned))
	fmt.Printf("Prestige:         %s points, x%s profits (next reset +%s)\n",
		formatMoney(st.Prestige.Points), st.Prestige.Multiplier.StringFixed(2), formatMoney(snap.Prestige.Gain))
	if snap.Prestige.NextTier != "" {
		fmt.Printf("Next tier:        %s at %s points\n", snap.Prestige.NextTier, formatMoney(snap.Prestige.NextThreshold))
	}

	fmt.Println()
	accent.Println("Businesses")
	fmt.Printf("%-18s %-20s %6s %-10s %9s %12s %14s\n", "ID", "NAME", "OWNED", "STATUS", "PROGRESS", "CYCLE", "NEXT COST")
	for _, b := range snap.Businesses {
		if !b.Unlocked {
			muted.Printf("%-18s %-20s %6s %-10s %9s %12s %14s\n", b.ID, truncate(b.Name, 20), "-", "locked", "", "", "$"+formatMoney(b.NextCost))
			continue
		}
		cost := "$" + formatMoney(b.NextCost)
		if b.Affordable {
			cost = success.Sprint(cost)
		}
		fmt.Printf("%-18s %-20s %6d %-10s %8.0f%% %12s %14s\n",
			b.ID, truncate(b.Name, 20), b.Amount, businessStatus(b), b.Progress*100,
			time.Duration(b.DurationMs)*time.Millisecond, cost)
	}

	var upgrades []game.UpgradeView
	for _, u := range snap.Upgrades {
		if u.Available && !u.Purchased {
			upgrades = append(upgrades, u)
		}
	}
	fmt.Println()
	accent.Println("Upgrades available")
	if len(upgrades) == 0 {
		printInfo("None yet.")
	}
	for _, u := range upgrades {
		fmt.Printf("  %-20s %-24s -> %-16s $%s\n", u.ID, truncate(u.Name, 24), u.Target, formatMoney(u.Cost))
	}

	var managers []game.ManagerView
	for _, m := range snap.Managers {
		if m.Available && !m.Hired {
			managers = append(managers, m)
		}
	}
	fmt.Println()
	accent.Println("Managers for hire")
	if len(managers) == 0 {
		printInfo("None yet.")
	}
	for _, m := range managers {
		fmt.Printf("  %-26s -> %-16s $%s\n", m.ID, m.BusinessID, formatMoney(m.Cost))
	}
	fmt.Println()
}

func renderProjection(away, limit time.Duration, p economy.Projection) {
	accent.Printf("\n== OFFLINE PREVIEW (%s) ==\n", away)
	if away > limit {
		printWarn(fmt.Sprintf("Only the first %s away count.", limit))
	}
	if len(p.Cycles) == 0 {
		printInfo("No automated businesses. Hire a manager to earn while away.")
		return
	}
	for _, id := range slices.Sorted(maps.Keys(p.Cycles)) {
		fmt.Printf("  %-18s %8d cycles\n", id, p.Cycles[id])
	}
	fmt.Printf("Projected earnings: %s\n\n", colorizeMoney(p.Earnings))
}

func businessStatus(b game.BusinessView) string {
	switch {
	case b.Automated:
		return "managed"
	case b.Running:
		return "running"
	case b.Amount == 0:
		return "unowned"
	default:
		return "idle"
	}
}

func colorizeMoney(d decimal.Decimal) string {
	text := "$" + formatMoney(d)
	switch {
	case d.IsPositive():
		return success.Sprint(text)
	case d.IsNegative():
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
