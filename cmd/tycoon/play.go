package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tycoon/internal/economy"
	"tycoon/internal/game"
	"tycoon/internal/session"
)

func newPlayCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Play interactively in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
				return errors.New("play needs an interactive terminal")
			}
			return a.withSession(cmd.Context(), func(s *session.Session, first session.Response) error {
				m := newPlayModel(cmd.Context(), s, first, a.cfg.Session.TickEvery)
				_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
				if errors.Is(err, tea.ErrProgramKilled) {
					return nil
				}
				return err
			})
		},
	}
}

type playKeys struct {
	Up       key.Binding
	Down     key.Binding
	Trigger  key.Binding
	Buy      key.Binding
	Bulk     key.Binding
	Hire     key.Binding
	Upgrade  key.Binding
	Prestige key.Binding
	Save     key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func (k playKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Trigger, k.Buy, k.Bulk, k.Hire, k.Upgrade, k.Help, k.Quit}
}

func (k playKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Trigger},
		{k.Buy, k.Bulk, k.Hire, k.Upgrade},
		{k.Prestige, k.Save, k.Help, k.Quit},
	}
}

var keys = playKeys{
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Trigger:  key.NewBinding(key.WithKeys(" ", "enter"), key.WithHelp("space", "run cycle")),
	Buy:      key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "buy")),
	Bulk:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "x1/x10/x100/max")),
	Hire:     key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "hire manager")),
	Upgrade:  key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "buy upgrade")),
	Prestige: key.NewBinding(key.WithKeys("P"), key.WithHelp("P", "prestige")),
	Save:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "save")),
	Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

var bulkModes = []string{"1", "10", "100", "max"}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	moneyStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	lockedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	panelStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

type tickMsg time.Time

type respMsg struct {
	resp session.Response
	err  error
}

type playModel struct {
	ctx   context.Context
	sess  *session.Session
	every time.Duration

	snap    game.Snapshot
	cursor  int
	bulk    int
	status  string
	failure bool
	pending bool

	bar  progress.Model
	help help.Model
}

func newPlayModel(ctx context.Context, s *session.Session, first session.Response, every time.Duration) playModel {
	if every <= 0 {
		every = 200 * time.Millisecond
	}
	m := playModel{
		ctx:   ctx,
		sess:  s,
		every: every,
		snap:  s.Latest(),
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(24), progress.WithoutPercentage()),
		help:  help.New(),
	}
	m.status = first.Notice
	if r := first.Offline; r != nil && r.Earnings.IsPositive() {
		m.status = fmt.Sprintf("Welcome back! Managers earned $%s while you were away.", formatMoney(r.Earnings))
	}
	return m
}

func (m playModel) Init() tea.Cmd {
	return m.tick()
}

func (m playModel) tick() tea.Cmd {
	return tea.Tick(m.every, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m playModel) do(cmd session.Command) tea.Cmd {
	return func() tea.Msg {
		resp, err := m.sess.Do(m.ctx, cmd)
		return respMsg{resp: resp, err: err}
	}
}

func (m playModel) selected() (game.BusinessView, bool) {
	if m.cursor < 0 || m.cursor >= len(m.snap.Businesses) {
		return game.BusinessView{}, false
	}
	return m.snap.Businesses[m.cursor], true
}

func (m playModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		if m.pending {
			return m, m.tick()
		}
		return m, tea.Batch(m.do(session.Command{Type: session.TypeTick}), m.tick())

	case respMsg:
		if msg.err != nil {
			return m, tea.Quit
		}
		resp := msg.resp
		if resp.Snapshot != nil {
			m.snap = *resp.Snapshot
		}
		if resp.Type != session.TypeTick {
			m.pending = false
			m.status, m.failure = describe(resp)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m playModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	b, ok := m.selected()
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.snap.Businesses)-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.Bulk):
		m.bulk = (m.bulk + 1) % len(bulkModes)
	case key.Matches(msg, keys.Trigger) && ok:
		return m.send(session.Command{Type: session.TypeTrigger, BusinessID: b.ID})
	case key.Matches(msg, keys.Buy) && ok:
		return m.send(session.Command{Type: session.TypeBuy, BusinessID: b.ID, Bulk: bulkModes[m.bulk]})
	case key.Matches(msg, keys.Hire) && ok:
		for _, mg := range m.snap.Managers {
			if mg.BusinessID == b.ID {
				return m.send(session.Command{Type: session.TypeManager, ManagerID: mg.ID})
			}
		}
		m.status, m.failure = "No manager exists for "+b.Name+".", true
	case key.Matches(msg, keys.Upgrade) && ok:
		if u, found := m.nextUpgrade(b.ID); found {
			return m.send(session.Command{Type: session.TypeUpgrade, UpgradeID: u.ID})
		}
		m.status, m.failure = "No upgrade left for "+b.Name+".", true
	case key.Matches(msg, keys.Prestige):
		return m.send(session.Command{Type: session.TypePrestige})
	case key.Matches(msg, keys.Save):
		return m.send(session.Command{Type: session.TypeSave})
	}
	return m, nil
}

func (m playModel) send(cmd session.Command) (tea.Model, tea.Cmd) {
	m.pending = true
	return m, m.do(cmd)
}

// nextUpgrade picks the cheapest unpurchased upgrade aimed at the business,
// falling back to global ones.
func (m playModel) nextUpgrade(businessID string) (game.UpgradeView, bool) {
	var best game.UpgradeView
	found := false
	for _, u := range m.snap.Upgrades {
		if u.Purchased || (u.Target != businessID && u.Target != economy.GlobalTarget) {
			continue
		}
		if !found || u.Cost.LessThan(best.Cost) {
			best, found = u, true
		}
	}
	return best, found
}

func describe(resp session.Response) (string, bool) {
	if resp.Error != "" {
		return resp.Error, true
	}
	if r := resp.Result; r != nil {
		if !r.Success {
			return "Not done: " + string(r.Reason), true
		}
		if r.Gained.IsPositive() {
			return fmt.Sprintf("Prestiged for %s points.", formatMoney(r.Gained)), false
		}
		if r.Quantity > 0 {
			return fmt.Sprintf("Bought %d for $%s.", r.Quantity, formatMoney(r.Spent)), false
		}
		return fmt.Sprintf("Done for $%s.", formatMoney(r.Spent)), false
	}
	switch resp.Type {
	case session.TypeSave:
		return "Saved.", false
	case session.TypeTrigger:
		return "Cycle started.", false
	}
	return "", false
}

func (m playModel) View() string {
	var sb strings.Builder
	st := m.snap.State
	sb.WriteString(titleStyle.Render("TYCOON"))
	sb.WriteString("  ")
	sb.WriteString(moneyStyle.Render("$" + formatMoney(st.Balance)))
	sb.WriteString(fmt.Sprintf("  +$%s/s", formatMoney(m.snap.IncomePerSecond)))
	sb.WriteString(fmt.Sprintf("  prestige x%s (+%s on reset)", st.Prestige.Multiplier.StringFixed(2), formatMoney(m.snap.Prestige.Gain)))
	sb.WriteString("\n\n")

	var rows []string
	for i, b := range m.snap.Businesses {
		rows = append(rows, m.businessRow(i, b))
	}
	sb.WriteString(panelStyle.Render(strings.Join(rows, "\n")))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Buying x%s\n", bulkModes[m.bulk]))
	if m.status != "" {
		style := statusStyle
		if m.failure {
			style = errorStyle
		}
		sb.WriteString(style.Render(m.status))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(m.help.View(keys))
	return sb.String()
}

func (m playModel) businessRow(i int, b game.BusinessView) string {
	name := fmt.Sprintf("%-20s", truncate(b.Name, 20))
	if !b.Unlocked {
		return lockedStyle.Render(fmt.Sprintf("  %s locked          next $%s", name, formatMoney(b.NextCost)))
	}
	if i == m.cursor {
		name = selectedStyle.Render(name)
	}
	marker := "  "
	if i == m.cursor {
		marker = "> "
	}
	return fmt.Sprintf("%s%s %5d %s %-8s $%s/cycle  next $%s",
		marker, name, b.Amount, m.bar.ViewAs(b.Progress), businessStatus(b),
		formatMoney(b.IncomePerCycle), formatMoney(b.NextCost))
}
