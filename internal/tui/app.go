// internal/tui/app.go
//
// This is the terminal view of a negotiation run. It uses bubbletea, which
// follows The Elm Architecture:
//
// 1. Model: the run as observed so far (RFQ, supplier threads, scores)
// 2. Update: folds engine events and key presses into the model
// 3. View: renders the model to a string
//
// The engine runs in a bubbletea command. Its events and state changes are
// pushed onto a channel that the program drains one message at a time.

package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/KaioH3/negotiation-agent/internal/catalog"
	"github.com/KaioH3/negotiation-agent/internal/negotiation"
	"github.com/KaioH3/negotiation-agent/internal/quote"
	"github.com/KaioH3/negotiation-agent/internal/responder"
)

const updateBuffer = 256

var (
	accent      = lipgloss.Color("#5B8DEF")
	muted       = lipgloss.Color("#888888")
	borderColor = lipgloss.Color("#444444")

	labelStyleDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyleRunning = lipgloss.NewStyle().Foreground(accent).Bold(true)
	labelStyleBuyer   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	detailTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
)

// Runner starts a negotiation. *negotiation.Engine satisfies it.
type Runner interface {
	Run(ctx context.Context, req negotiation.Request, sink negotiation.Emitter) (*negotiation.Result, error)
}

// LogSource feeds the log panel. *logging.Logger satisfies it.
type LogSource interface {
	Tail(maxLines int) []string
	Path() string
}

var stateOrder = []negotiation.State{
	negotiation.StateRFQEmitted,
	negotiation.StateRound1InFlight,
	negotiation.StateRound1Complete,
	negotiation.StateReflecting,
	negotiation.StateRound2InFlight,
	negotiation.StateRound2Complete,
	negotiation.StateScored,
	negotiation.StateDecided,
	negotiation.StateDone,
}

var stateLabels = map[negotiation.State]string{
	negotiation.StateInitiated:      "Starting",
	negotiation.StateRFQEmitted:     "RFQ sent",
	negotiation.StateRound1InFlight: "Round 1 in flight",
	negotiation.StateRound1Complete: "Round 1 complete",
	negotiation.StateReflecting:     "Reflecting on round 1",
	negotiation.StateRound2InFlight: "Round 2 in flight",
	negotiation.StateRound2Complete: "Round 2 complete",
	negotiation.StateScored:         "Scored",
	negotiation.StateDecided:        "Decided",
	negotiation.StateDone:           "Done",
	negotiation.StateFailed:         "Failed",
}

type focusArea int

const (
	focusSuppliers focusArea = iota
	focusDetail
)

type detailMode int

const (
	detailConversation detailMode = iota
	detailMemo
	detailDecision
)

type eventMsg struct {
	event negotiation.Event
}

type stateMsg struct {
	state negotiation.State
}

type runFinishedMsg struct {
	result *negotiation.Result
	err    error
}

// supplierPanel is one supplier's thread as seen by the view. It doubles as
// the list item of the supplier menu.
type supplierPanel struct {
	profile  catalog.SupplierProfile
	messages []negotiation.Message
	quote    *quote.Quote
	round    int
	final    bool
	failed   string
}

func (p *supplierPanel) Title() string       { return p.profile.Name }
func (p *supplierPanel) FilterValue() string { return p.profile.Name }

func (p *supplierPanel) Description() string {
	switch {
	case p.failed != "":
		return "failed: " + p.failed
	case p.quote != nil:
		stage := fmt.Sprintf("round %d", p.round)
		if p.final {
			stage = "final"
		}
		return fmt.Sprintf("%s · %s · %d days", stage, quote.WholeDollars(p.quote.TotalValue), p.quote.LeadTimeDays)
	case len(p.messages) > 0:
		return fmt.Sprintf("%d message(s), no quote yet", len(p.messages))
	}
	return "waiting for RFQ"
}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithRunner makes Init start a run for req.
func WithRunner(r Runner, req negotiation.Request) AppOption {
	return func(a *App) {
		a.runner = r
		a.request = req
	}
}

// WithLog shows the tail of the run log under the board.
func WithLog(src LogSource) AppOption {
	return func(a *App) {
		a.log = src
	}
}

// App is the bubbletea model for one run.
type App struct {
	runner  Runner
	request negotiation.Request
	log     LogSource
	ctx     context.Context
	cancel  context.CancelFunc
	updates chan tea.Msg

	runID      string
	state      negotiation.State
	rfq        *negotiation.RFQ
	panels     []*supplierPanel
	byID       map[string]*supplierPanel
	reflection string
	scores     map[string]negotiation.Score
	winner     string
	reasoning  string
	audit      *negotiation.Audit
	result     *negotiation.Result
	err        error
	finished   bool

	suppliers list.Model
	detail    viewport.Model
	spinner   spinner.Model
	focus     focusArea
	mode      detailMode
	statusMsg string

	width  int
	height int
}

// NewApp creates the view for the catalog's suppliers.
func NewApp(cat *catalog.Catalog, opts ...AppOption) *App {
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		ctx:     ctx,
		cancel:  cancel,
		updates: make(chan tea.Msg, updateBuffer),
		state:   negotiation.StateInitiated,
		byID:    map[string]*supplierPanel{},
		detail:  viewport.New(60, 16),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(labelStyleRunning)),
	}
	var items []list.Item
	for _, profile := range cat.Suppliers() {
		panel := &supplierPanel{profile: profile}
		a.panels = append(a.panels, panel)
		a.byID[profile.ID] = panel
		items = append(items, panel)
	}
	a.suppliers = list.New(items, list.NewDefaultDelegate(), 0, 0)
	a.suppliers.Title = "Suppliers"
	a.suppliers.SetShowStatusBar(false)
	a.suppliers.SetFilteringEnabled(false)
	a.suppliers.SetShowHelp(false)
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.statusMsg = "Tab → switch focus    c/m/d → conversation, memo, decision    q → quit"
	a.refreshDetail()
	return a
}

// Sink returns the emitter the engine should stream the run into.
func (a *App) Sink() negotiation.Emitter {
	return negotiation.EmitterFunc(func(ev negotiation.Event) {
		a.push(eventMsg{event: ev})
	})
}

// StateHook reports engine state changes to the view.
func (a *App) StateHook() negotiation.StateHook {
	return func(_ string, s negotiation.State) {
		a.push(stateMsg{state: s})
	}
}

// Result returns the finished run, or nil while it is in flight or failed.
func (a *App) Result() (*negotiation.Result, error) {
	return a.result, a.err
}

func (a *App) push(msg tea.Msg) {
	select {
	case a.updates <- msg:
	case <-a.ctx.Done():
	}
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.spinner.Tick, a.waitForUpdate()}
	if a.runner != nil {
		cmds = append(cmds, a.startRun())
	}
	return tea.Batch(cmds...)
}

func (a *App) startRun() tea.Cmd {
	return func() tea.Msg {
		result, err := a.runner.Run(a.ctx, a.request, a.Sink())
		return runFinishedMsg{result: result, err: err}
	}
}

func (a *App) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-a.updates:
			return msg
		case <-a.ctx.Done():
			return nil
		}
	}
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.resize()
		return a, nil

	case spinner.TickMsg:
		if a.finished {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case eventMsg:
		a.applyEvent(msg.event)
		return a, a.waitForUpdate()

	case stateMsg:
		a.state = msg.state
		return a, a.waitForUpdate()

	case runFinishedMsg:
		a.finish(msg.result, msg.err)
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			a.cancel()
			return a, tea.Quit
		case "tab":
			if a.focus == focusSuppliers {
				a.focus = focusDetail
			} else {
				a.focus = focusSuppliers
			}
			return a, nil
		case "c":
			a.setMode(detailConversation)
			return a, nil
		case "m":
			a.setMode(detailMemo)
			return a, nil
		case "d":
			a.setMode(detailDecision)
			return a, nil
		}
	}

	var cmd tea.Cmd
	if a.focus == focusDetail {
		a.detail, cmd = a.detail.Update(msg)
		return a, cmd
	}
	before := a.suppliers.Index()
	a.suppliers, cmd = a.suppliers.Update(msg)
	if a.suppliers.Index() != before {
		a.mode = detailConversation
		a.refreshDetail()
	}
	return a, cmd
}

func (a *App) applyEvent(ev negotiation.Event) {
	if ev.RunID != "" {
		a.runID = ev.RunID
	}
	panel := a.byID[ev.SupplierID]
	switch ev.Type {
	case negotiation.EventRFQReady:
		a.rfq = ev.RFQ
	case negotiation.EventMessage:
		if panel != nil && ev.Message != nil {
			panel.messages = append(panel.messages, *ev.Message)
		}
	case negotiation.EventQuoteParsed:
		if panel != nil {
			panel.quote = ev.Quote
			panel.round = ev.Round
			panel.final = ev.Final
		}
	case negotiation.EventSupplierFailed:
		if panel != nil {
			panel.failed = ev.Error
		}
	case negotiation.EventReflection:
		a.reflection = ev.Content
	case negotiation.EventScores:
		a.scores = ev.Scores
	case negotiation.EventDecision:
		a.winner = ev.Winner
		a.reasoning = ev.Reasoning
		a.mode = detailDecision
	case negotiation.EventAudit:
		a.audit = ev.Audit
	case negotiation.EventDone:
		a.statusMsg = fmt.Sprintf("Run complete · %s selected · q → quit", a.supplierName(ev.Winner))
	case negotiation.EventError:
		a.err = errors.New(ev.Error)
		a.statusMsg = "Run failed: " + ev.Error
	}
	a.refreshDetail()
}

func (a *App) finish(result *negotiation.Result, err error) {
	a.finished = true
	if err != nil {
		a.err = err
		a.state = negotiation.StateFailed
		a.statusMsg = "Run failed: " + err.Error()
		a.refreshDetail()
		return
	}
	a.result = result
	if result != nil {
		a.runID = result.RunID
		a.reflection = result.Reflection
		a.scores = result.Scores
		a.winner = result.Winner
		a.reasoning = result.Reasoning
		a.audit = result.Audit
		for id, reason := range result.Failures {
			if panel := a.byID[id]; panel != nil {
				panel.failed = reason
			}
		}
		a.statusMsg = fmt.Sprintf("Run complete · %s selected · q → quit", a.supplierName(result.Winner))
	}
	a.state = negotiation.StateDone
	a.mode = detailDecision
	a.refreshDetail()
}

func (a *App) setMode(mode detailMode) {
	a.mode = mode
	a.refreshDetail()
}

func (a *App) resize() {
	width := max(40, a.width)
	listWidth := max(28, width/3)
	detailWidth := max(20, width-listWidth-8)
	bodyHeight := max(8, a.height-18)
	a.suppliers.SetSize(listWidth, bodyHeight)
	a.detail.Width = detailWidth
	a.detail.Height = bodyHeight
	a.refreshDetail()
}

func (a *App) selected() *supplierPanel {
	idx := a.suppliers.Index()
	if idx < 0 || idx >= len(a.panels) {
		return nil
	}
	return a.panels[idx]
}

func (a *App) refreshDetail() {
	var content string
	switch a.mode {
	case detailMemo:
		content = a.renderMemo()
	case detailDecision:
		content = a.renderDecision()
	default:
		content = a.renderConversation(a.selected())
	}
	a.detail.SetContent(lipgloss.NewStyle().Width(max(20, a.detail.Width)).Render(content))
}

// View renders the current state to a string.
func (a *App) View() string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("⬡ NEGOTIATOR")
	listBox := a.panelStyle(a.focus == focusSuppliers).Render(a.suppliers.View())
	detailBox := a.panelStyle(a.focus == focusDetail).Render(a.detail.View())
	sections := []string{
		header,
		a.renderPhasePanel(),
		lipgloss.JoinHorizontal(lipgloss.Top, listBox, detailBox),
	}
	if scores := a.renderScores(); scores != "" {
		sections = append(sections, scores)
	}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	footer := lipgloss.NewStyle().
		Foreground(muted).
		MarginTop(1).
		Render(a.statusMsg)
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) panelStyle(focused bool) lipgloss.Style {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(0, 1)
	if focused {
		style = style.BorderForeground(accent)
	}
	return style
}

func (a *App) renderPhasePanel() string {
	label := stateLabels[a.state]
	if label == "" {
		label = string(a.state)
	}
	var phase string
	switch {
	case a.state == negotiation.StateFailed || (a.finished && a.err != nil):
		phase = labelStyleFailed.Render("✗ " + label)
	case a.finished || a.state == negotiation.StateDone:
		phase = labelStyleDone.Render("✓ " + label)
	default:
		pos, total := statePosition(a.state)
		phase = fmt.Sprintf("%s %s (%d/%d)", a.spinner.View(), labelStyleRunning.Render(label), pos, total)
	}
	lines := []string{"Phase: " + phase}
	if a.runID != "" {
		lines = append(lines, detailTextStyle.Render("Run "+a.runID))
	}
	if a.rfq != nil {
		lines = append(lines, fmt.Sprintf("RFQ: %d SKU(s) · %s units · est. %s",
			len(a.rfq.Products), quote.Units(totalUnits(a.rfq)), quote.WholeDollars(a.rfq.EstimatedValue)))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderConversation(panel *supplierPanel) string {
	if panel == nil {
		return "No suppliers in catalog."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s · quality %.1f/5 · %s\n\n", panel.profile.Name, panel.profile.Quality, panel.profile.LeadTimeRange)
	if len(panel.messages) == 0 {
		b.WriteString(detailTextStyle.Render("Waiting for the first reply..."))
	}
	for _, msg := range panel.messages {
		label := labelStyleRunning.Render(fmt.Sprintf("%s · round %d", strings.ToUpper(panel.profile.Name), msg.Round))
		if msg.From == responder.RoleBuyer {
			label = labelStyleBuyer.Render(fmt.Sprintf("BUYER · round %d", msg.Round))
		}
		fmt.Fprintf(&b, "%s\n%s\n\n", label, strings.TrimSpace(msg.Content))
	}
	if panel.failed != "" {
		b.WriteString(labelStyleFailed.Render("⚠ " + panel.failed))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *App) renderMemo() string {
	if strings.TrimSpace(a.reflection) == "" {
		return detailTextStyle.Render("No reflection memo for this run yet.")
	}
	return labelStyleBuyer.Render("STRATEGIC MEMO") + "\n" + strings.TrimSpace(a.reflection)
}

func (a *App) renderDecision() string {
	if a.winner == "" {
		if a.err != nil {
			return labelStyleFailed.Render("Run failed: " + a.err.Error())
		}
		return detailTextStyle.Render("No decision yet.")
	}
	lines := []string{
		labelStyleDone.Render("SELECTED: " + a.supplierName(a.winner)),
		"",
		strings.TrimSpace(a.reasoning),
	}
	if a.audit != nil {
		verdict := labelStyleDone.Render(a.audit.Verdict)
		if !a.audit.Approved() {
			verdict = labelStyleFailed.Render(a.audit.Verdict)
		}
		confidence := "n/a"
		if a.audit.Confidence >= 0 {
			confidence = fmt.Sprintf("%d%%", a.audit.Confidence)
		}
		lines = append(lines, "", fmt.Sprintf("Audit: %s · confidence %s", verdict, confidence))
		if a.audit.Summary != "" {
			lines = append(lines, a.audit.Summary)
		}
		for _, flag := range a.audit.RiskFlags {
			lines = append(lines, "  - "+flag)
		}
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderScores() string {
	if len(a.scores) == 0 {
		return ""
	}
	ids := make([]string, 0, len(a.scores))
	for id := range a.scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return a.scores[ids[i]].Total > a.scores[ids[j]].Total ||
			(a.scores[ids[i]].Total == a.scores[ids[j]].Total && ids[i] < ids[j])
	})
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		s := a.scores[id]
		name := a.supplierName(id)
		if id == a.winner {
			name = "★ " + name
		}
		rows = append(rows, []string{
			name,
			fmt.Sprintf("%.1f", s.Price),
			fmt.Sprintf("%.1f", s.Quality),
			fmt.Sprintf("%.1f", s.LeadTime),
			fmt.Sprintf("%.1f", s.Payment),
			fmt.Sprintf("%.1f", s.Total),
		})
	}
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		Headers("Supplier", "Price", "Quality", "Lead time", "Payment", "Overall").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render()
}

func (a *App) renderLogPanel() string {
	if a.log == nil {
		return ""
	}
	lines := a.log.Tail(6)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.log.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(accent).
		Render(fmt.Sprintf("LOG · %s", fileName))
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
}

func (a *App) supplierName(id string) string {
	if panel := a.byID[id]; panel != nil {
		return panel.profile.Name
	}
	return id
}

func statePosition(s negotiation.State) (int, int) {
	for i, state := range stateOrder {
		if s == state {
			return i + 1, len(stateOrder)
		}
	}
	return 0, len(stateOrder)
}

func totalUnits(rfq *negotiation.RFQ) int {
	total := 0
	for _, line := range rfq.Products {
		total += line.Quantity
	}
	return total
}
