// Package tui is the terminal front end. Screens are thin: they forward
// input to the flow controllers and render the flow stores.
package tui

import (
	"context"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nexd/nexd/internal/collab"
	"github.com/nexd/nexd/internal/flow"
	"github.com/nexd/nexd/internal/loop"
)

// Screen is one entry of the navigation stack. Update reports true when
// the screen wants to be popped.
type Screen interface {
	Title() string
	Scope() string
	Update(a *App, msg tea.Msg) (tea.Cmd, bool)
	View(width, height int) string
}

// shower is implemented by screens that bind controllers while visible.
type shower interface {
	Show(a *App)
	Hide()
}

// closer is implemented by screens that own a flow.
type closer interface {
	Close()
}

type ScreenStack struct {
	items []Screen
}

func (s *ScreenStack) Push(screen Screen) {
	if screen == nil {
		return
	}
	s.items = append(s.items, screen)
}

func (s *ScreenStack) Pop() Screen {
	if len(s.items) == 0 {
		return nil
	}
	last := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return last
}

func (s ScreenStack) Top() Screen {
	if len(s.items) == 0 {
		return nil
	}
	return s.items[len(s.items)-1]
}

func (s ScreenStack) Len() int { return len(s.items) }

// Role selects the screen the app opens on.
type Role string

const (
	RoleNone   Role = ""
	RoleHelper Role = "helper"
	RoleSeeker Role = "seeker"
)

type changedMsg struct{}

type statusMsg struct {
	text  string
	isErr bool
}

func statusCmd(text string) tea.Cmd {
	return func() tea.Msg { return statusMsg{text: text} }
}

// errorCmd reports err in user terms. Cancellation is silent.
func errorCmd(err error) tea.Cmd {
	return func() tea.Msg {
		text := flow.UserMessage(err)
		if text == "" {
			return nil
		}
		return statusMsg{text: text, isErr: true}
	}
}

// App is the root model. It owns the control loop the flows run on.
type App struct {
	ctx      context.Context
	loop     *loop.Loop
	services collab.Services
	opts     flow.Options
	logger   *slog.Logger
	keys     *KeyRegistry

	screens ScreenStack
	// changes wakes the tea program when any bound store changed. Bursts
	// collapse into one redraw.
	changes chan struct{}

	status    string
	statusErr bool
	width     int
	height    int
	quitting  bool
}

// New returns the root model. l must be running.
func New(ctx context.Context, l *loop.Loop, services collab.Services, opts flow.Options, role Role) *App {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	a := &App{
		ctx:      ctx,
		loop:     l,
		services: services,
		opts:     opts,
		logger:   opts.Logger,
		keys:     NewKeyRegistry(defaultBindings()),
		changes:  make(chan struct{}, 1),
		status:   "Ready",
		width:    100,
		height:   32,
	}
	a.push(newHomeScreen())
	switch role {
	case RoleHelper:
		a.push(newHelperScreen(a))
	case RoleSeeker:
		a.push(newItemListScreen(a))
	}
	return a
}

// Run starts the terminal program and blocks until the user quits.
func Run(ctx context.Context, l *loop.Loop, services collab.Services, opts flow.Options, role Role) error {
	a := New(ctx, l, services, opts, role)
	defer a.closeAll()
	_, err := tea.NewProgram(a, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

// notify is the observer handed to every controller. It runs on the loop
// and never blocks.
func (a *App) notify() {
	select {
	case a.changes <- struct{}{}:
	default:
	}
}

func (a *App) waitForChange() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-a.changes:
			return changedMsg{}
		case <-a.ctx.Done():
			return nil
		}
	}
}

func (a *App) Init() tea.Cmd {
	return a.waitForChange()
}

func (a *App) push(s Screen) {
	if top, ok := a.screens.Top().(shower); ok {
		top.Hide()
	}
	a.screens.Push(s)
	if sh, ok := s.(shower); ok {
		sh.Show(a)
	}
}

func (a *App) pop() {
	s := a.screens.Pop()
	if sh, ok := s.(shower); ok {
		sh.Hide()
	}
	if c, ok := s.(closer); ok {
		c.Close()
	}
	if top, ok := a.screens.Top().(shower); ok {
		top.Show(a)
	}
}

func (a *App) closeAll() {
	for a.screens.Len() > 0 {
		a.pop()
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = m.Width, m.Height
		return a, nil
	case changedMsg:
		// Screens re-read the stores on render; pass the tick on for those
		// that mirror store values into inputs.
		if top := a.screens.Top(); top != nil {
			cmd, _ := top.Update(a, m)
			return a, tea.Batch(cmd, a.waitForChange())
		}
		return a, a.waitForChange()
	case statusMsg:
		a.status, a.statusErr = m.text, m.isErr
		return a, nil
	case tea.KeyMsg:
		if a.keys.IsAction(m, actQuit, a.scope()) {
			a.quitting = true
			return a, tea.Quit
		}
	}

	top := a.screens.Top()
	if top == nil {
		a.quitting = true
		return a, tea.Quit
	}
	cmd, done := top.Update(a, msg)
	if done {
		a.pop()
		if a.screens.Len() == 0 {
			a.quitting = true
			return a, tea.Batch(cmd, tea.Quit)
		}
	}
	return a, cmd
}

func (a *App) scope() string {
	if top := a.screens.Top(); top != nil {
		return top.Scope()
	}
	return scopeHome
}

func (a *App) View() string {
	if a.quitting {
		return "Goodbye\n"
	}
	header := renderHeader(a)
	status := renderStatusBar(a)
	footer := renderFooter(a)
	bodyHeight := max(0, a.height-lipgloss.Height(header)-lipgloss.Height(status)-lipgloss.Height(footer))

	var body string
	if top := a.screens.Top(); top != nil && bodyHeight > 0 {
		body = top.View(max(1, a.width-2), bodyHeight)
	}
	body = fitHeight(body, bodyHeight)
	view := strings.Join([]string{header, status, body, footer}, "\n")
	return appStyle.Width(max(1, a.width)).MaxWidth(max(1, a.width)).Render(fitHeight(view, max(1, a.height)))
}
