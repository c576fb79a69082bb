package viz

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/ipcsim/internal/experiment"
	"github.com/san-kum/ipcsim/internal/world"
)

const (
	stateMenu = iota
	stateLive
)

// App lists the registered presets and opens a live monitor on the one
// picked.
type App struct {
	ctx      context.Context
	registry *experiment.Registry
	engine   *world.Engine
	base     experiment.Config
	opts     Options
	presets  []experiment.Preset
	state    int
	cursor   int
	err      error
	exp      *experiment.Experiment
	live     Model
}

// NewApp builds the picker. base supplies everything but the preset name.
func NewApp(ctx context.Context, registry *experiment.Registry, engine *world.Engine, base experiment.Config, opts Options) *App {
	a := &App{ctx: ctx, registry: registry, engine: engine, base: base, opts: opts}
	for _, name := range registry.List() {
		if p, err := registry.Get(name); err == nil {
			a.presets = append(a.presets, p)
		}
	}
	return a
}

func (a *App) Init() tea.Cmd { return nil }

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if a.state == stateLive {
		next, cmd := a.live.Update(msg)
		a.live = next.(Model)
		return a, cmd
	}
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return a, nil
	}
	switch key.String() {
	case "q", "ctrl+c":
		return a, tea.Quit
	case "up", "k":
		if a.cursor > 0 {
			a.cursor--
		}
	case "down", "j":
		if a.cursor < len(a.presets)-1 {
			a.cursor++
		}
	case "enter", " ":
		if len(a.presets) > 0 {
			return a, a.open(a.presets[a.cursor])
		}
	}
	return a, nil
}

func (a *App) open(p experiment.Preset) tea.Cmd {
	cfg := a.base
	cfg.Preset = p.Name
	exp := experiment.New(cfg, a.registry)
	if err := exp.Setup(a.engine); err != nil {
		a.err = err
		return nil
	}
	opts := a.opts
	opts.Title = p.Name
	if opts.Frames == 0 {
		opts.Frames = exp.Frames()
	}
	a.exp, a.err = exp, nil
	a.live = NewModel(a.ctx, exp.World(), exp.Scene(), opts)
	a.state = stateLive
	return a.live.Init()
}

// Close releases the world of the opened preset, if any.
func (a *App) Close() error {
	if a.exp == nil {
		return nil
	}
	return a.exp.Close()
}

func (a *App) View() string {
	if a.state == stateLive {
		return a.live.View()
	}
	t := GetTheme(a.opts.Theme)
	head := lipgloss.NewStyle().Foreground(t.Primary).Bold(true)
	sub := lipgloss.NewStyle().Foreground(t.Muted)
	sel := lipgloss.NewStyle().Foreground(t.Text).Bold(true)
	desc := lipgloss.NewStyle().Foreground(t.Accent)

	var b strings.Builder
	b.WriteString("\n\n    " + head.Render("IPCSIM") + "\n    " + sub.Render("incremental potential contact") + "\n    " + sub.Render("─────────────────────────────") + "\n\n")
	for i, p := range a.presets {
		d := p.Description
		if len(d) > 48 {
			d = d[:45] + "..."
		}
		if i == a.cursor {
			b.WriteString(fmt.Sprintf("    %s %s  %s\n", head.Render("▸"), sel.Render(fmt.Sprintf("%-16s", p.Name)), desc.Render(d)))
		} else {
			b.WriteString(fmt.Sprintf("      %s  %s\n", sub.Render(fmt.Sprintf("%-16s", p.Name)), sub.Render(d)))
		}
	}
	if a.err != nil {
		b.WriteString("\n    " + lipgloss.NewStyle().Foreground(t.Error).Render(a.err.Error()) + "\n")
	}
	b.WriteString("\n    " + sub.Render("j/k navigate  enter open  q quit") + "\n")
	return b.String()
}

// RunApp drives the picker until the user quits.
func RunApp(a *App) error {
	defer a.Close()
	_, err := tea.NewProgram(a, tea.WithAltScreen()).Run()
	return err
}
