package viz

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/ipcsim/internal/scene"
	"github.com/san-kum/ipcsim/internal/world"
)

const (
	defaultWidth    = 80
	defaultHeight   = 24
	panelWidth      = 50
	historyCapacity = 600
	tickInterval    = time.Second / 30
)

type TickMsg time.Time

// Options configure a live monitor.
type Options struct {
	Title string
	// Frames stops stepping once the world reaches this frame; zero runs
	// until quit.
	Frames int
	// OutDir receives GIF recordings and OBJ surface dumps.
	OutDir string
	Theme  string
}

// Model steps a world on every tick and draws its surfaces together with
// the Newton statistics of recent frames.
type Model struct {
	ctx           context.Context
	world         *world.World
	scene         *scene.Scene
	opts          Options
	width, height int
	canvas        *Canvas
	camera        *Camera
	wire          *Wireframe
	theme         Theme
	styles        styles
	running       bool
	history       []world.FrameReport
	status        string
	err           error
	showHelp      bool
	recorder      *Recorder
	tick          int
}

// NewModel wraps an initialised world and the scene it was built from.
func NewModel(ctx context.Context, w *world.World, s *scene.Scene, opts Options) Model {
	theme := GetTheme(opts.Theme)
	if opts.OutDir == "" {
		opts.OutDir = "."
	}
	m := Model{
		ctx:     ctx,
		world:   w,
		scene:   s,
		opts:    opts,
		width:   defaultWidth,
		height:  defaultHeight,
		canvas:  NewCanvas(defaultWidth-panelWidth, defaultHeight-2),
		camera:  NewCamera(),
		theme:   theme,
		styles:  newStyles(theme),
		running: true,
		history: make([]world.FrameReport, 0, historyCapacity),
	}
	m.wire = SceneWireframe(s)
	m.refit()
	return m
}

func (m *Model) refit() {
	if lo, hi, ok := m.wire.Bounds(); ok {
		m.camera.Fit(lo, hi)
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd { return tick() }

// Update handles input events and steps the world.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.canvas.Resize(max(msg.Width-panelWidth-4, 20), max(msg.Height-4, 10))
	case TickMsg:
		m.tick++
		if m.running {
			m.step()
		}
		m.draw()
		if m.recorder != nil {
			m.recorder.Capture(m.canvas)
		}
		return m, tick()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case " ":
		m.running = !m.running && !m.done()
	case "n":
		m.running = false
		m.step()
	case "d":
		m.dump()
	case "[":
		m.travel(-1)
	case "]":
		m.travel(1)
	case "c":
		m.check()
	case "o":
		m.writeSurface()
	case "g":
		m.toggleRecording()
	case "?":
		m.showHelp = !m.showHelp
	case "t":
		m.theme = nextTheme(m.theme)
		m.styles = newStyles(m.theme)
	case "f":
		m.refit()
	case "x", "left", "h":
		m.camera.Orbit(-0.1, 0)
	case "X", "right", "l":
		m.camera.Orbit(0.1, 0)
	case "y", "up", "k":
		m.camera.Orbit(0, 0.1)
	case "Y", "down", "j":
		m.camera.Orbit(0, -0.1)
	case "+", "=":
		m.camera.ZoomIn()
	case "-", "_":
		m.camera.ZoomOut()
	}
	m.draw()
	return m, nil
}

func (m *Model) done() bool {
	return m.opts.Frames > 0 && m.world.Frame() >= m.opts.Frames
}

// step advances the world by one frame and records its report.
func (m *Model) step() {
	if m.done() {
		m.running = false
		m.status = "done"
		return
	}
	if err := m.world.Advance(m.ctx); err != nil {
		m.running = false
		m.err = err
		m.status = "step failed"
		return
	}
	if err := m.world.Retrieve(); err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.history = append(m.history, m.world.LastReport())
	if len(m.history) > historyCapacity {
		m.history = m.history[1:]
	}
	m.wire = SceneWireframe(m.scene)
}

func (m *Model) dump() {
	if err := m.world.Dump(m.ctx); err != nil {
		m.err = err
		return
	}
	m.status = fmt.Sprintf("dumped frame %d", m.world.Frame())
}

// travel recovers the nearest dumped frame before (dir < 0) or after
// (dir > 0) the current one.
func (m *Model) travel(dir int) {
	frames, err := m.world.DumpedFrames(m.ctx)
	if err != nil {
		m.err = err
		return
	}
	sort.Ints(frames)
	cur, target := m.world.Frame(), -1
	for _, f := range frames {
		if dir < 0 && f < cur {
			target = f
		}
		if dir > 0 && f > cur {
			target = f
			break
		}
	}
	if target < 0 {
		m.status = "no dump in that direction"
		return
	}
	if err := m.world.Recover(m.ctx, target); err != nil {
		m.err = err
		return
	}
	m.running = false
	n := 0
	for _, r := range m.history {
		if r.Frame <= target {
			m.history[n] = r
			n++
		}
	}
	m.history = m.history[:n]
	m.wire = SceneWireframe(m.scene)
	m.status = fmt.Sprintf("recovered frame %d", target)
}

func (m *Model) check() {
	checker := m.world.SanityChecker()
	res := checker.Check()
	m.status = "sanity: " + res.String()
	if msgs := checker.Messages(); len(msgs) > 0 {
		m.status += " (" + msgs[0] + ")"
	}
}

func (m *Model) writeSurface() {
	path := filepath.Join(m.opts.OutDir, fmt.Sprintf("surface_%04d.obj", m.world.Frame()))
	if err := m.world.WriteSurface(path); err != nil {
		m.err = err
		return
	}
	m.status = "wrote " + path
}

func (m *Model) toggleRecording() {
	if m.recorder == nil {
		m.recorder = &Recorder{}
		m.status = "recording"
		return
	}
	path := filepath.Join(m.opts.OutDir, "ipcsim.gif")
	if err := m.recorder.Save(path); err != nil {
		m.err = err
	} else {
		m.status = "saved " + path
	}
	m.recorder = nil
}

func (m *Model) draw() {
	m.canvas.Clear()
	Render3D(m.canvas, m.wire, m.camera)
}

func (m Model) series(f func(world.FrameReport) float64) []float64 {
	out := make([]float64, len(m.history))
	for i, r := range m.history {
		out[i] = f(r)
	}
	return out
}

func (m Model) statusLine() string {
	st := m.styles
	switch {
	case m.err != nil:
		return st.failed.Render("ERROR ") + st.value.Render(m.err.Error())
	case m.running:
		return st.running.Render(AnimatedSpinner(m.tick) + " RUNNING")
	case m.done():
		return st.running.Render("DONE")
	}
	return st.paused.Render("PAUSED")
}

// View renders the TUI interface.
func (m Model) View() string {
	st := m.styles
	var s strings.Builder
	title := m.opts.Title
	if title == "" {
		title = "ipcsim"
	}
	s.WriteString(st.header.Render(strings.ToUpper(title)) + "\n")
	s.WriteString(m.statusLine() + "\n")
	if m.status != "" {
		s.WriteString(st.label.UnsetWidth().Render(m.status) + "\n")
	}
	if m.opts.Frames > 0 {
		s.WriteString(st.progressBar(float64(m.world.Frame())/float64(m.opts.Frames), 30) + "\n")
	}

	if energy := m.series(func(r world.FrameReport) float64 { return r.Energy }); len(energy) > 1 {
		chart := asciigraph.Plot(energy, asciigraph.Height(5), asciigraph.Width(32), asciigraph.Caption("energy"))
		s.WriteString(st.graph.Render(chart) + "\n")
	}

	r := m.world.LastReport()
	row := func(label, value string) {
		s.WriteString(st.label.Render(label) + st.value.Render(value) + "\n")
	}
	row("Frame", fmt.Sprintf("%d", m.world.Frame()))
	row("Time", fmt.Sprintf("%.4fs", m.world.Time()))
	row("Dt", fmt.Sprintf("%g", r.Dt))
	row("Phase", m.world.Phase().String())
	row("Newton", fmt.Sprintf("%d it, %d ls, %d pcg", r.Iterations, r.LineSearch, r.PCGIters))
	row("Residual", fmt.Sprintf("%.3e", r.Residual))
	row("Contacts", fmt.Sprintf("%d", r.Contacts))
	row("Min gap", fmt.Sprintf("%.3e", r.MinGap))
	row("Max |v|", fmt.Sprintf("%.3f", r.MaxVelocity))
	row("Step", r.Duration.Round(time.Microsecond).String())
	row("Iters", sparkline(m.series(func(r world.FrameReport) float64 { return float64(r.Iterations) }), 30))
	row("Contacts", sparkline(m.series(func(r world.FrameReport) float64 { return float64(r.Contacts) }), 30))
	if m.recorder != nil {
		row("Recording", fmt.Sprintf("%d frames", m.recorder.Len()))
	}

	s.WriteString(st.help.Render("space pause  n step  d dump  [ ] recover\nc check  o obj  g gif  t theme  ? help  q quit"))

	canvasView := st.canvas.Render(m.canvas.String())
	mainView := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, st.panel.Render(s.String()))
	if m.showHelp {
		return m.helpView() + "\n\n" + mainView
	}
	return mainView
}

var helpKeys = [][2]string{
	{"space", "pause / resume stepping"},
	{"n", "advance one frame"},
	{"d", "dump the current frame"},
	{"[ ]", "recover the previous / next dump"},
	{"c", "run the sanity checker"},
	{"o", "write surfaces as OBJ"},
	{"g", "start / stop GIF recording"},
	{"x X y Y", "orbit the camera"},
	{"+ -", "zoom"},
	{"f", "fit the camera to the scene"},
	{"t", "cycle themes"},
	{"q", "quit"},
}

func (m Model) helpView() string {
	var b strings.Builder
	for _, k := range helpKeys {
		b.WriteString(m.styles.key.Render(fmt.Sprintf("%-9s", k[0])) + " " + m.styles.value.Render(k[1]) + "\n")
	}
	return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(m.theme.Primary).Padding(0, 1).Render(b.String())
}

// Run drives the model until the user quits.
func Run(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
