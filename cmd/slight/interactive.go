package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-host/runtime"
	"github.com/wippyai/wasm-host/wasi"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98"))
	typeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#7D56F4"))
	resultStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	ctx      context.Context
	app      *app
	err      error
	instance *runtime.Instance
	output   *bytes.Buffer
	filename string
	result   string
	captured string
	funcs    []runtime.Export
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
}

type loadedMsg struct {
	err  error
	inst *runtime.Instance
}

type callResultMsg struct {
	err    error
	result string
}

func newInteractiveModel(ctx context.Context, a *app, filename string) *interactiveModel {
	return &interactiveModel{
		ctx:      ctx,
		app:      a,
		filename: filename,
		output:   &bytes.Buffer{},
		state:    stateSelectFunc,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

// load builds the instance with guest stdio captured so it does not draw
// over the TUI.
func (m *interactiveModel) load() tea.Msg {
	env := wasi.DefaultConfig().WithArgs(m.filename)
	env.Stdin = bytes.NewReader(nil)
	env.Stdout = m.output
	env.Stderr = m.output

	inst, err := m.app.build(m.ctx, m.filename, env)
	return loadedMsg{err: err, inst: inst}
}

func (m *interactiveModel) close() {
	if m.instance != nil {
		_ = m.instance.Close(m.ctx)
		m.instance = nil
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if msg.String() == "q" && m.state == stateInputArgs {
				break
			}
			m.close()
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.reset()
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.reset()
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.instance = msg.inst
		m.funcs = msg.inst.Exports()

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.captured = m.output.String()
		m.output.Reset()
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) reset() {
	m.state = stateSelectFunc
	m.result = ""
	m.captured = ""
	m.err = nil
}

func (m *interactiveModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.Params))
	for i, p := range f.Params {
		ti := textinput.New()
		ti.Placeholder = api.ValueTypeName(p)
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	if m.instance == nil {
		return callResultMsg{err: fmt.Errorf("module not loaded")}
	}

	f := m.funcs[m.selected]
	params := make([]uint64, len(m.inputs))
	for i, input := range m.inputs {
		v, err := parseValue(input.Value(), f.Params[i])
		if err != nil {
			return callResultMsg{err: fmt.Errorf("arg%d: %w", i, err)}
		}
		params[i] = v
	}

	res, err := m.instance.Call(m.ctx, f.Name, params...)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: formatResults(res, f.Results)}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.instance == nil {
		return "Building module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("slight"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.funcs) == 0 {
			b.WriteString("The module exports no functions.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + formatFunc(f)))
			} else {
				b.WriteString("  " + formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(api.ValueTypeName(f.Params[i])))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		if m.captured != "" {
			b.WriteString("\n\n--- output ---\n")
			b.WriteString(m.captured)
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func formatFunc(f runtime.Export) string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = typeStyle.Render(api.ValueTypeName(p))
	}
	result := ""
	if len(f.Results) > 0 {
		results := make([]string, len(f.Results))
		for i, r := range f.Results {
			results[i] = api.ValueTypeName(r)
		}
		result = " -> " + typeStyle.Render(strings.Join(results, ", "))
	}
	return funcStyle.Render(f.Name) + "(" + strings.Join(params, ", ") + ")" + result
}

func runInteractive(ctx context.Context, a *app, filename string) error {
	m := newInteractiveModel(ctx, a, filename)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	m.close()
	return err
}
