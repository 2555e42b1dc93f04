package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/yuanying/epubrsvp/internal/book"
	"github.com/yuanying/epubrsvp/internal/layout"
	"github.com/yuanying/epubrsvp/internal/pacing"
	"github.com/yuanying/epubrsvp/internal/reader"
)

const (
	defaultTermWidth  = 80
	defaultTermHeight = 24
)

func newPageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "page ID",
		Short: "Print the wrapped page around the reading position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			width, _ := cmd.Flags().GetInt("width")
			count, _ := cmd.Flags().GetInt("rows")
			if width < 0 || count < 0 {
				return fmt.Errorf("--width and --rows must not be negative")
			}
			if width == 0 || count == 0 {
				w, h := terminalSize(os.Stdout)
				width = orDefault(width, w)
				count = orDefault(count, h-1)
			}

			a, err := openApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			p, err := a.library.Book(ctx, args[0])
			if err != nil {
				return err
			}
			idx := p.Clamp(a.positions.Get(ctx, args[0]))
			rows := layout.WrapParagraphs(p.Paragraphs, width)
			row, _ := reader.Locate(rows, idx)
			renderRows(cmd.OutOrStdout(), p.Words, rows, max(row, 0), count, idx, brackets)
			return nil
		},
	}
	cmd.Flags().Int("width", 0, "Row width in characters (default: terminal width)")
	cmd.Flags().Int("rows", 0, "Number of rows to print (default: terminal height)")
	return cmd
}

func orDefault(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func brackets(word string) string {
	return "[" + word + "]"
}

// renderRows prints count rows starting at row first, with the word at
// current passed through mark.
func renderRows(w io.Writer, words []string, rows []layout.Row, first, count, current int, mark func(string) string) {
	end := min(first+count, len(rows))
	for _, r := range rows[min(first, len(rows)):end] {
		var sb strings.Builder
		for i := r.StartIndex; i < r.EndIndex; i++ {
			if i > r.StartIndex {
				sb.WriteByte(' ')
			}
			if i == current {
				sb.WriteString(mark(words[i]))
			} else {
				sb.WriteString(words[i])
			}
		}
		fmt.Fprintln(w, sb.String())
	}
}

func terminalSize(f *os.File) (width, height int) {
	w, h, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 || h <= 0 {
		return defaultTermWidth, defaultTermHeight
	}
	return w, h
}

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read ID",
		Short: "Read a book in the terminal",
		Long: `read opens a book in the paginated view. Keys:

  space      play / pause
  h, left    back 15 words
  l, right   forward 15 words
  k, up, +   20 words per minute faster
  j, down, - 20 words per minute slower
  n, p       next / previous page
  b, esc     back to the paginated view, or close the book
  q          quit`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			p, err := a.library.Book(ctx, args[0])
			if err != nil {
				return err
			}
			st := a.settings.Load(ctx)

			width, height := terminalSize(os.Stdout)
			feed := newFrameFeed()
			sess, err := reader.NewSession(ctx, reader.Config{
				BookID:    args[0],
				Words:     p.Words,
				Positions: a.positions,
				Settings:  st,
				Clock:     pacing.SystemClock(),
				Logger:    a.logger,
				MaxChars:  width,
				OnFrame:   feed.push,
			})
			if err != nil {
				return err
			}

			m := newReaderModel(sess, feed, p, st.ORPGuideLine, width, height)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			sess.Close()

			if wpm := sess.Settings().WordsPerMinute; wpm != st.WordsPerMinute {
				if _, serr := a.settings.Set(ctx, "wordsPerMinute", strconv.Itoa(wpm)); serr != nil {
					a.logger.Warn("failed to save words per minute", "error", serr)
				}
			}
			return err
		},
	}
}

// frameMsg is a frame emitted by the session outside of Update.
type frameMsg reader.Frame

// frameFeed carries frames from the pacing goroutine to the program. Only
// the latest undelivered frame is kept, so push never blocks the session.
type frameFeed chan reader.Frame

func newFrameFeed() frameFeed {
	return make(frameFeed, 1)
}

func (c frameFeed) push(f reader.Frame) {
	for {
		select {
		case c <- f:
			return
		default:
		}
		select {
		case <-c:
		default:
		}
	}
}

// wait delivers the next frame as a frameMsg.
func (c frameFeed) wait() tea.Cmd {
	return func() tea.Msg {
		return frameMsg(<-c)
	}
}

var (
	pivotStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8")).Bold(true)
	guideStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#585b70"))
	contextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7f849c"))
	currentStyle = lipgloss.NewStyle().Reverse(true)
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#cdd6f4")).Background(lipgloss.Color("#313244"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8"))
)

// contextRows is how many rows of preceding words the paused view shows.
const contextRows = 3

// readerModel is the terminal reader: the wrapped page in view mode and
// the single pivoted word otherwise.
type readerModel struct {
	sess      *reader.Session
	feed      frameFeed
	payload   *book.Payload
	rows      []layout.Row
	frame     reader.Frame
	guideline bool
	width     int
	height    int
	status    string
}

func newReaderModel(sess *reader.Session, feed frameFeed, p *book.Payload, guideline bool, width, height int) readerModel {
	m := readerModel{sess: sess, feed: feed, payload: p, guideline: guideline}
	m.resize(width, height)
	return m
}

func (m readerModel) Init() tea.Cmd {
	return m.feed.wait()
}

func (m readerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
	case frameMsg:
		m.frame = reader.Frame(msg)
		return m, m.feed.wait()
	case tea.KeyMsg:
		m.status = ""
		done, err := m.handleKey(msg.String())
		if err != nil {
			m.status = err.Error()
		}
		if done {
			return m, tea.Quit
		}
		m.frame = m.sess.Frame()
	}
	return m, nil
}

// handleKey applies one key press to the session and reports whether the
// reader should close.
func (m readerModel) handleKey(key string) (done bool, err error) {
	switch key {
	case "q", "ctrl+c":
		return true, nil
	case " ", "space":
		return false, m.sess.Toggle()
	case "b", "esc":
		return !m.sess.Back(), nil
	case "h", "left":
		return false, m.sess.Skip(-reader.SkipWords)
	case "l", "right":
		return false, m.sess.Skip(reader.SkipWords)
	case "k", "up", "+":
		_, err = m.sess.AdjustWPM(reader.WPMStep)
	case "j", "down", "-":
		_, err = m.sess.AdjustWPM(-reader.WPMStep)
	case "n":
		return false, m.sess.Seek(m.pageStart(m.sess.Index(), 1))
	case "p":
		return false, m.sess.Seek(m.pageStart(m.sess.Index(), -1))
	}
	return false, err
}

func (m *readerModel) resize(width, height int) {
	m.width = max(width, 1)
	m.height = max(height, 2)
	m.rows = layout.WrapParagraphs(m.payload.Paragraphs, m.width)
	m.sess.SetMaxChars(m.width)
	m.frame = m.sess.Frame()
}

// pageRows is the number of text rows in view mode; one row is the status
// line.
func (m readerModel) pageRows() int {
	return max(m.height-1, 1)
}

// pageStart returns the first word of the page pages away from the page
// holding idx.
func (m readerModel) pageStart(idx, pages int) int {
	if len(m.rows) == 0 {
		return idx
	}
	row, _ := reader.Locate(m.rows, idx)
	row = min(max(row+pages*m.pageRows(), 0), len(m.rows)-1)
	return m.rows[row].StartIndex
}

func (m readerModel) View() string {
	var body string
	if m.frame.Mode == reader.ModeView {
		body = m.pageView()
	} else {
		body = lipgloss.Place(m.width, m.pageRows(), lipgloss.Left, lipgloss.Center, m.wordView())
	}
	return body + "\n" + m.statusLine()
}

func (m readerModel) pageView() string {
	var sb strings.Builder
	row, _ := reader.Locate(m.rows, m.frame.Index)
	first := max(row, 0) / m.pageRows() * m.pageRows()
	renderRows(&sb, m.payload.Words, m.rows, first, m.pageRows(), m.frame.Index, func(s string) string { return currentStyle.Render(s) })
	return lipgloss.PlaceVertical(m.pageRows(), lipgloss.Top, strings.TrimSuffix(sb.String(), "\n"))
}

func (m readerModel) wordView() string {
	var lines []string
	if len(m.frame.Previous) > 0 {
		prev := strings.Split(wordwrap.String(strings.Join(m.frame.Previous, " "), m.width), "\n")
		for _, l := range prev[max(len(prev)-contextRows, 0):] {
			lines = append(lines, contextStyle.Render(l))
		}
		lines = append(lines, "")
	}

	guide := strings.Repeat(" ", reader.PivotColumn(m.width)) + guideStyle.Render("|")
	if m.guideline {
		lines = append(lines, guide)
	}
	s := m.frame.Split
	lines = append(lines, strings.Repeat(" ", s.Pad)+s.Before+pivotStyle.Render(s.Pivot)+s.After)
	if m.guideline {
		lines = append(lines, guide)
	}
	return strings.Join(lines, "\n")
}

func (m readerModel) statusLine() string {
	f := m.frame
	line := fmt.Sprintf("%s  %d%%  %s left  %d/%d  %d wpm",
		f.Mode, f.Progress, f.TimeLeft.Round(time.Second), f.Index+1, f.Total, m.sess.Settings().WordsPerMinute)
	if m.status != "" {
		line += "  " + errorStyle.Render(m.status)
	}
	return statusStyle.Width(m.width).MaxHeight(1).Render(line)
}
