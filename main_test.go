package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/manningwu07/seq2seq/params"
	"github.com/manningwu07/seq2seq/seq2seq"
	"github.com/manningwu07/seq2seq/store"
)

type echoBot struct{ calls int }

func (b *echoBot) Reply(text string) string {
	b.calls++
	return "echo " + text
}

func TestChatCLI(t *testing.T) {
	h, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	bot := &echoBot{}
	var out bytes.Buffer
	ChatCLI(bot, h, strings.NewReader("hello\n\nhow are you\nexit\nnever read\n"), &out)

	if bot.calls != 2 {
		t.Fatalf("bot called %d times, want 2", bot.calls)
	}
	if !strings.Contains(out.String(), "Bot: echo how are you") {
		t.Fatalf("output missing reply:\n%s", out.String())
	}
	msgs, err := h.RecentMessages(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 4 || msgs[1].Role != "bot" || msgs[1].Text != "echo hello" {
		t.Fatalf("stored transcript = %+v", msgs)
	}
}

func TestChatCLIStopsAtEOF(t *testing.T) {
	bot := &echoBot{}
	var out bytes.Buffer
	ChatCLI(bot, nil, strings.NewReader("last line without newline"), &out)
	if bot.calls != 1 {
		t.Fatalf("bot called %d times, want 1", bot.calls)
	}
}

func TestAsciiPlot(t *testing.T) {
	var out bytes.Buffer
	asciiPlot(&out, []float64{1, 0.5, 0})
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 12 {
		t.Fatalf("got %d lines, want 12:\n%s", len(lines), out.String())
	}
	if lines[0] != "█  " {
		t.Fatalf("top row = %q", lines[0])
	}
	if lines[9] != "██ " {
		t.Fatalf("bottom row = %q", lines[9])
	}
}

func TestLossCurve(t *testing.T) {
	got := lossCurve([]seq2seq.EpochStats{{Loss: 4}, {Loss: 2}, {Loss: 1}})
	want := []float64{1, 0.5, 0.25}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("curve = %v, want %v", got, want)
		}
	}
}

func TestEpochLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	l, err := newEpochLog(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.write(seq2seq.EpochStats{Epoch: 1, Loss: 2.5, Skipped: 1}); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1][0] != "1" || rows[1][1] != "2.5000" || rows[1][5] != "1" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestChatModelRoundTrip(t *testing.T) {
	bot := &echoBot{}
	var m tea.Model = newChatModel(bot, nil)

	for _, r := range "hi" {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter did not produce a command")
	}
	if !m.(chatModel).thinking {
		t.Fatal("model not waiting for a reply")
	}
	msg := cmd()
	reply, ok := msg.(replyMsg)
	if !ok || reply.text != "echo hi" {
		t.Fatalf("command produced %#v", msg)
	}
	m, _ = m.Update(reply)
	cm := m.(chatModel)
	if cm.thinking || len(cm.lines) != 2 || !strings.Contains(cm.lines[1], "echo hi") {
		t.Fatalf("lines = %q thinking=%v", cm.lines, cm.thinking)
	}
}

func TestChatModelLogsTranscript(t *testing.T) {
	h, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	bot := &echoBot{}
	cm := newChatModel(bot, h)
	cm.input.SetValue("how are you")
	var m tea.Model = cm

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter did not produce a command")
	}
	if got := m.(chatModel).input.Value(); got != "" {
		t.Fatalf("input not cleared: %q", got)
	}
	// a second enter while waiting is ignored
	m, cmd2 := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd2 != nil || bot.calls != 0 {
		t.Fatal("enter while thinking sent another question")
	}

	m, _ = m.Update(cmd())
	cm = m.(chatModel)
	if len(cm.lines) != 2 || !strings.Contains(cm.lines[0], "how are you") || !strings.Contains(cm.lines[1], "echo how are you") {
		t.Fatalf("lines = %q", cm.lines)
	}
	msgs, err := h.RecentMessages(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[0].Text != "how are you" || msgs[1].Text != "echo how are you" {
		t.Fatalf("stored transcript = %+v", msgs)
	}
}

func TestPrintHistory(t *testing.T) {
	ctx := context.Background()
	h, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	var out bytes.Buffer
	if err := printHistory(ctx, &out, h, 5); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "no training runs recorded") {
		t.Fatalf("empty history output:\n%s", out.String())
	}

	run, err := h.StartRun(ctx, params.Default)
	if err != nil {
		t.Fatal(err)
	}
	for e, loss := range []float64{2, 1} {
		if err := h.RecordEpoch(ctx, run, seq2seq.EpochStats{Epoch: e + 1, Loss: loss}); err != nil {
			t.Fatal(err)
		}
	}
	if err := h.AddMessage(ctx, "user", "hi"); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if err := printHistory(ctx, &out, h, 5); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Run 1:", "Epoch 2 - Loss: 1.0000", "user: hi"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestExportReadsBack(t *testing.T) {
	dir := t.TempDir()
	corpus := filepath.Join(dir, "corpus.json")
	data := `[{"question":"hi","answer":"hello there"},{"question":"bye","answer":"see you"}]`
	if err := os.WriteFile(corpus, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	old := corpusPath
	corpusPath = corpus
	defer func() { corpusPath = old }()

	cfg := params.Default
	cfg.MaxLen = 6
	prefix := filepath.Join(dir, "out", "ids")
	if err := export(cfg, prefix); err != nil {
		t.Fatal(err)
	}
	for _, suffix := range []string{"-vocab.json", "-000.bin", "-000.idx"} {
		if _, err := os.Stat(prefix + suffix); err != nil {
			t.Fatal(err)
		}
	}
}
