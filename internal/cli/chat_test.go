package cli

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"docqa/config"
	"docqa/internal/domain"
)

type stubEngine struct {
	asked []string
	fail  map[string]bool
}

func (s *stubEngine) Query(_ context.Context, q string) (domain.Response, error) {
	s.asked = append(s.asked, q)
	if s.fail[q] {
		return domain.Response{}, errors.New("model offline")
	}
	return domain.Response{
		Query:   q,
		Answer:  "answer to " + q,
		Sources: []domain.Source{{Path: "ch01.asciidoc", Score: 0.9}},
	}, nil
}

func TestRunChat_InitialQuestionOnly(t *testing.T) {
	engine := &stubEngine{}
	var out strings.Builder

	err := runChat(context.Background(), engine, strings.NewReader("ignored\n"), &out, chatOptions{
		InitialQuestion: "What did the author do growing up?",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(engine.asked) != 1 {
		t.Fatalf("asked %v, want only the initial question", engine.asked)
	}
	want := "The answer is:\nanswer to What did the author do growing up?\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestRunChat_LoopUntilEscape(t *testing.T) {
	engine := &stubEngine{}
	var out strings.Builder

	in := strings.NewReader("What is a UTXO?\n\n   \n\x1b\nnever asked\n")
	err := runChat(context.Background(), engine, in, &out, chatOptions{
		InitialQuestion: "What is bitcoin?",
		Interactive:     true,
		ExitSequence:    "\x1b",
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"What is bitcoin?", "What is a UTXO?"}
	if strings.Join(engine.asked, "|") != strings.Join(want, "|") {
		t.Errorf("asked %v, want %v", engine.asked, want)
	}
	if n := strings.Count(out.String(), questionPrompt); n != 4 {
		t.Errorf("prompted %d times, want 4", n)
	}
}

func TestRunChat_EOFEndsLoop(t *testing.T) {
	engine := &stubEngine{}
	var out strings.Builder

	err := runChat(context.Background(), engine, strings.NewReader("last question"), &out, chatOptions{
		Interactive: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(engine.asked) != 1 || engine.asked[0] != "last question" {
		t.Errorf("asked %v, want the unterminated last line", engine.asked)
	}
}

func TestRunChat_LoopErrorsDoNotStop(t *testing.T) {
	engine := &stubEngine{fail: map[string]bool{"bad": true}}
	var out strings.Builder

	err := runChat(context.Background(), engine, strings.NewReader("bad\ngood\n"), &out, chatOptions{
		Interactive: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Error: model offline") {
		t.Errorf("missing error report in %q", out.String())
	}
	if !strings.Contains(out.String(), "answer to good") {
		t.Errorf("loop stopped after a failed question: %q", out.String())
	}
}

func TestRunChat_InitialQuestionError(t *testing.T) {
	engine := &stubEngine{fail: map[string]bool{"bad": true}}
	err := runChat(context.Background(), engine, strings.NewReader(""), &strings.Builder{}, chatOptions{
		InitialQuestion: "bad",
		Interactive:     true,
	})
	if err == nil {
		t.Fatal("expected error from the initial question")
	}
}

func TestPrintAnswer_Verbose(t *testing.T) {
	var out strings.Builder
	printAnswer(&out, domain.Response{
		Answer:  "Mining secures the ledger.",
		Sources: []domain.Source{{Path: "ch10.asciidoc", Score: 0.8123}},
	}, true)

	s := out.String()
	if !strings.HasPrefix(s, "The answer is:\nMining secures the ledger.\n") {
		t.Errorf("unexpected answer block: %q", s)
	}
	if !strings.Contains(s, "[1] ch10.asciidoc (score: 0.812)") {
		t.Errorf("missing source line: %q", s)
	}
}

func TestResolvePaths(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Corpus.Dir = "data/bitcoinbook"
	cfg.Store.PersistDir = "/var/lib/docqa"

	resolvePaths(cfg, "/srv/app")

	if cfg.Corpus.Dir != "/srv/app/data/bitcoinbook" {
		t.Errorf("corpus dir = %s", cfg.Corpus.Dir)
	}
	if cfg.Store.PersistDir != "/var/lib/docqa" {
		t.Errorf("absolute persist dir changed to %s", cfg.Store.PersistDir)
	}
}

func TestNewLogger(t *testing.T) {
	var buf strings.Builder
	log, err := newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"msg":"shown"`) {
		t.Errorf("unexpected log output %q", buf.String())
	}

	if _, err := newLogger(config.LoggingConfig{Level: "loud"}, &buf); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := newLogger(config.LoggingConfig{Format: "xml"}, &buf); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("the block chain grows", 12); got != "the block..." {
		t.Errorf("truncate = %q", got)
	}

	// no space to cut at, and byte 5 falls inside "ü"
	got := truncate("Schlüsselpaar", 5)
	if got != "Schl..." {
		t.Errorf("truncate = %q, want %q", got, "Schl...")
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncate produced invalid UTF-8: %q", got)
	}
}
