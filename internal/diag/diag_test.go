package diag

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/KafClaw/taskclaw/internal/board"
	"github.com/KafClaw/taskclaw/internal/provider"
)

type probeRepo struct {
	board.ProjectRepository
	err error
}

func (p probeRepo) SearchProject(context.Context, string) (*board.Project, error) {
	return nil, p.err
}

func TestCheckBackend(t *testing.T) {
	r := &Report{}
	CheckBackend(context.Background(), r, "local", probeRepo{err: board.ErrNotFound}, time.Second)
	if r.Failed() || r.Rows[0].Status != OK {
		t.Fatalf("not-found should count as reachable, got %+v", r.Rows)
	}

	r = &Report{}
	CheckBackend(context.Background(), r, "rest", probeRepo{err: errors.New("connection refused")}, time.Second)
	if !r.Failed() {
		t.Fatalf("expected failure, got %+v", r.Rows)
	}
}

func TestCheckModel(t *testing.T) {
	r := &Report{}
	CheckModel(r, "gemini/x", nil, errors.New("missing key"))
	CheckModel(r, "none", provider.Unavailable{}, nil)
	if len(r.Rows) != 2 || r.Rows[0].Status != FAIL || r.Rows[1].Status != FAIL {
		t.Fatalf("unexpected rows %+v", r.Rows)
	}
}

func TestCheckKafkaBadAddress(t *testing.T) {
	r := &Report{}
	CheckKafka(context.Background(), r, []string{"no-port"}, nil, time.Second)
	if !r.Failed() || !strings.Contains(r.Rows[0].Detail, "Invalid broker address") {
		t.Fatalf("unexpected rows %+v", r.Rows)
	}

	r = &Report{}
	CheckKafka(context.Background(), r, nil, nil, time.Second)
	if !r.Failed() {
		t.Fatal("expected failure without brokers")
	}
}

func TestCheckKafkaUnreachableBroker(t *testing.T) {
	r := &Report{}
	// Port 1 on loopback is closed on any sane test host.
	CheckKafka(context.Background(), r, []string{"127.0.0.1:1"}, []string{"taskclaw.commands"}, time.Second)
	if !r.Failed() {
		t.Fatalf("expected dial failure, got %+v", r.Rows)
	}
	if len(r.Rows) != 1 {
		t.Fatalf("topic checks need a connection, got %+v", r.Rows)
	}
}

func TestReportPrint(t *testing.T) {
	r := &Report{}
	Skip(r, "slack", "disabled")
	r.add(Row{"kafka", "t", FAIL, "boom", "do something"})
	var buf bytes.Buffer
	r.Print(&buf)
	out := buf.String()
	if !strings.Contains(out, "disabled") || !strings.Contains(out, "hint: do something") {
		t.Fatalf("unexpected output %q", out)
	}
}
