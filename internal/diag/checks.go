package diag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/KafClaw/taskclaw/internal/board"
	"github.com/KafClaw/taskclaw/internal/provider"
)

// CheckKafka verifies that each broker resolves, accepts connections, speaks
// the Kafka protocol, and that every topic is visible.
func CheckKafka(ctx context.Context, r *Report, brokers []string, topics []string, timeout time.Duration) {
	if len(brokers) == 0 {
		r.add(Row{"kafka", "-", FAIL, "No brokers configured", "Set kafka.brokers."})
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	var conn *kafka.Conn
	for _, addr := range brokers {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			r.add(Row{"kafka", addr, FAIL, fmt.Sprintf("Invalid broker address: %v", err), "Use host:port."})
			continue
		}
		if !checkDNS(r, host) {
			continue
		}
		c := dialKafka(ctx, r, addr, timeout)
		if c == nil {
			continue
		}
		if conn == nil {
			conn = c
		} else {
			c.Close()
		}
	}
	if conn == nil {
		return
	}
	defer conn.Close()
	checkTopics(r, conn, topics)
}

func checkDNS(r *Report, host string) bool {
	start := time.Now()
	_, err := net.LookupHost(host)
	slog.Debug("Diag: dns", "host", host, "duration", time.Since(start), "error", err)
	if err != nil {
		r.add(Row{"dns", host, FAIL, fmt.Sprintf("DNS lookup failed: %v", err), "Check DNS, /etc/hosts or VPN search domains."})
		return false
	}
	return true
}

func dialKafka(ctx context.Context, r *Report, addr string, timeout time.Duration) *kafka.Conn {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	conn, err := (&kafka.Dialer{Timeout: timeout}).DialContext(ctx, "tcp", addr)
	if err != nil {
		slog.Debug("Diag: kafka dial", "addr", addr, "duration", time.Since(start), "error", err)
		r.add(Row{"kafka", addr, FAIL, fmt.Sprintf("Broker dial failed: %v", err), "Listener not exposed, firewall, or wrong port."})
		return nil
	}
	if _, err := conn.ApiVersions(); err != nil {
		conn.Close()
		r.add(Row{"kafka", addr, FAIL, fmt.Sprintf("ApiVersions failed: %v", err), "Broker incompatible or a proxy is interfering."})
		return nil
	}
	r.add(Row{"kafka", addr, OK, fmt.Sprintf("Connected in %s", time.Since(start).Truncate(time.Millisecond)), ""})
	return conn
}

func checkTopics(r *Report, conn *kafka.Conn, topics []string) {
	if len(topics) == 0 {
		return
	}
	parts, err := conn.ReadPartitions(topics...)
	if err != nil {
		r.add(Row{"kafka", strings.Join(topics, ","), FAIL, fmt.Sprintf("ReadPartitions failed: %v", err), "Create the topics or grant Describe."})
		return
	}
	leaders := map[string]int{}
	seen := map[string]bool{}
	for _, p := range parts {
		seen[p.Topic] = true
		if p.Leader.Host != "" {
			leaders[p.Topic]++
		}
	}
	for _, t := range topics {
		switch {
		case !seen[t]:
			r.add(Row{"kafka", t, FAIL, "Topic not found or not authorized", "Create the topic or grant Describe."})
		case leaders[t] == 0:
			r.add(Row{"kafka", t, WARN, "Topic has no partition leaders", "Check broker health."})
		default:
			r.add(Row{"kafka", t, OK, fmt.Sprintf("Topic visible; leader partitions=%d", leaders[t]), ""})
		}
	}
}

// CheckBackend probes the board backend with a search that is not expected
// to match. Not-found counts as reachable.
func CheckBackend(ctx context.Context, r *Report, name string, repo board.ProjectRepository, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	_, err := repo.SearchProject(ctx, "taskclaw-doctor-probe")
	if err != nil && !errors.Is(err, board.ErrNotFound) {
		r.add(Row{"backend", name, FAIL, fmt.Sprintf("Backend unreachable: %v", err), "Check backend.baseUrl and backend.token."})
		return
	}
	r.add(Row{"backend", name, OK, fmt.Sprintf("Responded in %s", time.Since(start).Truncate(time.Millisecond)), ""})
}

// CheckModel reports whether a text generation model is usable.
func CheckModel(r *Report, name string, gen provider.Generator, resolveErr error) {
	switch {
	case resolveErr != nil:
		r.add(Row{"model", name, FAIL, resolveErr.Error(), "Set model.name and the provider API key."})
	case gen == nil || !gen.Ready():
		r.add(Row{"model", name, FAIL, "Model not ready", ""})
	default:
		r.add(Row{"model", gen.Model(), OK, "Configured", ""})
	}
}

// Skip records a check that was not run.
func Skip(r *Report, component, reason string) {
	r.add(Row{component, "-", SKIP, reason, ""})
}
