package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/hashpipe/internal/client"
	"github.com/pscheid92/hashpipe/internal/domain"
	"github.com/pscheid92/hashpipe/internal/hashnav"
	apperrors "github.com/pscheid92/hashpipe/internal/platform/errors"
	"github.com/pscheid92/hashpipe/internal/platform/logging"
	"github.com/pscheid92/hashpipe/internal/platform/retry"
	"github.com/spf13/cobra"
)

func watchCmd() *cobra.Command {
	var (
		url      string
		anchors  []string
		start    string
		poll     time.Duration
		logLevel string
		attempts int
		backoff  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Connect to a broker and follow the shared position",
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.InitLogger(logLevel, "text")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := newSession(cmd.OutOrStdout(), anchors, start, clockwork.NewRealClock())
			s.connect.MaxAttempts = attempts
			s.connect.InitialBackoff = backoff
			return s.run(ctx, url, cmd.InOrStdin(), poll)
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "ws://localhost:8080/ws", "Broker WebSocket URL")
	cmd.Flags().StringSliceVarP(&anchors, "anchors", "a", []string{"#1", "#2", "#3"}, "Anchors next/prev cycle through")
	cmd.Flags().StringVar(&start, "start", "", "Initial position")
	cmd.Flags().DurationVar(&poll, "poll", 500*time.Millisecond, "Fallback change-detection interval")
	cmd.Flags().IntVar(&attempts, "connect-attempts", 5, "Dial attempts before giving up")
	cmd.Flags().DurationVar(&backoff, "connect-backoff", time.Second, "Initial backoff between dial attempts")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	return cmd
}

// session is one terminal viewer: a Location driven by typed commands, synced
// through a Reconciler.
type session struct {
	outMu sync.Mutex
	out   io.Writer

	anchors []string
	loc     *hashnav.Location
	nav     *hashnav.Sync
	rec     *client.Reconciler
	connect retry.Policy
}

func newSession(out io.Writer, anchors []string, start string, clock clockwork.Clock) *session {
	s := &session{
		out:     out,
		anchors: anchors,
		connect: retry.Policy{MaxAttempts: 1, InitialBackoff: time.Second, RateLimitBackoff: 5 * time.Second},
	}
	s.loc = hashnav.NewLocation(start, func(hash string) { s.printf("at %s\n", hash) })
	s.nav = hashnav.NewSync(s.loc)
	s.rec = client.New(client.Handlers{
		OnStateChange: s.onRemoteChange,
		OnServerMsg:   s.onServerMsg,
		OnClientLeft:  func(id int64) { s.printf("viewer %d left\n", id) },
	}, nil, client.Options{Clock: clock})
	return s
}

// run connects, then executes commands from in until EOF, quit or ctx is done.
// Only the initial dial is retried. A closure after that ends in a notice.
func (s *session) run(ctx context.Context, url string, in io.Reader, poll time.Duration) error {
	if poll <= 0 {
		return apperrors.ValidationError(fmt.Sprintf("--poll must be positive, got %v", poll))
	}
	if s.connect.MaxAttempts < 1 {
		return apperrors.ValidationError(fmt.Sprintf("--connect-attempts must be at least 1, got %d", s.connect.MaxAttempts))
	}
	if err := s.rec.ConnectWithRetry(ctx, url, s.connect); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer func() { _ = s.rec.Close() }()

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := s.rec.Watch(watchCtx, s.loc.Events(), s.nav, poll); err != nil && !errors.Is(err, context.Canceled) {
			s.printf("watch stopped: %v\n", err)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok || s.exec(line) {
				return nil
			}
		}
	}
}

// exec runs one command line and reports whether the session should end.
func (s *session) exec(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "next", "n":
		s.loc.Navigate(hashnav.Step(s.anchors, s.loc.Hash(), hashnav.Next))
	case "prev", "p":
		s.loc.Navigate(hashnav.Step(s.anchors, s.loc.Hash(), hashnav.Prev))
	case "goto", "g":
		if len(fields) != 2 {
			s.printf("usage: goto #anchor\n")
			return false
		}
		target := fields[1]
		if !strings.HasPrefix(target, "#") {
			target = "#" + target
		}
		s.loc.Navigate(target)
	case "where", "w":
		s.printf("at %s (%s)\n", s.loc.Hash(), s.rec.State())
	case "quit", "q", "exit":
		return true
	default:
		s.printf("commands: next, prev, goto #anchor, where, quit\n")
	}
	return false
}

func (s *session) onRemoteChange(doc domain.StateDocument) {
	if doc.Action() != domain.ActionHashChange {
		return
	}
	if id, ok := doc.ID(); ok {
		s.printf("viewer %d moved to %s\n", id, doc.String("value"))
	}
	s.nav.Apply(doc)
}

func (s *session) onServerMsg(text string) {
	s.printf("server: %s\n", strings.ReplaceAll(text, "<br>", "\n  "))
}

func (s *session) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}
