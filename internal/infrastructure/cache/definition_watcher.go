package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/divingclub/clubattrs/internal/infrastructure/logging"
	"github.com/lib/pq"
)

// DefinitionsChannel is the NOTIFY channel written by the
// attribute_definitions trigger. The payload is the entity kind.
const DefinitionsChannel = "attribute_definitions_changed"

// Invalidator drops cached attribute definitions.
type Invalidator interface {
	InvalidateKind(ctx context.Context, entityKind string)
	InvalidateAll(ctx context.Context)
}

// DefinitionWatcher keeps the definition cache of every server instance in
// step with admin edits using PostgreSQL LISTEN/NOTIFY. The cache TTL stays
// the fallback when a notification is lost.
type DefinitionWatcher struct {
	connStr      string
	invalidator  Invalidator
	logger       *slog.Logger
	pingInterval time.Duration

	mu       sync.Mutex
	listener *pq.Listener
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopped  bool
}

// NewDefinitionWatcher creates a watcher. connStr is the PostgreSQL
// connection string used for the dedicated LISTEN connection.
func NewDefinitionWatcher(connStr string, invalidator Invalidator, logger *slog.Logger) *DefinitionWatcher {
	return &DefinitionWatcher{
		connStr:      connStr,
		invalidator:  invalidator,
		logger:       logging.OrDiscard(logger),
		pingInterval: 90 * time.Second,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start opens the listener and processes notifications until Stop.
func (w *DefinitionWatcher) Start(ctx context.Context) error {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			w.logger.Warn("definition listener problem", "event", int(ev), "error", err)
		}
	}

	listener := pq.NewListener(w.connStr, 10*time.Second, time.Minute, reportProblem)
	if err := listener.Listen(DefinitionsChannel); err != nil {
		listener.Close()
		return fmt.Errorf("failed to listen on %s: %w", DefinitionsChannel, err)
	}

	w.mu.Lock()
	w.listener = listener
	w.mu.Unlock()

	go w.run(ctx, listener.Notify, listener.Ping)
	return nil
}

// Stop stops the watcher and closes the listener. Safe to call twice.
func (w *DefinitionWatcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	listener := w.listener
	w.mu.Unlock()

	if listener == nil {
		return nil
	}
	<-w.doneCh
	return listener.Close()
}

func (w *DefinitionWatcher) run(ctx context.Context, notify <-chan *pq.Notification, ping func() error) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case n := <-notify:
			w.handle(ctx, n)
		case <-ticker.C:
			go func() {
				if err := ping(); err != nil {
					w.logger.Warn("definition listener ping failed", "error", err)
				}
			}()
		}
	}
}

// handle applies one notification. A nil notification means the connection
// was re-established and events may have been missed.
func (w *DefinitionWatcher) handle(ctx context.Context, n *pq.Notification) {
	if n == nil || n.Extra == "" {
		w.logger.Info("definition cache flushed", "reason", "listener reconnect or empty payload")
		w.invalidator.InvalidateAll(ctx)
		return
	}
	w.logger.Debug("definition cache invalidated", "entity_kind", n.Extra)
	w.invalidator.InvalidateKind(ctx, n.Extra)
}
