package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"conversion-relay/internal/event"
	"conversion-relay/internal/pixel"
	"conversion-relay/internal/store"
	"conversion-relay/pkg/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 1 * time.Second
	defaultDedupWindow    = 5 * time.Minute
	defaultSweepInterval  = 5 * time.Minute
)

type Config struct {
	RelayURL string
	// SourceURL is stamped on every event as the originating page. When
	// empty the relay falls back to the request's Referer header.
	SourceURL      string
	MaxRetries     uint64
	InitialBackoff time.Duration
	DedupWindow    time.Duration
	SweepInterval  time.Duration
}

// Identity carries the session fields folded into every event's user
// data: the user agent (always sent), ad-click and browser cookie ids
// when present, and the persisted account email used when Track is not
// given one explicitly.
type Identity struct {
	Email          string
	UserAgent      string
	ClickID        string
	BrowserID      string
	SubscriptionID string
}

// Emitter builds conversion events and dispatches them to the relay.
// One instance per process; it owns the deduplication cache, the
// failed-event store handle and the periodic drain. Track never returns
// an error: tracking is best-effort telemetry and must not be able to
// break the caller's flow.
type Emitter struct {
	cfg        Config
	logger     *zap.Logger
	httpClient *http.Client
	beacon     *pixel.Beacon
	dedup      *cache.Cache
	store      store.FailedEventStore

	identityMu sync.RWMutex
	identity   Identity

	// serializes Track's append-on-failure against the drain's
	// load-then-replace window
	storeMu sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
}

func New(cfg Config, beacon *pixel.Beacon, failedStore store.FailedEventStore, logger *zap.Logger) *Emitter {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.DedupWindow == 0 {
		cfg.DedupWindow = defaultDedupWindow
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaultSweepInterval
	}

	return &Emitter{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{},
		beacon:     beacon,
		// the janitor interval doubles as the periodic cache sweep
		dedup: cache.New(cfg.DedupWindow, cfg.DedupWindow),
		store: failedStore,
		stop:  make(chan struct{}),
	}
}

// SetIdentity replaces the session identity used for subsequent events.
func (e *Emitter) SetIdentity(id Identity) {
	e.identityMu.Lock()
	defer e.identityMu.Unlock()
	e.identity = id
}

// Track builds and dispatches one conversion event. customData is
// event-specific (see the event package constructors); userEmail
// overrides the identity email for this event only. The pixel beacon
// fires independently of the relay dispatch and its outcome is ignored.
func (e *Emitter) Track(ctx context.Context, name string, customData map[string]any, userEmail string) Result {
	if name == "" {
		e.logger.Warn("Track called with empty event name")
		return Result{Status: StatusDropped, Err: fmt.Errorf("event name is empty")}
	}

	ev := e.buildEvent(name, customData, userEmail)

	go e.beacon.Fire(context.Background(), name, ev.ID, customData)

	return e.dispatch(ctx, ev)
}

func (e *Emitter) buildEvent(name string, customData map[string]any, userEmail string) event.Event {
	e.identityMu.RLock()
	identity := e.identity
	e.identityMu.RUnlock()

	userData := map[string]any{
		"client_user_agent": identity.UserAgent,
	}
	if identity.ClickID != "" {
		userData["click_id"] = identity.ClickID
	}
	if identity.BrowserID != "" {
		userData["browser_id"] = identity.BrowserID
	}
	if identity.SubscriptionID != "" {
		userData["subscription_id"] = identity.SubscriptionID
	}

	email := userEmail
	if email == "" {
		email = identity.Email
	}
	if email != "" {
		userData["em"] = []string{email}
	}

	return event.Event{
		Name:       event.Name(name),
		ID:         event.NewID(),
		Time:       time.Now().Unix(),
		UserData:   userData,
		CustomData: customData,
		SourceURL:  e.cfg.SourceURL,
	}
}

// dispatch suppresses duplicates, sends with retry, and queues the event
// on exhaustion. Used by Track only; drains resend without the dedup
// check and without re-queueing.
func (e *Emitter) dispatch(ctx context.Context, ev event.Event) Result {
	dedupKey := string(ev.Name) + ev.ID
	if _, found := e.dedup.Get(dedupKey); found {
		metrics.DedupSuppressed.WithLabelValues(string(ev.Name)).Inc()
		e.logger.Debug("Suppressed duplicate dispatch",
			zap.String("event_name", string(ev.Name)),
			zap.String("event_id", ev.ID))
		return Result{Status: StatusSuppressed}
	}
	e.dedup.Set(dedupKey, time.Now().UnixMilli(), cache.DefaultExpiration)

	response, err := e.sendWithRetry(ctx, ev)
	if err == nil {
		return Result{Status: StatusDelivered, Response: response}
	}

	e.logger.Warn("Dispatch retries exhausted, queueing event",
		zap.Error(err),
		zap.String("event_name", string(ev.Name)),
		zap.String("event_id", ev.ID))

	fe := event.FailedEvent{Event: ev, Timestamp: time.Now().UnixMilli()}
	e.storeMu.Lock()
	appendErr := e.store.Append(ctx, fe)
	e.storeMu.Unlock()
	if appendErr != nil {
		e.logger.Error("Failed to queue event, dropping it",
			zap.Error(appendErr),
			zap.String("event_id", ev.ID))
		return Result{Status: StatusDropped, Err: err}
	}
	metrics.FailedQueueSize.Inc()

	return Result{Status: StatusQueued, Err: err}
}

func (e *Emitter) sendWithRetry(ctx context.Context, ev event.Event) (map[string]any, error) {
	var response map[string]any

	operation := func() error {
		resp, err := e.send(ctx, ev)
		if err != nil {
			metrics.EmitterRetries.WithLabelValues(string(ev.Name)).Inc()
			e.logger.Debug("Dispatch attempt failed",
				zap.Error(err),
				zap.String("event_id", ev.ID))
			return err
		}
		response = resp
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.InitialBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, e.cfg.MaxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return response, nil
}

type relayResponse struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Error   string         `json:"error"`
	Details any            `json:"details"`
}

// send performs one relay round trip. The relay answers HTTP 200 for
// both outcomes, so failure is read off the success flag.
func (e *Emitter) send(ctx context.Context, ev event.Event) (map[string]any, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.RelayURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read relay response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay returned status %d", resp.StatusCode)
	}

	var decoded relayResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode relay response: %w", err)
	}
	if !decoded.Success {
		return nil, fmt.Errorf("relay reported failure: %s", decoded.Error)
	}

	return decoded.Data, nil
}

// StartSweeps launches the periodic failed-event drain. The dedup cache
// sweeps itself through its janitor on the same interval.
func (e *Emitter) StartSweeps() {
	go func() {
		ticker := time.NewTicker(e.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-e.stop:
				return
			case <-ticker.C:
				if _, _, err := e.Drain(context.Background()); err != nil {
					e.logger.Error("Failed-event drain failed", zap.Error(err))
				}
			}
		}
	}()
}

// Stop halts the background sweep. Idempotent.
func (e *Emitter) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
}

// Drain replays stored failed events. Events inside the retention window
// are resent independently, each with the full retry policy; one event's
// failure never blocks the rest. Events past the window are discarded
// unconditionally. Only still-unresent young events are persisted back.
func (e *Emitter) Drain(ctx context.Context) (resent, dropped int, err error) {
	e.storeMu.Lock()
	defer e.storeMu.Unlock()

	events, err := e.store.Load(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load failed events: %w", err)
	}
	if len(events) == 0 {
		metrics.FailedQueueSize.Set(0)
		return 0, 0, nil
	}

	young, old := store.Partition(events, time.Now())
	dropped = len(old)

	var kept []event.FailedEvent
	for _, fe := range young {
		if _, sendErr := e.sendWithRetry(ctx, fe.Event); sendErr != nil {
			e.logger.Warn("Replay failed, keeping event",
				zap.Error(sendErr),
				zap.String("event_id", fe.Event.ID))
			kept = append(kept, fe)
			continue
		}
		resent++
	}

	if err := e.store.Replace(ctx, kept); err != nil {
		return resent, dropped, fmt.Errorf("failed to persist drained queue: %w", err)
	}
	metrics.FailedQueueSize.Set(float64(len(kept)))

	e.logger.Info("Drained failed-event store",
		zap.Int("resent", resent),
		zap.Int("dropped", dropped),
		zap.Int("kept", len(kept)))

	return resent, dropped, nil
}
