// Package queue buffers outbound messages while the chat backend is unreachable, persists
// the buffer, and drains it with bounded retries once connectivity returns.
package queue

import (
	"context"
	"slices"
	"sync"
	"time"

	"msgrelay/internal/connectivity"
	"msgrelay/internal/constants"
	"msgrelay/internal/errors"
	"msgrelay/internal/metrics"
	"msgrelay/internal/models"
	"msgrelay/internal/retry"
	"msgrelay/internal/validation"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SendFunc transmits one message. A non-nil error marks the attempt as failed.
type SendFunc func(ctx context.Context, msg models.QueuedMessage) error

// Timer is the handle of a scheduled retry.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run after d.
type AfterFunc func(d time.Duration, f func()) Timer

func defaultAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Config controls queue behaviour
type Config struct {
	StorageKey  string
	MaxRetries  int
	RetryDelays retry.Schedule
	SendTimeout time.Duration
}

// DefaultConfig returns the stock queue settings
func DefaultConfig() Config {
	return Config{
		StorageKey:  constants.DefaultStorageKey,
		MaxRetries:  constants.DefaultMaxRetries,
		RetryDelays: retry.NewSchedule(nil),
		SendTimeout: time.Duration(constants.DefaultSendTimeoutMs) * time.Millisecond,
	}
}

// Stats is a point-in-time summary of the queue.
type Stats struct {
	Pending      int           `json:"pending"`
	Online       bool          `json:"online"`
	RetryPending bool          `json:"retryPending"`
	NextRetryIn  time.Duration `json:"nextRetryDelayNs"`
	DrainPasses  uint64        `json:"drainPasses"`
	Oldest       time.Time     `json:"oldest,omitzero"`
}

// Option customises a NetworkService
type Option func(*NetworkService)

// WithMetrics records queue activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *NetworkService) { s.metrics = m }
}

// WithDeadLetterStore persists every dead letter to store.
func WithDeadLetterStore(store DeadLetterStore) Option {
	return func(s *NetworkService) { s.deadLetterStore = store }
}

// WithRejectionDeadLetters moves a message to the dead letters on the first send the
// backend rejects for good, instead of spending its remaining retries. Off by default.
func WithRejectionDeadLetters() Option {
	return func(s *NetworkService) { s.deadLetterRejections = true }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *NetworkService) { s.now = now }
}

// WithAfterFunc replaces time.AfterFunc for retry scheduling.
func WithAfterFunc(f AfterFunc) Option {
	return func(s *NetworkService) { s.afterFunc = f }
}

// WithIDGenerator replaces the UUIDv7 message id generator.
func WithIDGenerator(f func() string) Option {
	return func(s *NetworkService) { s.newID = f }
}

// NetworkService owns one persisted outbound queue.
type NetworkService struct {
	cfg             Config
	store           Store
	source          connectivity.Source
	logger          *logrus.Logger
	metrics         *metrics.Metrics
	deadLetterStore DeadLetterStore
	now             func() time.Time
	afterFunc       AfterFunc
	newID           func() string

	// deadLetterRejections drops rejected messages without further retries.
	deadLetterRejections bool

	mu          sync.Mutex
	queue       []models.QueuedMessage
	online      bool
	stateKnown  bool
	send        SendFunc
	timer       Timer
	timerGen    uint64
	nextDelay   time.Duration
	passes      uint64
	started     bool
	closed      bool
	unsubscribe func()

	// drainMu serializes delivery passes and manual retries.
	drainMu sync.Mutex
	// persistMu orders snapshot writes so the last write always carries the newest state.
	persistMu sync.Mutex
	// transitionMu keeps network change notifications in the order the state changed.
	// OnNetworkChange callbacks must not change connectivity synchronously.
	transitionMu sync.Mutex

	networkSubs    subscribers[bool]
	deadLetterSubs subscribers[models.DeadLetter]

	trigger    chan struct{}
	stopCh     chan struct{}
	workerDone chan struct{}
	baseCtx    context.Context
	cancel     context.CancelFunc
}

// New creates a queue bound to store and source. Call Start to load persisted messages and
// begin watching connectivity.
func New(cfg Config, store Store, source connectivity.Source, logger *logrus.Logger, opts ...Option) *NetworkService {
	defaults := DefaultConfig()
	if cfg.StorageKey == "" {
		cfg.StorageKey = defaults.StorageKey
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.RetryDelays.Len() == 0 {
		cfg.RetryDelays = defaults.RetryDelays
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaults.SendTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &NetworkService{
		cfg:        cfg,
		store:      store,
		source:     source,
		logger:     logger,
		now:        time.Now,
		afterFunc:  defaultAfterFunc,
		newID:      newMessageID,
		trigger:    make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		workerDone: make(chan struct{}),
		baseCtx:    ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Start seeds the queue from storage, subscribes to connectivity changes and fetches the
// initial state. The service stays offline until that fetch resolves.
func (s *NetworkService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New(errors.ErrCodeInternalError, "queue is closed")
	}
	if s.started {
		s.mu.Unlock()
		return errors.New(errors.ErrCodeInternalError, "queue already started")
	}
	s.started = true
	s.mu.Unlock()

	loaded := loadQueue(ctx, s.store, s.cfg.StorageKey, s.cfg.MaxRetries, s.logger)

	s.mu.Lock()
	s.queue = loaded
	s.mu.Unlock()
	s.metrics.SetQueueDepth(len(loaded))

	unsubscribe := s.source.Subscribe(s.handleConnectivity)
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	go s.worker()

	s.logger.WithFields(logrus.Fields{
		LogFieldComponent:  component,
		LogFieldStorageKey: s.cfg.StorageKey,
		LogFieldQueueSize:  len(loaded),
	}).Info("Starting message queue")

	online, err := s.source.Fetch(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to fetch initial connectivity, assuming offline")
		return nil
	}

	s.applyConnectivity(online, true)
	return nil
}

// Close stops the retry timer, the connectivity subscription and the drain worker. An
// in-flight pass is cancelled after its current send.
func (s *NetworkService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	unsubscribe := s.unsubscribe
	started := s.started
	s.mu.Unlock()

	s.cancel()
	if unsubscribe != nil {
		unsubscribe()
	}
	close(s.stopCh)
	if started {
		<-s.workerDone
	}
	s.logger.WithField(LogFieldComponent, component).Info("Message queue stopped")
}

func (s *NetworkService) worker() {
	defer close(s.workerDone)
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.trigger:
			s.ProcessQueue(s.baseCtx)
		}
	}
}

// requestDrain asks the worker for a pass. Requests made while one is pending coalesce.
func (s *NetworkService) requestDrain() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *NetworkService) handleConnectivity(connected bool) {
	s.applyConnectivity(connected, false)
}

// applyConnectivity records a connectivity result and notifies subscribers on change. An
// initial result is ignored once the source has already reported a state.
func (s *NetworkService) applyConnectivity(connected, initial bool) {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	s.mu.Lock()
	if s.closed || (initial && s.stateKnown) {
		s.mu.Unlock()
		return
	}
	s.stateKnown = true
	changed := s.online != connected
	s.online = connected
	pending := len(s.queue) > 0
	s.mu.Unlock()

	if !changed {
		return
	}

	s.metrics.SetOnline(connected)
	s.logger.WithFields(logrus.Fields{
		LogFieldComponent: component,
		LogFieldOnline:    connected,
	}).Info("Network state changed")

	s.networkSubs.emit(connected)

	if connected && pending {
		s.requestDrain()
	}
}

// IsNetworkAvailable reports the last known connectivity state.
func (s *NetworkService) IsNetworkAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// OnNetworkChange registers cb for connectivity transitions.
func (s *NetworkService) OnNetworkChange(cb func(online bool)) (unsubscribe func()) {
	return s.networkSubs.add(cb)
}

// OnDeadLetter registers cb for messages dropped without delivery.
func (s *NetworkService) OnDeadLetter(cb func(models.DeadLetter)) (unsubscribe func()) {
	return s.deadLetterSubs.add(cb)
}

// SetSendCallback installs the transport. A drain is requested if messages are waiting.
func (s *NetworkService) SetSendCallback(fn SendFunc) {
	s.mu.Lock()
	s.send = fn
	ready := fn != nil && s.online && len(s.queue) > 0
	s.mu.Unlock()

	if ready {
		s.requestDrain()
	}
}

// QueueMessage appends a message, persists the queue and requests a drain when online.
// Only invalid input is reported as an error.
func (s *NetworkService) QueueMessage(ctx context.Context, conversationID, content string, msgType models.MessageType, mediaURI string) (string, error) {
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	if err := validation.ValidateEnqueue(validation.EnqueueRequest{
		ConversationID: conversationID,
		Content:        content,
		Type:           msgType,
		MediaURI:       mediaURI,
	}); err != nil {
		return "", err
	}

	msg := models.QueuedMessage{
		ID:             s.newID(),
		ConversationID: conversationID,
		Content:        content,
		Type:           msgType,
		MediaURI:       mediaURI,
		Timestamp:      s.now().UTC(),
		RetryCount:     0,
		MaxRetries:     s.cfg.MaxRetries,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", errors.New(errors.ErrCodeInternalError, "queue is closed")
	}
	s.queue = append(s.queue, msg)
	depth := len(s.queue)
	online := s.online
	s.mu.Unlock()

	s.metrics.RecordQueued(string(msgType))
	s.metrics.SetQueueDepth(depth)
	s.logger.WithFields(messageFields(msg)).WithField(LogFieldQueueSize, depth).Debug("Message queued")

	s.persist(ctx)

	if online {
		s.requestDrain()
	}
	return msg.ID, nil
}

// GetQueuedMessages returns a copy of the queue in enqueue order. An empty conversationID
// returns every message.
func (s *NetworkService) GetQueuedMessages(conversationID string) []models.QueuedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.QueuedMessage, 0, len(s.queue))
	for _, m := range s.queue {
		if conversationID == "" || m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out
}

// GetRetryCount returns the message's failure count, or 0 if it is not queued.
func (s *NetworkService) GetRetryCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.queue[i].RetryCount
	}
	return 0
}

// RetryMessage sends one message immediately. Success removes it; failure is returned and
// leaves its retry count and the retry timer alone.
func (s *NetworkService) RetryMessage(ctx context.Context, id string) error {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return errors.NewNotFoundError("queued message", id)
	}
	msg := s.queue[i]
	send := s.send
	s.mu.Unlock()

	if send == nil {
		return errors.ErrSendNotConfigured
	}

	if err := s.attempt(ctx, send, msg); err != nil {
		s.logger.WithFields(messageFields(msg)).WithError(err).Warn("Manual retry failed")
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.NewSendError(msg.ID, err)
	}

	s.mu.Lock()
	depth := s.removeLocked(id)
	s.mu.Unlock()
	s.metrics.SetQueueDepth(depth)

	s.logger.WithFields(messageFields(msg)).Info("Manual retry delivered message")
	s.persist(ctx)
	return nil
}

// RemoveFromQueue deletes a message and persists the queue, whether or not it was queued.
func (s *NetworkService) RemoveFromQueue(ctx context.Context, id string) {
	s.mu.Lock()
	depth := s.removeLocked(id)
	s.mu.Unlock()
	s.metrics.SetQueueDepth(depth)

	s.persist(ctx)
}

// Stats returns a summary of the queue.
func (s *NetworkService) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Pending:      len(s.queue),
		Online:       s.online,
		RetryPending: s.timer != nil,
		NextRetryIn:  s.nextDelay,
		DrainPasses:  s.passes,
	}
	for _, m := range s.queue {
		if st.Oldest.IsZero() || m.Timestamp.Before(st.Oldest) {
			st.Oldest = m.Timestamp
		}
	}
	return st
}

// StaleMessageCount counts messages queued longer than threshold.
func (s *NetworkService) StaleMessageCount(threshold time.Duration) int {
	cutoff := s.now().Add(-threshold)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.queue {
		if m.Timestamp.Before(cutoff) {
			n++
		}
	}
	return n
}

func (s *NetworkService) indexLocked(id string) int {
	return slices.IndexFunc(s.queue, func(m models.QueuedMessage) bool { return m.ID == id })
}

func (s *NetworkService) removeLocked(id string) int {
	s.queue = slices.DeleteFunc(s.queue, func(m models.QueuedMessage) bool { return m.ID == id })
	return len(s.queue)
}

// persist writes the current queue. Failures are logged and counted; memory stays
// authoritative and the next write converges storage.
func (s *NetworkService) persist(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	payload, err := encodeQueue(s.queue)
	s.mu.Unlock()
	if err != nil {
		s.metrics.RecordPersistFailure()
		s.logger.WithError(err).Error("Failed to encode queue")
		return
	}

	if err := s.store.SetItem(context.WithoutCancel(ctx), s.cfg.StorageKey, payload); err != nil {
		s.metrics.RecordPersistFailure()
		errors.LogError(s.logger, errors.NewStorageError("write", err), "Failed to persist queue",
			logrus.Fields{LogFieldStorageKey: s.cfg.StorageKey})
	}
}
