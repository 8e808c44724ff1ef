package historian

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/sparkpipe/pkg/batcher"
	"github.com/absmach/sparkpipe/pkg/devicestate"
	pkgerrors "github.com/absmach/sparkpipe/pkg/errors"
	"github.com/absmach/sparkpipe/pkg/query"
	"github.com/absmach/sparkpipe/pkg/sparkplug"
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
)

// seqModulus is the wrap-around point of the Sparkplug message sequence number.
const seqModulus = 256

var errIngestorStopped = errors.New("ingestor stopped")

type IngestConfig struct {
	Namespace  string `env:"NAMESPACE"   envDefault:"spBv1.0"`
	BufferSize int    `env:"BUFFER_SIZE" envDefault:"1024"`
	// LenientDeath applies death frames whose payload fails to decode, using
	// the arrival time. Some edge nodes publish non-protobuf NDEATH payloads.
	LenientDeath    bool `env:"LENIENT_DEATH"      envDefault:"true"`
	RebirthOnSeqGap bool `env:"REBIRTH_ON_SEQ_GAP" envDefault:"false"`
}

// Queue accepts persistence records without blocking.
type Queue interface {
	Enqueue(r batcher.Record) bool
}

// Publisher sends rebirth commands back to edge nodes.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

type IngestMetrics struct {
	Messages       metrics.Counter
	DecodeErrors   metrics.Counter
	TopicErrors    metrics.Counter
	AliasFallbacks metrics.Counter
	Unnamed        metrics.Counter
	SeqGaps        metrics.Counter
	Rebirths       metrics.Counter
}

func (m *IngestMetrics) withDefaults() IngestMetrics {
	out := IngestMetrics{
		Messages:       discard.NewCounter(),
		DecodeErrors:   discard.NewCounter(),
		TopicErrors:    discard.NewCounter(),
		AliasFallbacks: discard.NewCounter(),
		Unnamed:        discard.NewCounter(),
		SeqGaps:        discard.NewCounter(),
		Rebirths:       discard.NewCounter(),
	}
	if m == nil {
		return out
	}
	if m.Messages != nil {
		out.Messages = m.Messages
	}
	if m.DecodeErrors != nil {
		out.DecodeErrors = m.DecodeErrors
	}
	if m.TopicErrors != nil {
		out.TopicErrors = m.TopicErrors
	}
	if m.AliasFallbacks != nil {
		out.AliasFallbacks = m.AliasFallbacks
	}
	if m.Unnamed != nil {
		out.Unnamed = m.Unnamed
	}
	if m.SeqGaps != nil {
		out.SeqGaps = m.SeqGaps
	}
	if m.Rebirths != nil {
		out.Rebirths = m.Rebirths
	}

	return out
}

type message struct {
	topic    string
	payload  []byte
	received time.Time
}

// Ingestor is the single consumer of inbound Sparkplug traffic. Handle may be
// called from any goroutine; all state transitions happen on the Run goroutine
// in arrival order.
type Ingestor struct {
	cfg     IngestConfig
	store   *devicestate.Store
	queue   Queue
	pub     Publisher
	logger  *slog.Logger
	metrics IngestMetrics

	// Senders hold mu for reading. Run closes stopping and then drains with
	// mu held for writing, so every accepted message is processed.
	mu       sync.RWMutex
	inbox    chan message
	stopping chan struct{}
	done     chan struct{}
	seq      atomic.Uint64
	now      func() time.Time

	// Owned by the Run goroutine.
	rebirthSent map[devicestate.Key]struct{}
	lastSeq     map[devicestate.Key]uint64
}

func NewIngestor(cfg IngestConfig, store *devicestate.Store, queue Queue, pub Publisher, m *IngestMetrics, logger *slog.Logger) *Ingestor {
	if cfg.Namespace == "" {
		cfg.Namespace = sparkplug.Namespace
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}

	ing := &Ingestor{
		cfg:         cfg,
		store:       store,
		queue:       queue,
		pub:         pub,
		logger:      logger,
		metrics:     m.withDefaults(),
		inbox:       make(chan message, cfg.BufferSize),
		stopping:    make(chan struct{}),
		done:        make(chan struct{}),
		now:         time.Now,
		rebirthSent: make(map[devicestate.Key]struct{}),
		lastSeq:     make(map[devicestate.Key]uint64),
	}
	// Seeding from the clock keeps row keys unique across restarts.
	ing.seq.Store(uint64(time.Now().UnixNano()))

	return ing
}

// Topic is the wildcard subscription covering the whole namespace.
func (ing *Ingestor) Topic() string {
	return ing.cfg.Namespace + "/#"
}

// Done is closed once Run has drained the inbox and returned.
func (ing *Ingestor) Done() <-chan struct{} {
	return ing.done
}

// Handle queues a raw broker message. It blocks while the inbox is full and
// fails once Run has started shutting down. A nil error means the message
// will be processed.
func (ing *Ingestor) Handle(topic string, payload []byte) error {
	m := message{topic: topic, payload: payload, received: ing.now()}

	ing.mu.RLock()
	defer ing.mu.RUnlock()

	select {
	case <-ing.stopping:
		return errIngestorStopped
	default:
	}

	select {
	case ing.inbox <- m:
		return nil
	case <-ing.stopping:
		return errIngestorStopped
	}
}

// Run consumes messages until ctx is cancelled, then processes whatever is
// still buffered and returns.
func (ing *Ingestor) Run(ctx context.Context) error {
	defer close(ing.done)

	for {
		select {
		case m := <-ing.inbox:
			ing.process(ctx, m)
		case <-ctx.Done():
			close(ing.stopping)
			ing.mu.Lock()
			ing.drain(context.WithoutCancel(ctx))
			ing.mu.Unlock()

			return nil
		}
	}
}

func (ing *Ingestor) drain(ctx context.Context) {
	for {
		select {
		case m := <-ing.inbox:
			ing.process(ctx, m)
		default:
			return
		}
	}
}

func (ing *Ingestor) process(ctx context.Context, m message) {
	ing.metrics.Messages.Add(1)

	topic, err := sparkplug.ParseTopic(m.topic)
	if err != nil {
		ing.metrics.TopicErrors.Add(1)
		ing.logger.Warn("dropping message with invalid topic", slog.String("topic", m.topic), slog.Any("error", err))

		return
	}

	switch {
	case topic.Type == sparkplug.State, topic.Type.IsCommand():
		ing.logger.Debug("ignoring host message", slog.String("topic", m.topic))

		return
	case topic.Type == sparkplug.Unknown:
		ing.metrics.TopicErrors.Add(1)
		ing.logger.Warn("dropping message with unknown type", slog.String("topic", m.topic), slog.Any("error", pkgerrors.ErrInvalidTopic))

		return
	}

	key := devicestate.Key{Group: topic.Group, Node: topic.Node, Device: topic.Device}

	payload, err := sparkplug.Decode(m.payload)
	if err != nil {
		if topic.Type.IsDeath() && ing.cfg.LenientDeath {
			ing.logger.Warn("applying death with undecodable payload", slog.String("topic", m.topic), slog.Any("error", err))
			ing.death(key, m.received)

			return
		}
		ing.metrics.DecodeErrors.Add(1)
		ing.logger.Warn("dropping malformed payload", slog.String("topic", m.topic), slog.Any("error", err))

		return
	}

	at := payload.Timestamp
	if at.IsZero() {
		at = m.received
	}

	ing.checkSeq(ctx, topic, payload)

	switch {
	case topic.Type.IsBirth():
		ing.birth(key, payload.Metrics, at)
	case topic.Type.IsDeath():
		ing.death(key, at)
	case topic.Type.IsData():
		ing.data(ctx, topic, key, payload.Metrics, at)
	}
}

func (ing *Ingestor) birth(key devicestate.Key, metrics []sparkplug.Metric, at time.Time) {
	updates := ing.store.ApplyBirth(key, metrics, at)
	delete(ing.rebirthSent, key)

	ing.logger.Info("device birth", slog.String("device", key.String()), slog.Int("metrics", len(updates)))
	ing.enqueueStatus(key, devicestate.StatusOnline, at)
	for _, u := range updates {
		ing.record(key, u)
	}
}

func (ing *Ingestor) death(key devicestate.Key, at time.Time) {
	for _, k := range ing.store.ApplyDeath(key, at) {
		ing.logger.Info("device death", slog.String("device", k.String()))
		ing.enqueueStatus(k, devicestate.StatusOffline, at)
	}
}

func (ing *Ingestor) data(ctx context.Context, topic sparkplug.Topic, key devicestate.Key, metrics []sparkplug.Metric, at time.Time) {
	if !ing.store.HasAliasMap(key) {
		ing.requestRebirth(ctx, topic, key)
	}

	for _, u := range ing.store.ApplyData(key, metrics, at) {
		ing.record(key, u)
	}
}

func (ing *Ingestor) record(key devicestate.Key, u devicestate.Update) {
	switch {
	case u.Unnamed:
		ing.metrics.Unnamed.Add(1)
		ing.logger.Warn("discarding metric without name or alias",
			slog.String("device", key.String()),
			slog.String("datatype", u.Value.Kind().String()),
		)

		return
	case !u.Resolved:
		ing.metrics.AliasFallbacks.Add(1)
		ing.logger.Warn("storing metric under its alias",
			slog.String("device", key.String()),
			slog.Uint64("alias", u.Alias),
			slog.Any("error", pkgerrors.ErrAliasUnresolved),
		)
	}
	ing.enqueueTag(key, u)
}

// requestRebirth asks the owning edge node to republish its births. It is
// sent at most once per key until that key is born again.
func (ing *Ingestor) requestRebirth(ctx context.Context, topic sparkplug.Topic, key devicestate.Key) {
	if ing.pub == nil {
		return
	}
	if _, ok := ing.rebirthSent[key]; ok {
		return
	}

	payload, err := sparkplug.EncodeRebirth(ing.now())
	if err != nil {
		ing.logger.Error("failed to encode rebirth command", slog.Any("error", err))

		return
	}
	cmdTopic := sparkplug.RebirthTopic(topic.Namespace, topic.Group, topic.Node)
	if err := ing.pub.Publish(ctx, cmdTopic, payload); err != nil {
		ing.logger.Warn("failed to publish rebirth command", slog.String("topic", cmdTopic), slog.Any("error", err))

		return
	}
	ing.rebirthSent[key] = struct{}{}
	ing.metrics.Rebirths.Add(1)
	ing.logger.Info("requested rebirth", slog.String("device", key.String()), slog.String("topic", cmdTopic))
}

// checkSeq tracks the per-node sequence number, which runs across node and
// device messages and wraps at 256. Births reset it.
func (ing *Ingestor) checkSeq(ctx context.Context, topic sparkplug.Topic, payload sparkplug.Payload) {
	if !payload.HasSeq || topic.Type.IsDeath() {
		return
	}
	node := devicestate.Key{Group: topic.Group, Node: topic.Node}

	last, ok := ing.lastSeq[node]
	ing.lastSeq[node] = payload.Seq
	if !ok || topic.Type == sparkplug.NodeBirth {
		return
	}

	want := (last + 1) % seqModulus
	if payload.Seq == want {
		return
	}
	ing.metrics.SeqGaps.Add(1)
	ing.logger.Warn("sparkplug sequence gap",
		slog.String("node", node.String()),
		slog.Uint64("expected", want),
		slog.Uint64("received", payload.Seq),
	)
	if ing.cfg.RebirthOnSeqGap {
		ing.requestRebirth(ctx, topic, node)
	}
}

func (ing *Ingestor) enqueueTag(key devicestate.Key, u devicestate.Update) {
	ing.queue.Enqueue(batcher.TagRecord(query.TagRow{
		Timestamp: u.Timestamp,
		Group:     key.Group,
		Node:      key.Node,
		Device:    key.Device,
		Tag:       u.Name,
		Value:     u.Value.String(),
		DataType:  u.Value.Kind().String(),
		Seq:       ing.seq.Add(1),
	}))
}

func (ing *Ingestor) enqueueStatus(key devicestate.Key, status devicestate.Status, at time.Time) {
	ing.queue.Enqueue(batcher.StatusRecord(query.StatusRow{
		Timestamp: at,
		Group:     key.Group,
		Node:      key.Node,
		Device:    key.Device,
		Status:    status.String(),
		Seq:       ing.seq.Add(1),
	}))
}
