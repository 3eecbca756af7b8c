package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/google/uuid"

	"github.com/jrife/kite/kv/keys"
	"github.com/jrife/kite/wire"
)

var _ Gateway = (*Fake)(nil)

// errInterrupted simulates a transport failure on a
// persistent stream
var errInterrupted = errors.New("stream interrupted")

// fakeEpoch anchors the fake's virtual clock so
// time-dependent tests are deterministic
var fakeEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeEntry struct {
	value        wire.Value
	versionstamp wire.Versionstamp
	expiry       *time.Time
}

type fakeChange struct {
	seq   uint64
	entry wire.Entry
}

type fakeMessage struct {
	id       string
	value    wire.Value
	attempt  int
	readyAt  time.Time
	backoff  []int64
	fallback []keys.Key
	created  time.Time
	inFlight bool
}

// Fake is an in-memory Gateway for tests. It applies the
// full commit, watch and queue semantics of the remote
// store against a virtual clock that only moves when
// Advance is called.
type Fake struct {
	mu   sync.Mutex
	cond *sync.Cond

	store *treemap.Map // encoded key -> fakeEntry
	seq   uint64
	log   []fakeChange
	now   time.Time

	watchStreams map[string]*fakeWatchStream
	queueStreams map[string]*fakeQueueStream

	messages map[string]*fakeMessage
	order    []string // message ids in enqueue order
	dlq      []wire.DlqMessage

	commits   []wire.CommitRequest
	commitErr error
}

// NewFake creates an empty fake gateway
func NewFake() *Fake {
	fake := &Fake{
		store:        treemap.NewWithStringComparator(),
		now:          fakeEpoch,
		watchStreams: map[string]*fakeWatchStream{},
		queueStreams: map[string]*fakeQueueStream{},
		messages:     map[string]*fakeMessage{},
	}

	fake.cond = sync.NewCond(&fake.mu)

	return fake
}

// Advance moves the virtual clock forward, releasing any
// queue messages whose delay or backoff elapsed
func (fake *Fake) Advance(d time.Duration) {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	fake.now = fake.now.Add(d)
	fake.cond.Broadcast()
}

// FailCommits makes every subsequent Commit return err,
// until called again with nil
func (fake *Fake) FailCommits(err error) {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	fake.commitErr = err
}

// Commits returns every commit request received so far
func (fake *Fake) Commits() []wire.CommitRequest {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	return append([]wire.CommitRequest{}, fake.commits...)
}

// BreakStreams interrupts every open watch and queue
// stream, as a network failure would
func (fake *Fake) BreakStreams() {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	for _, stream := range fake.watchStreams {
		stream.interrupt(errInterrupted)
	}

	for _, stream := range fake.queueStreams {
		stream.interrupt(errInterrupted)
	}

	fake.watchStreams = map[string]*fakeWatchStream{}
	fake.queueStreams = map[string]*fakeQueueStream{}
	fake.cond.Broadcast()
}

func (fake *Fake) versionstamp() wire.Versionstamp {
	return wire.Versionstamp(fmt.Sprintf("%016x", fake.seq))
}

func (fake *Fake) entryLocked(key keys.Key) wire.Entry {
	raw, found := fake.store.Get(keys.EncodeString(key))

	if !found {
		return wire.Entry{Key: key}
	}

	stored := raw.(fakeEntry)

	if stored.expiry != nil && !stored.expiry.After(fake.now) {
		return wire.Entry{Key: key}
	}

	value := stored.value

	return wire.Entry{Key: key, Value: &value, Versionstamp: stored.versionstamp}
}

// Get implements Gateway.Get
func (fake *Fake) Get(ctx context.Context, key keys.Key) (wire.Entry, error) {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	return fake.entryLocked(key), nil
}

// BatchGet implements Gateway.BatchGet
func (fake *Fake) BatchGet(ctx context.Context, ks []keys.Key) ([]wire.Entry, error) {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	entries := make([]wire.Entry, len(ks))

	for i, key := range ks {
		entries[i] = fake.entryLocked(key)
	}

	return entries, nil
}

// Commit implements Gateway.Commit
func (fake *Fake) Commit(ctx context.Context, request wire.CommitRequest) (wire.CommitResponse, error) {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	fake.commits = append(fake.commits, request)

	if fake.commitErr != nil {
		return wire.CommitResponse{}, fake.commitErr
	}

	for _, check := range request.Checks {
		if fake.entryLocked(check.Key).Versionstamp != check.Versionstamp {
			return wire.CommitResponse{Applied: false}, nil
		}
	}

	versionstamp := wire.Versionstamp(fmt.Sprintf("%016x", fake.seq+1))
	staged := map[string]fakeStaged{}
	changed := map[string]keys.Key{}

	// Mutations are staged first so a validation failure
	// anywhere leaves the store untouched
	for _, mutation := range request.Mutations {
		if err := fake.stageLocked(mutation, versionstamp, staged); err != nil {
			return wire.CommitResponse{}, err
		}

		changed[keys.EncodeString(mutation.Key)] = mutation.Key
	}

	fake.seq++

	for encoded, entry := range staged {
		if entry.deleted {
			fake.store.Remove(encoded)

			continue
		}

		fake.store.Put(encoded, entry.entry)
	}

	var batch wire.WatchBatch

	for _, key := range changed {
		entry := fake.entryLocked(key)
		fake.log = append(fake.log, fakeChange{seq: fake.seq, entry: entry})
		batch.Entries = append(batch.Entries, entry)
	}

	for _, stream := range fake.watchStreams {
		stream.publish(batch)
	}

	return wire.CommitResponse{Applied: true, Versionstamp: versionstamp}, nil
}

// fakeStaged is one key's pending state within a commit
type fakeStaged struct {
	entry   fakeEntry
	deleted bool
}

// stagedEntryLocked reads a key through the commit's staged
// writes, so later mutations in one commit observe earlier
// ones
func (fake *Fake) stagedEntryLocked(key keys.Key, staged map[string]fakeStaged) wire.Entry {
	entry, found := staged[keys.EncodeString(key)]

	if !found {
		return fake.entryLocked(key)
	}

	if entry.deleted {
		return wire.Entry{Key: key}
	}

	if entry.entry.expiry != nil && !entry.entry.expiry.After(fake.now) {
		return wire.Entry{Key: key}
	}

	value := entry.entry.value

	return wire.Entry{Key: key, Value: &value, Versionstamp: entry.entry.versionstamp}
}

func (fake *Fake) stageLocked(mutation wire.Mutation, versionstamp wire.Versionstamp, staged map[string]fakeStaged) error {
	encoded := keys.EncodeString(mutation.Key)
	current := fake.stagedEntryLocked(mutation.Key, staged)

	switch mutation.Op {
	case wire.OpSet:
		staged[encoded] = fakeStaged{entry: fakeEntry{value: mutation.Value, versionstamp: versionstamp, expiry: mutation.Expiry}}
	case wire.OpDelete:
		staged[encoded] = fakeStaged{deleted: true}
	case wire.OpSum, wire.OpMax, wire.OpMin:
		operand, ok := mutation.Value.IsBigInt()

		if !ok {
			return fmt.Errorf("%s operand is not a big integer", mutation.Op)
		}

		stored := big.NewInt(0)

		if current.Exists() {
			i, ok := current.Value.IsBigInt()

			if !ok {
				return fmt.Errorf("stored value at %s is not a big integer", mutation.Key)
			}

			stored = i
		}

		switch mutation.Op {
		case wire.OpSum:
			stored.Add(stored, operand)
		case wire.OpMax:
			if !current.Exists() || operand.Cmp(stored) > 0 {
				stored = operand
			}
		case wire.OpMin:
			if !current.Exists() || operand.Cmp(stored) < 0 {
				stored = operand
			}
		}

		staged[encoded] = fakeStaged{entry: fakeEntry{value: wire.BigInt(stored), versionstamp: versionstamp}}
	case wire.OpAppend, wire.OpPrepend:
		var list []json.RawMessage

		if current.Exists() {
			if err := current.Value.Unmarshal(&list); err != nil {
				return fmt.Errorf("stored value at %s is not a list: %s", mutation.Key, err)
			}
		}

		var added []json.RawMessage

		for _, value := range mutation.Values {
			raw, err := json.Marshal(value)

			if err != nil {
				return fmt.Errorf("could not marshal list element: %s", err)
			}

			added = append(added, raw)
		}

		if mutation.Op == wire.OpAppend {
			list = append(list, added...)
		} else {
			list = append(added, list...)
		}

		value, err := wire.Marshal(list)

		if err != nil {
			return fmt.Errorf("could not marshal list: %s", err)
		}

		staged[encoded] = fakeStaged{entry: fakeEntry{value: value, versionstamp: versionstamp}}
	default:
		return fmt.Errorf("unknown mutation op %q", mutation.Op)
	}

	return nil
}

// List implements Gateway.List. Filters other than eq are
// not evaluated by the fake.
func (fake *Fake) List(ctx context.Context, request wire.ListRequest) (wire.ListResponse, error) {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	var response wire.ListResponse

	fake.store.Each(func(rawKey interface{}, rawEntry interface{}) {
		if request.Limit > 0 && len(response.Entries) >= request.Limit {
			return
		}

		key, err := keys.Decode([]byte(rawKey.(string)))

		if err != nil {
			return
		}

		if !keys.Covers(request.Prefix, key) {
			return
		}

		entry := fake.entryLocked(key)

		if !entry.Exists() || !fake.matchesLocked(entry, request.Filters) {
			return
		}

		response.Entries = append(response.Entries, entry)
	})

	return response, nil
}

func (fake *Fake) matchesLocked(entry wire.Entry, filters []wire.Filter) bool {
	for _, filter := range filters {
		if filter.Op != wire.FilterEq {
			continue
		}

		var doc map[string]json.RawMessage

		if err := entry.Value.Unmarshal(&doc); err != nil {
			return false
		}

		raw, found := doc[filter.Path]

		if !found {
			return false
		}

		var field wire.Value

		if err := json.Unmarshal(raw, &field); err != nil {
			return false
		}

		if !field.Equal(filter.Value) {
			return false
		}
	}

	return true
}

func matchesTargets(key keys.Key, targets []wire.WatchTarget) bool {
	for _, target := range targets {
		if target.Prefix && keys.Covers(target.Key, key) {
			return true
		}

		if !target.Prefix && keys.Equal(target.Key, key) {
			return true
		}
	}

	return false
}

// WatchPoll implements Gateway.WatchPoll
func (fake *Fake) WatchPoll(ctx context.Context, request wire.WatchPollRequest) (wire.WatchPollResponse, error) {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	var since uint64

	if request.Cursor != "" {
		if _, err := fmt.Sscanf(string(request.Cursor), "%d", &since); err != nil {
			return wire.WatchPollResponse{}, fmt.Errorf("malformed cursor %q", request.Cursor)
		}
	}

	// Latest change per key since the cursor, in change order
	latest := map[string]int{}
	var changed []wire.Entry

	for _, change := range fake.log {
		if change.seq <= since {
			continue
		}

		if !matchesTargets(change.entry.Key, request.Targets) {
			continue
		}

		encoded := keys.EncodeString(change.entry.Key)

		if i, found := latest[encoded]; found {
			changed[i] = change.entry

			continue
		}

		latest[encoded] = len(changed)
		changed = append(changed, change.entry)
	}

	return wire.WatchPollResponse{
		Entries: changed,
		Cursor:  wire.WatchCursor(fmt.Sprintf("%d", fake.seq)),
	}, nil
}

type fakeWatchStream struct {
	mu      sync.Mutex
	targets []wire.WatchTarget
	pending []wire.WatchBatch
	batch   wire.WatchBatch
	err     error
	done    bool
	wake    chan struct{}
	closeFn func()
}

// publish queues the parts of batch that match the
// stream's targets
func (stream *fakeWatchStream) publish(batch wire.WatchBatch) {
	var matching wire.WatchBatch

	for _, entry := range batch.Entries {
		if matchesTargets(entry.Key, stream.targets) {
			matching.Entries = append(matching.Entries, entry)
		}
	}

	if len(matching.Entries) == 0 {
		return
	}

	stream.mu.Lock()
	defer stream.mu.Unlock()

	if stream.done {
		return
	}

	stream.pending = append(stream.pending, matching)

	select {
	case stream.wake <- struct{}{}:
	default:
	}
}

func (stream *fakeWatchStream) interrupt(err error) {
	stream.mu.Lock()
	defer stream.mu.Unlock()

	if stream.done {
		return
	}

	stream.err = err
	stream.done = true

	select {
	case stream.wake <- struct{}{}:
	default:
	}
}

// Next implements WatchStream.Next
func (stream *fakeWatchStream) Next() bool {
	for {
		stream.mu.Lock()

		if len(stream.pending) > 0 {
			stream.batch = stream.pending[0]
			stream.pending = stream.pending[1:]
			stream.mu.Unlock()

			return true
		}

		if stream.done {
			stream.mu.Unlock()

			return false
		}

		stream.mu.Unlock()
		<-stream.wake
	}
}

// Batch implements WatchStream.Batch
func (stream *fakeWatchStream) Batch() wire.WatchBatch {
	return stream.batch
}

// Error implements WatchStream.Error
func (stream *fakeWatchStream) Error() error {
	stream.mu.Lock()
	defer stream.mu.Unlock()

	return stream.err
}

// Close implements WatchStream.Close
func (stream *fakeWatchStream) Close() error {
	stream.mu.Lock()

	if !stream.done {
		stream.done = true

		select {
		case stream.wake <- struct{}{}:
		default:
		}
	}

	stream.mu.Unlock()

	stream.closeFn()

	return nil
}

// WatchStream implements Gateway.WatchStream
func (fake *Fake) WatchStream(ctx context.Context, request wire.WatchStreamRequest) (WatchStream, error) {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	id := uuid.New().String()
	stream := &fakeWatchStream{targets: request.Targets, wake: make(chan struct{}, 1)}

	stream.closeFn = func() {
		fake.mu.Lock()
		defer fake.mu.Unlock()

		delete(fake.watchStreams, id)
	}

	if request.EmitInitial {
		var baseline wire.WatchBatch

		for _, target := range request.Targets {
			if !target.Prefix {
				baseline.Entries = append(baseline.Entries, fake.entryLocked(target.Key))

				continue
			}

			fake.store.Each(func(rawKey interface{}, rawEntry interface{}) {
				key, err := keys.Decode([]byte(rawKey.(string)))

				if err != nil || !keys.Covers(target.Key, key) {
					return
				}

				if entry := fake.entryLocked(key); entry.Exists() {
					baseline.Entries = append(baseline.Entries, entry)
				}
			})
		}

		stream.publish(baseline)
	}

	fake.watchStreams[id] = stream

	return stream, nil
}

// Enqueue implements Gateway.Enqueue
func (fake *Fake) Enqueue(ctx context.Context, request wire.EnqueueRequest) (wire.EnqueueResponse, error) {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	message := &fakeMessage{
		id:       uuid.New().String(),
		value:    request.Value,
		readyAt:  fake.now.Add(time.Duration(request.DelayMs) * time.Millisecond),
		backoff:  request.BackoffScheduleMs,
		fallback: request.FallbackKeys,
		created:  fake.now,
	}

	fake.messages[message.id] = message
	fake.order = append(fake.order, message.id)
	fake.cond.Broadcast()

	return wire.EnqueueResponse{ID: message.id}, nil
}

// nextReadyLocked pops the next deliverable message,
// marking it in flight and counting the delivery attempt
func (fake *Fake) nextReadyLocked() *wire.QueueMessage {
	for _, id := range fake.order {
		message, found := fake.messages[id]

		if !found || message.inFlight || message.readyAt.After(fake.now) {
			continue
		}

		message.inFlight = true
		message.attempt++

		return &wire.QueueMessage{ID: message.id, Value: message.value, Attempt: message.attempt}
	}

	return nil
}

// QueuePoll implements Gateway.QueuePoll
func (fake *Fake) QueuePoll(ctx context.Context) (*wire.QueueMessage, error) {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	return fake.nextReadyLocked(), nil
}

type fakeQueueStream struct {
	fake    *Fake
	id      string
	message wire.QueueMessage
	err     error
	done    bool
}

func (stream *fakeQueueStream) interrupt(err error) {
	stream.err = err
	stream.done = true
}

// Next implements QueueStream.Next
func (stream *fakeQueueStream) Next() bool {
	stream.fake.mu.Lock()
	defer stream.fake.mu.Unlock()

	for {
		if stream.done {
			return false
		}

		if message := stream.fake.nextReadyLocked(); message != nil {
			stream.message = *message

			return true
		}

		stream.fake.cond.Wait()
	}
}

// Message implements QueueStream.Message
func (stream *fakeQueueStream) Message() wire.QueueMessage {
	stream.fake.mu.Lock()
	defer stream.fake.mu.Unlock()

	return stream.message
}

// Error implements QueueStream.Error
func (stream *fakeQueueStream) Error() error {
	stream.fake.mu.Lock()
	defer stream.fake.mu.Unlock()

	return stream.err
}

// Close implements QueueStream.Close
func (stream *fakeQueueStream) Close() error {
	stream.fake.mu.Lock()
	defer stream.fake.mu.Unlock()

	stream.done = true
	delete(stream.fake.queueStreams, stream.id)
	stream.fake.cond.Broadcast()

	return nil
}

// QueueListen implements Gateway.QueueListen
func (fake *Fake) QueueListen(ctx context.Context) (QueueStream, error) {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	stream := &fakeQueueStream{fake: fake, id: uuid.New().String()}
	fake.queueStreams[stream.id] = stream

	return stream, nil
}

// Ack implements Gateway.Ack
func (fake *Fake) Ack(ctx context.Context, id string) error {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	message, found := fake.messages[id]

	if !found || !message.inFlight {
		return ErrNoSuchMessage
	}

	delete(fake.messages, id)

	return nil
}

// Nack implements Gateway.Nack
func (fake *Fake) Nack(ctx context.Context, id string) error {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	message, found := fake.messages[id]

	if !found || !message.inFlight {
		return ErrNoSuchMessage
	}

	message.inFlight = false

	// attempt counts the delivery that just failed
	if message.attempt-1 < len(message.backoff) {
		message.readyAt = fake.now.Add(time.Duration(message.backoff[message.attempt-1]) * time.Millisecond)
		fake.cond.Broadcast()

		return nil
	}

	// Schedule exhausted: write fallback keys and move the
	// message to the dead-letter queue
	delete(fake.messages, id)

	if len(message.fallback) > 0 {
		fake.seq++
		versionstamp := fake.versionstamp()
		var batch wire.WatchBatch

		for _, key := range message.fallback {
			fake.store.Put(keys.EncodeString(key), fakeEntry{value: message.value, versionstamp: versionstamp})
			entry := fake.entryLocked(key)
			fake.log = append(fake.log, fakeChange{seq: fake.seq, entry: entry})
			batch.Entries = append(batch.Entries, entry)
		}

		for _, stream := range fake.watchStreams {
			stream.publish(batch)
		}
	}

	fake.dlq = append(fake.dlq, wire.DlqMessage{
		ID:         uuid.New().String(),
		OriginalID: message.id,
		Value:      message.value,
		LastError:  "delivery failed",
		Attempt:    message.attempt,
		CreatedAt:  message.created,
		FailedAt:   fake.now,
	})

	return nil
}

// ListDLQ implements Gateway.ListDLQ
func (fake *Fake) ListDLQ(ctx context.Context) ([]wire.DlqMessage, error) {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	return append([]wire.DlqMessage{}, fake.dlq...), nil
}

// GetDLQ implements Gateway.GetDLQ
func (fake *Fake) GetDLQ(ctx context.Context, id string) (wire.DlqMessage, error) {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	for _, message := range fake.dlq {
		if message.ID == id {
			return message, nil
		}
	}

	return wire.DlqMessage{}, ErrNoSuchMessage
}

// RequeueDLQ implements Gateway.RequeueDLQ
func (fake *Fake) RequeueDLQ(ctx context.Context, id string) error {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	for i, dlqMessage := range fake.dlq {
		if dlqMessage.ID != id {
			continue
		}

		fake.dlq = append(fake.dlq[:i], fake.dlq[i+1:]...)

		message := &fakeMessage{
			id:      dlqMessage.OriginalID,
			value:   dlqMessage.Value,
			readyAt: fake.now,
			created: fake.now,
		}

		fake.messages[message.id] = message
		fake.order = append(fake.order, message.id)
		fake.cond.Broadcast()

		return nil
	}

	return ErrNoSuchMessage
}

// DeleteDLQ implements Gateway.DeleteDLQ
func (fake *Fake) DeleteDLQ(ctx context.Context, id string) error {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	for i, message := range fake.dlq {
		if message.ID == id {
			fake.dlq = append(fake.dlq[:i], fake.dlq[i+1:]...)

			return nil
		}
	}

	return ErrNoSuchMessage
}

// PurgeDLQ implements Gateway.PurgeDLQ
func (fake *Fake) PurgeDLQ(ctx context.Context) error {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	fake.dlq = nil

	return nil
}
