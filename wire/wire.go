// Package wire defines the data model shared by the client
// and the remote store, and its JSON encoding. The store's
// own machinery is out of scope: these types describe only
// what crosses the boundary.
package wire

import (
	"time"

	"github.com/jrife/kite/kv/keys"
)

// Versionstamp is an opaque per-key version token issued by
// the store on every successful mutation. Tokens for one
// key are strictly increasing. The zero value means absent:
// the key does not exist.
type Versionstamp string

// IsZero returns true for the absent versionstamp
func (versionstamp Versionstamp) IsZero() bool {
	return versionstamp == ""
}

// Entry is a key together with its value and versionstamp.
// A nil Value means the key does not exist, in which case
// the versionstamp is zero too.
type Entry struct {
	Key          keys.Key     `json:"key"`
	Value        *Value       `json:"value,omitempty"`
	Versionstamp Versionstamp `json:"versionstamp,omitempty"`
}

// Exists returns true if the entry's key exists in the
// store
func (entry Entry) Exists() bool {
	return entry.Value != nil
}

// Check asserts that a key's versionstamp is unchanged. The
// zero versionstamp asserts that the key is absent.
type Check struct {
	Key          keys.Key     `json:"key"`
	Versionstamp Versionstamp `json:"versionstamp,omitempty"`
}

// MutationOp names a mutation variant
type MutationOp string

const (
	// OpSet replaces the value, optionally with an expiry
	OpSet MutationOp = "set"
	// OpDelete removes the key
	OpDelete MutationOp = "delete"
	// OpSum adds a delta to a big-integer value
	OpSum MutationOp = "sum"
	// OpMax keeps the larger of the stored and given values
	OpMax MutationOp = "max"
	// OpMin keeps the smaller of the stored and given values
	OpMin MutationOp = "min"
	// OpAppend appends values to a list value
	OpAppend MutationOp = "append"
	// OpPrepend prepends values to a list value
	OpPrepend MutationOp = "prepend"
)

// Mutation is one tagged mutation of one key. Which fields
// are meaningful depends on Op: Value for set/sum/max/min,
// Values for append/prepend, Expiry only for set. The
// numeric ops carry big-integer values so the store never
// rounds them through floats.
type Mutation struct {
	Key    keys.Key   `json:"key"`
	Op     MutationOp `json:"op"`
	Value  Value      `json:"value"`
	Values []Value    `json:"values,omitempty"`
	Expiry *time.Time `json:"expiry,omitempty"`
}

// CommitRequest is an all-or-nothing application of checks
// and mutations. Mutations apply in order, repeats on one
// key allowed.
type CommitRequest struct {
	Checks    []Check    `json:"checks,omitempty"`
	Mutations []Mutation `json:"mutations,omitempty"`
}

// CommitResponse reports the outcome of a commit. When
// Applied is false no mutation was applied and no further
// detail is available; the protocol does not say which
// check failed.
type CommitResponse struct {
	Applied      bool         `json:"applied"`
	Versionstamp Versionstamp `json:"versionstamp,omitempty"`
}

// WatchTarget selects the keys a watch observes: a single
// key, or a key plus all keys it covers when Prefix is set.
type WatchTarget struct {
	Key    keys.Key `json:"key"`
	Prefix bool     `json:"prefix,omitempty"`
}

// WatchCursor is the opaque resumption token for watch
// polling. The zero cursor means "from the beginning of
// retained history".
type WatchCursor string

// WatchPollRequest asks for every change to the targets
// since the cursor
type WatchPollRequest struct {
	Targets []WatchTarget `json:"targets"`
	Cursor  WatchCursor   `json:"cursor,omitempty"`
}

// WatchPollResponse carries the changed entries and the
// cursor to poll from next
type WatchPollResponse struct {
	Entries []Entry     `json:"entries,omitempty"`
	Cursor  WatchCursor `json:"cursor"`
}

// WatchStreamRequest opens a persistent change stream over
// the targets. With EmitInitial the stream starts with a
// baseline batch of the targets' current entries, resent
// after every reconnect.
type WatchStreamRequest struct {
	Targets     []WatchTarget `json:"targets"`
	EmitInitial bool          `json:"emitInitial,omitempty"`
}

// WatchBatch is one frame of a watch stream
type WatchBatch struct {
	Entries []Entry `json:"entries"`
}

// EnqueueRequest adds a value to the queue. DelayMs defers
// first delivery. BackoffScheduleMs sets the redelivery
// delays after failed deliveries; once it is exhausted the
// message moves to the dead-letter queue and its value is
// written to the fallback keys, if any.
type EnqueueRequest struct {
	Value             Value      `json:"value"`
	DelayMs           int64      `json:"delayMs,omitempty"`
	BackoffScheduleMs []int64    `json:"backoffScheduleMs,omitempty"`
	FallbackKeys      []keys.Key `json:"fallbackKeys,omitempty"`
}

// EnqueueResponse carries the id of the enqueued message
type EnqueueResponse struct {
	ID string `json:"id"`
}

// QueueMessage is one delivery of a queued value. Attempt
// counts deliveries, starting at 1.
type QueueMessage struct {
	ID      string `json:"id"`
	Value   Value  `json:"value"`
	Attempt int    `json:"attempt"`
}

// DlqMessage is a message that exhausted its redeliveries
type DlqMessage struct {
	ID         string    `json:"id"`
	OriginalID string    `json:"originalId"`
	Value      Value     `json:"value"`
	LastError  string    `json:"lastError,omitempty"`
	Attempt    int       `json:"attempt"`
	CreatedAt  time.Time `json:"createdAt"`
	FailedAt   time.Time `json:"failedAt"`
}

// FilterOp names a list filter comparison
type FilterOp string

const (
	FilterEq  FilterOp = "eq"
	FilterLt  FilterOp = "lt"
	FilterLte FilterOp = "lte"
	FilterGt  FilterOp = "gt"
	FilterGte FilterOp = "gte"
)

// Filter is one clause of a list filter, evaluated by the
// store against a path inside each value. The clause value
// may be the server-time placeholder, which the store
// resolves with its own clock.
type Filter struct {
	Path  string   `json:"path"`
	Op    FilterOp `json:"op"`
	Value Value    `json:"value"`
}

// ListRequest scans the keys covered by Prefix, in key
// order, applying the filters server-side
type ListRequest struct {
	Prefix  keys.Key `json:"prefix"`
	Limit   int      `json:"limit,omitempty"`
	Filters []Filter `json:"filters,omitempty"`
}

// ListResponse carries the matching entries in key order
type ListResponse struct {
	Entries []Entry `json:"entries,omitempty"`
}
