package routingtable

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ahmedgublan/threadkit/notifchain"
)

// Bounded field sizes the original enforces with strncpy against
// MAX_IP_SIZE and MAX_INTERFACE_NAME: Destination and Gateway are both
// address strings sharing the same bound, OutInterface its own. Fields
// are truncated on overflow, not rejected — a resource-shaping failure,
// not a programmer error (§4.6).
const (
	maxAddressLen   = 16
	maxInterfaceLen = 32
)

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// Key identifies a record: a destination string paired with a prefix
// mask. Two keys are equal iff both fields are equal. Destination is
// truncated to maxAddressLen bytes by every Table method that accepts
// a Key, so two keys differing only beyond that bound collide.
type Key struct {
	Destination string
	Mask        uint8
}

func (k Key) normalized() Key {
	k.Destination = truncate(k.Destination, maxAddressLen)
	return k
}

// String renders a Key in CIDR-like notation, for logging.
func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.Destination, k.Mask)
}

// Record is a point-in-time, detached copy of a table entry's data
// fields. It carries no reference back into the table or its
// notification chain.
type Record struct {
	Key          Key
	Gateway      string
	OutInterface string
}

// PublishRateLimiter is the narrow interface routingtable needs from a
// burst-rate limiter: go-catrate's *catrate.Limiter satisfies it as-is.
// A Table with no configured limiter never calls it, and publishing is
// never gated by it even when configured — Allow is consulted purely
// to log an observability warning on a burst, never to drop or delay
// a notification.
type PublishRateLimiter interface {
	Allow(category any) (next time.Time, ok bool)
}

type node struct {
	key          Key
	gateway      string
	outInterface string
	chain        *notifchain.Chain
	elem         *list.Element
}

// Table is a keyed data source: each record owns a notification chain
// that fires synchronously on modification and deletion. Table is safe
// for concurrent use.
type Table struct {
	mu    sync.Mutex
	order list.List
	byKey map[Key]*node

	log          zerolog.Logger
	publishLimit PublishRateLimiter
}

// TableOption configures a Table at construction time.
type TableOption func(*Table)

// WithTableLogger attaches a structured logger to the table. The
// default is a no-op logger.
func WithTableLogger(l zerolog.Logger) TableOption {
	return func(t *Table) { t.log = l }
}

// WithPublishRateLimiter attaches a burst-rate observer to the table's
// AddOrUpdate/Delete publications. It never gates publishing, only
// logs a warning when a burst is observed.
func WithPublishRateLimiter(lim PublishRateLimiter) TableOption {
	return func(t *Table) { t.publishLimit = lim }
}

// New allocates an empty table.
func New(opts ...TableOption) *Table {
	t := &Table{
		byKey: make(map[Key]*node),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Lookup fetches the record for key, if present. A record created only
// as a subscription placeholder (never populated by AddOrUpdate) is
// still returned, with empty Gateway/OutInterface fields, mirroring the
// original data source's find-by-key semantics.
func (t *Table) Lookup(key Key) (Record, bool) {
	key = key.normalized()
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.byKey[key]
	if !ok {
		return Record{}, false
	}
	return recordOf(n), true
}

// AddOrUpdate creates key's record if absent (inserting it as the new
// head of iteration order), or updates an existing one, then
// synchronously notifies every subscriber on that record's chain with
// an OpMod publication carrying the resulting Record. gateway and
// outInterface are truncated to maxAddressLen/maxInterfaceLen bytes on
// overflow before being stored.
func (t *Table) AddOrUpdate(key Key, gateway, outInterface string) Record {
	key = key.normalized()
	t.mu.Lock()
	n := t.addOrUpdateLocked(key, &gateway, &outInterface)
	rec := recordOf(n)
	chain := n.chain
	t.mu.Unlock()

	t.observePublish("mod")
	chain.Invoke(notifchain.Publication{Op: notifchain.OpMod, Payload: rec}, nil)
	return rec
}

// addOrUpdateLocked is the shared creation/update path behind both
// AddOrUpdate and RegisterForNotification's placeholder creation: gw
// and oif of nil mean "no data supplied," matching the original's
// NULL-means-absent convention, so a subscriber registering interest
// in a not-yet-existing record creates a placeholder without data and
// without triggering a Mod notification.
func (t *Table) addOrUpdateLocked(key Key, gw, oif *string) *node {
	n, exists := t.byKey[key]
	if !exists {
		n = &node{key: key, chain: notifchain.New(key.String())}
		n.elem = t.order.PushFront(n)
		t.byKey[key] = n
		t.log.Debug().Stringer("key", key).Msg("routingtable: new record")
	}
	if gw != nil {
		n.gateway = truncate(*gw, maxAddressLen)
	}
	if oif != nil {
		n.outInterface = truncate(*oif, maxInterfaceLen)
	}
	return n
}

// Delete removes key's record, synchronously notifying every
// subscriber on its chain with an OpDel publication before the chain
// itself is torn down. Reports whether a record existed.
func (t *Table) Delete(key Key) bool {
	key = key.normalized()
	t.mu.Lock()
	n, ok := t.byKey[key]
	if !ok {
		t.mu.Unlock()
		return false
	}
	delete(t.byKey, key)
	t.order.Remove(n.elem)
	rec := recordOf(n)
	chain := n.chain
	t.mu.Unlock()

	t.observePublish("del")
	chain.Invoke(notifchain.Publication{Op: notifchain.OpDel, Payload: rec}, nil)
	chain.Clear()
	return true
}

// RegisterForNotification subscribes cb to key's record. If the record
// does not yet exist, a data-less placeholder is created so that a
// later AddOrUpdate can find and populate it; if the record already
// existed (populated or not), cb is immediately replayed once with an
// OpAdd publication, matching the "late subscriber catches up"
// behaviour of the original.
func (t *Table) RegisterForNotification(key Key, cb notifchain.Callback) uint32 {
	key = key.normalized()
	t.mu.Lock()
	_, preexisted := t.byKey[key]
	n := t.addOrUpdateLocked(key, nil, nil)
	subID := n.chain.Register(nil, cb)
	rec := recordOf(n)
	t.mu.Unlock()

	if preexisted {
		cb(notifchain.Publication{Op: notifchain.OpAdd, Payload: rec}, subID)
	}
	return subID
}

// Snapshot returns every record currently in the table, including
// data-less subscription placeholders, in iteration
// (most-recently-added-first) order.
func (t *Table) Snapshot() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Record, 0, t.order.Len())
	for el := t.order.Front(); el != nil; el = el.Next() {
		out = append(out, recordOf(el.Value.(*node)))
	}
	return out
}

func recordOf(n *node) Record {
	return Record{Key: n.key, Gateway: n.gateway, OutInterface: n.outInterface}
}

func (t *Table) observePublish(category string) {
	if t.publishLimit == nil {
		return
	}
	if _, ok := t.publishLimit.Allow(category); !ok {
		t.log.Warn().Str("category", category).Msg("routingtable: publish burst rate exceeded")
	}
}
