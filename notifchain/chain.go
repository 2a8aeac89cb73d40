package notifchain

import (
	"bytes"
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// maxChainName and maxKeySize mirror the original's MAX_NOTIFI_CHAIN_NAME
// and MAX_NOTIFI_KEY_SIZE bounds: the chain name is truncated on
// overflow (a resource-shaping failure, §4.6), while an oversize key is
// a programmer error and is rejected by panic (§4.5's precondition,
// §7's class-1 taxonomy).
const (
	maxChainName = 65
	maxKeySize   = 128
)

// Op identifies the kind of update a Publication carries.
type Op int

const (
	OpUnknown Op = iota
	OpSub
	OpAdd
	OpMod
	OpDel
)

// String renders the op code as an upper-case name ("SUB", "ADD", ...).
func (o Op) String() string {
	switch o {
	case OpSub:
		return "SUB"
	case OpAdd:
		return "ADD"
	case OpMod:
		return "MOD"
	case OpDel:
		return "DEL"
	default:
		return "UNKNOWN"
	}
}

// Publication is the typed payload a Chain hands to every matching
// subscriber on Invoke. It replaces a raw (pointer, size) pair: Payload
// carries whatever the publisher wants to send, and its type is a
// contract between the publisher and its subscribers.
type Publication struct {
	Op      Op
	Payload any
}

// Callback is a subscriber's notification handler. subID is the value
// returned from the Register call that installed it, letting a
// subscriber distinguish which of its own registrations fired.
type Callback func(pub Publication, subID uint32)

type entry struct {
	subID    uint32
	key      []byte
	isKeySet bool
	cb       Callback
}

// Chain is a named, ordered sequence of subscriber callbacks. A zero
// Chain is not usable; construct one with New. Chain is safe for
// concurrent use: Invoke holds the chain locked for the full iteration,
// so subscriber callbacks run strictly in registration order and never
// overlap with a concurrent Register or Invoke.
type Chain struct {
	name string

	mu      sync.Mutex
	entries list.List
	nextSub uint32
	log     zerolog.Logger
}

// ChainOption configures a Chain at construction time.
type ChainOption func(*Chain)

// WithChainLogger attaches a structured logger to the chain. The
// default is a no-op logger.
func WithChainLogger(l zerolog.Logger) ChainOption {
	return func(c *Chain) { c.log = l }
}

// New allocates an empty, named notification chain. name is truncated to
// maxChainName bytes on overflow, matching the bounded chain name the
// original always copies with strncpy.
func New(name string, opts ...ChainOption) *Chain {
	if len(name) > maxChainName {
		name = name[:maxChainName]
	}
	c := &Chain{name: name, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the chain's name.
func (c *Chain) Name() string { return c.name }

// Register appends a new subscription to the chain and returns the
// subscriber id assigned to it. key is the subscriber's match key; pass
// nil for a wildcard subscription that fires on every Invoke regardless
// of the key the publisher supplies. Registration order determines
// callback invocation order. Register panics if key is longer than
// maxKeySize bytes: an oversize key is a programmer error, not a
// recoverable condition.
func (c *Chain) Register(key []byte, cb Callback) uint32 {
	if cb == nil {
		panic("notifchain: nil callback")
	}
	if len(key) > maxKeySize {
		panic(fmt.Sprintf("notifchain: key size %d exceeds maximum of %d", len(key), maxKeySize))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := atomic.AddUint32(&c.nextSub, 1)
	e := &entry{subID: id, cb: cb}
	if key != nil {
		e.key = append([]byte(nil), key...)
		e.isKeySet = true
	}
	c.entries.PushBack(e)
	c.log.Debug().Str("chain", c.name).Uint32("sub_id", id).Msg("notifchain: registered")
	return id
}

// Invoke fires every subscriber callback whose key matches, passing pub
// and each entry's subscriber id, in registration order.
//
// Matching follows the chain's one asymmetric rule: a subscription
// fires unconditionally (as a wildcard would) unless the publisher
// supplies a non-empty key AND the subscription was itself registered
// with a key of the exact same length — only then are the key bytes
// compared, and the callback fires solely on an exact match. A key
// whose length differs from the subscription's registered key length
// therefore still fires, exactly like a wildcard; only a same-length,
// differing-bytes key is filtered out.
//
// Invoke panics if key is longer than maxKeySize bytes.
func (c *Chain) Invoke(pub Publication, key []byte) {
	if len(key) > maxKeySize {
		panic(fmt.Sprintf("notifchain: key size %d exceeds maximum of %d", len(key), maxKeySize))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for el := c.entries.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)

		isWildcardMatch := !(len(key) != 0 && e.isKeySet && len(e.key) == len(key))
		if isWildcardMatch || bytes.Equal(e.key, key) {
			e.cb(pub, e.subID)
		}
	}
}

// Clear removes every subscription from the chain.
func (c *Chain) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Init()
}

// Len reports the number of currently registered subscriptions.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
