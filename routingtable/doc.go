// Package routingtable implements a keyed, doubly-linked-list data
// source whose every record owns a notification chain of subscribers.
// It is the canonical publisher built atop notifchain: modifying or
// removing a record synchronously notifies every subscriber registered
// on it. A subscriber may register for a record before it exists: a
// data-less placeholder is created, no ADD is replayed, and the first
// AddOrUpdate of that record reaches it as a MOD. A subscriber that
// registers on an already-existing record receives a one-shot replayed ADD.
package routingtable
