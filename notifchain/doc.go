// Package notifchain implements a named, ordered chain of subscriber
// callbacks, invoked synchronously and in registration order by a
// publisher. Each subscription is either keyed (matched against the
// publisher's key by exact byte comparison) or a wildcard (always
// fires), following the asymmetric matching rule documented on Chain.Invoke.
package notifchain
