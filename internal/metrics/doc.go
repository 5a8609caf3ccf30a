// Package metrics holds the per-session state machines that turn a stream of
// GPS fixes into live activity figures. None of the types here perform I/O or
// locking: a tracking session owns one instance of each and serializes access.
package metrics
