// Package media instruments media playback for the Causality analytics SDK.
//
// A Session describes one playback of a piece of content. Every Log* call
// updates the session's bookkeeping (playback time, ad and segment tracking,
// QoS, playhead), builds an immutable Event snapshot, hands it to the
// registered Listener and forwards it to the Host as a typed media event,
// as a flattened CustomEvent, or both.
//
// A Session is not safe for concurrent use. Callers drive it from a single
// goroutine (usually the player callback loop).
package media

// SDKVersion is the current version of the media add-on.
const SDKVersion = "0.1.0"

// Int returns a pointer to v. Used to set optional integer fields.
func Int(v int) *int { return &v }

// Int64 returns a pointer to v. Used to set optional millisecond fields.
func Int64(v int64) *int64 { return &v }

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// Bool returns a pointer to v. Used to set Config.LogMediaEvents.
func Bool(v bool) *bool { return &v }
