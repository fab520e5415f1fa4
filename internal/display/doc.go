// Package display reports whether an external display is attached and
// turns changes in that answer into events.
//
// A Source answers the question on demand. Three are provided: DRMSource
// reads Linux DRM connector status from sysfs, MQTTSource follows a state
// topic published by another host, and ManualSource is set directly (HTTP
// API). The Watcher probes a Source on a timer and on Trigger, and emits an
// Event only when the answer flips. The first answer is the baseline and
// never produces an Event.
package display
