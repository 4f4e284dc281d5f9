// Package metrics records watch-loop and preview activity. Components take a
// Recorder; NoopRecorder is the default so callers never check for nil.
package metrics

import "time"

type Recorder interface {
	BuildFinished(mode string, ok bool, d time.Duration)
	EventDebounced()
	EventIgnored()
	NotificationDropped()
	NotificationPublished()
	SubscribersChanged(n int)
}

type NoopRecorder struct{}

func (NoopRecorder) BuildFinished(string, bool, time.Duration) {}
func (NoopRecorder) EventDebounced()                           {}
func (NoopRecorder) EventIgnored()                             {}
func (NoopRecorder) NotificationDropped()                      {}
func (NoopRecorder) NotificationPublished()                    {}
func (NoopRecorder) SubscribersChanged(int)                    {}
