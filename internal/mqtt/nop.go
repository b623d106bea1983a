package mqtt

import "github.com/grdaneault/hydration-helper/internal/logic"

// NopPublisher discards everything. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishWeight(WeightReading) error { return nil }
func (NopPublisher) Publish(logic.Event) error         { return nil }
func (NopPublisher) PublishSystem(SystemEvent) error   { return nil }
func (NopPublisher) Close() error                      { return nil }

// IsConnected always reports false.
func (NopPublisher) IsConnected() bool { return false }

// Buffered always reports zero; nothing is kept.
func (NopPublisher) Buffered() int { return 0 }
