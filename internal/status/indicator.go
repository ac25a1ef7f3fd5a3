package status

import "github.com/panelfs/panelfs/internal/events"

// BusIndicator publishes every status as an events.StatusChangedEvent.
type BusIndicator struct {
	Bus *events.EventBus
}

// ShowStatus implements Indicator.
func (b BusIndicator) ShowStatus(s Status) {
	b.Bus.PublishStatus(s.Text, s.Tooltip, s.PanelLinkVisible)
}

// IndicatorFunc adapts a function to Indicator.
type IndicatorFunc func(Status)

// ShowStatus implements Indicator.
func (f IndicatorFunc) ShowStatus(s Status) { f(s) }
