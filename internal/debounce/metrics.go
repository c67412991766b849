package debounce

// Metrics receives debounce lifecycle events. All methods must be cheap and
// safe for concurrent use.
type Metrics interface {
	MessageIngested(channel string)
	TimerStarted()
	BatchProcessed(size int)
	EmptyDrain()
	DrainFailed()
	ProcessorFailed()
	CycleRescheduled()
	TimerRetired()
}

type noopMetrics struct{}

func (noopMetrics) MessageIngested(string) {}
func (noopMetrics) TimerStarted()          {}
func (noopMetrics) BatchProcessed(int)     {}
func (noopMetrics) EmptyDrain()            {}
func (noopMetrics) DrainFailed()           {}
func (noopMetrics) ProcessorFailed()       {}
func (noopMetrics) CycleRescheduled()      {}
func (noopMetrics) TimerRetired()          {}
