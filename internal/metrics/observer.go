package metrics

type HubObserver interface {
	IncOnline()
	DecOnline()
	RecordPush()
	ObservePushLatency(duration float64)
}
