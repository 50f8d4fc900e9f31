package metrics

// Series used across wabridge. Labelled families are exposed as functions so
// callers cannot misspell label values inline.

var (
	WebhookErrors    = Collector.Counter("webhook_errors_total", "Webhook requests answered with an error status", "")
	DispatchInFlight = Collector.Gauge("dispatch_inflight", "Dispatch tasks currently running or waiting for a slot", "")
	ModelLatency     = Collector.Histogram("model_latency_seconds", "Language model request latency in seconds", "",
		[]float64{0.5, 1, 2, 5, 10, 30, 60})
)

// WebhookEvents counts inbound webhook payloads by kind: message, status,
// duplicate or ignored.
func WebhookEvents(kind string) *Counter {
	return Collector.Counter("webhook_events_total", "Inbound webhook payloads by kind", `kind="`+kind+`"`)
}

// Dispatches counts finished dispatch tasks by result: ok, failed, panic or dropped.
func Dispatches(result string) *Counter {
	return Collector.Counter("dispatch_total", "Finished dispatch tasks by result", `result="`+result+`"`)
}

// Sends counts outbound provider sends by result: delivered or failed.
func Sends(result string) *Counter {
	return Collector.Counter("send_total", "Outbound provider sends by result", `result="`+result+`"`)
}

// ModelRequests counts language model calls by result: ok or error.
func ModelRequests(result string) *Counter {
	return Collector.Counter("model_requests_total", "Language model requests by result", `result="`+result+`"`)
}
