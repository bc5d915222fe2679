// Package metrics defines the Prometheus collectors of the analysis engine.
package metrics

// Run status label values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Label names.
const (
	LabelStatus    = "status"
	LabelCategory  = "category"
	LabelComponent = "component"
	LabelResult    = "result"
	LabelEvent     = "event"
)
