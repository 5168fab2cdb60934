package domain

// ProgressEntry is the live position of one job, in whole seconds.
// TotalSeconds of 0 means the duration is unknown.
type ProgressEntry struct {
	Label          string `json:"label"`
	TotalSeconds   int    `json:"total_seconds"`
	CurrentSeconds int    `json:"current_seconds"`
}

// Percent returns current*100/total, 0 when the total is unknown, capped at 100.
func (e ProgressEntry) Percent() int {
	if e.TotalSeconds <= 0 {
		return 0
	}
	p := e.CurrentSeconds * 100 / e.TotalSeconds
	if p > 100 {
		return 100
	}
	return p
}
