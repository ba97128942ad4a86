package domain

import "time"

// ExecutionMetrics is the aggregate view over a configuration's execution
// history for one time window, computed on read from stored records.
type ExecutionMetrics struct {
	From time.Time
	To   time.Time

	Executions  int
	Completed   int
	Failed      int
	SuccessRate float64

	AverageDuration time.Duration

	FilesDiscovered int
	FilesProcessed  int
	FilesPerDay     []DailyCount
}

// DailyCount is one day's discovered-file total.
type DailyCount struct {
	Date  string // "2006-01-02"
	Count int
}
