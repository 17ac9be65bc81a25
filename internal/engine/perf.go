package engine

import "time"

// Estimate is the expected drain time for a burst of requests.
type Estimate struct {
	Employees int           `json:"employees"`
	BatchSize int           `json:"batch_size"`
	Interval  time.Duration `json:"interval"`
	Cycles    int           `json:"cycles"`
	Total     time.Duration `json:"total"`
	AvgWait   time.Duration `json:"avg_wait"`
	MaxWait   time.Duration `json:"max_wait"`
}

// Load is one row of an estimate grid.
type Load struct {
	Employees int
	BatchSize int
}

// DefaultLoads is the grid printed when no load is given.
var DefaultLoads = []Load{
	{Employees: 10, BatchSize: 10},
	{Employees: 30, BatchSize: 10},
	{Employees: 60, BatchSize: 10},
	{Employees: 100, BatchSize: 10},
	{Employees: 60, BatchSize: 5},
	{Employees: 60, BatchSize: 15},
}

// EstimateDrain computes how long employees simultaneous requests take to
// drain when batchSize entries are processed every interval.
// Non-positive batch sizes use DefaultBatchSize.
func EstimateDrain(employees, batchSize int, interval time.Duration) Estimate {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if employees < 0 {
		employees = 0
	}
	cycles := (employees + batchSize - 1) / batchSize
	total := time.Duration(cycles) * interval
	return Estimate{
		Employees: employees,
		BatchSize: batchSize,
		Interval:  interval,
		Cycles:    cycles,
		Total:     total,
		AvgWait:   total / 2,
		MaxWait:   total,
	}
}
