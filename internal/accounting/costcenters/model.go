package costcenters

import "time"

// CostCenter is a node of the cost-center tree. Group nodes only aggregate.
type CostCenter struct {
	Name             string
	Company          string
	ParentCostCenter *string
	IsGroup          bool
	UpdatedAt        time.Time
}
