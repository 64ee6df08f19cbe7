package types

import "time"

// Allocation is the share of study hours given to one discipline
type Allocation struct {
	Discipline string  `json:"discipline"`
	Weight     float64 `json:"weight"`
	Hours      int     `json:"hours"`
	Cycles     int     `json:"cycles"`
}

// StudyPlan is the schedule generated for an active notice
type StudyPlan struct {
	ID                 string
	OwnerID            string
	NoticeID           string
	StartDate          time.Time
	EndDate            time.Time
	HoursPerDay        int
	Weekdays           []time.Weekday
	Allocations        []Allocation
	SuccessProbability float64
	CreatedAt          time.Time
}

// TotalHours sums the allocated hours
func (p *StudyPlan) TotalHours() int {
	total := 0
	for _, a := range p.Allocations {
		total += a.Hours
	}
	return total
}
