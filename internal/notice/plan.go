package notice

import (
	"math"
	"sort"
	"time"

	"github.com/dshills/editalindex/pkg/types"
)

// Study plan constants
const (
	DefaultWindowDays   = 90
	HoursPerDay         = 4
	CycleDays           = 30
	BaselineProbability = 0.5
)

// StudyWeekdays are the days a generated plan schedules study on
var StudyWeekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

// PlanInput holds what a study plan is derived from
type PlanInput struct {
	OwnerID     string
	NoticeID    string
	ExamDate    *time.Time // nil uses the default window
	Disciplines []types.ExamDiscipline
	Now         time.Time
}

// GeneratePlan builds a study plan from now until the exam date.
// Total hours are days × HoursPerDay. Each discipline gets a share
// proportional to its weight; shares are rounded with the largest remainder
// method so they always add up to round(total × Σweight).
func GeneratePlan(in PlanInput) types.StudyPlan {
	start := in.Now
	if start.IsZero() {
		start = time.Now()
	}
	start = start.UTC()

	end := start.AddDate(0, 0, DefaultWindowDays)
	if in.ExamDate != nil {
		end = in.ExamDate.UTC()
	}

	days := max(1, int(end.Sub(start)/(24*time.Hour)))
	total := days * HoursPerDay
	cycles := max(1, days/CycleDays)

	weights := make([]float64, len(in.Disciplines))
	for i, d := range in.Disciplines {
		weights[i] = d.Weight
	}
	hours := apportion(total, weights)

	allocations := make([]types.Allocation, len(in.Disciplines))
	for i, d := range in.Disciplines {
		allocations[i] = types.Allocation{
			Discipline: d.Name,
			Weight:     d.Weight,
			Hours:      hours[i],
			Cycles:     cycles,
		}
	}

	return types.StudyPlan{
		OwnerID:            in.OwnerID,
		NoticeID:           in.NoticeID,
		StartDate:          start,
		EndDate:            end,
		HoursPerDay:        HoursPerDay,
		Weekdays:           append([]time.Weekday(nil), StudyWeekdays...),
		Allocations:        allocations,
		SuccessProbability: BaselineProbability,
	}
}

// apportion splits total by weight using the largest remainder method.
// Ties go to the earlier entry.
func apportion(total int, weights []float64) []int {
	out := make([]int, len(weights))
	if len(weights) == 0 {
		return out
	}

	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	target := int(math.Round(float64(total) * sum))

	type share struct {
		index     int
		remainder float64
	}
	shares := make([]share, len(weights))
	assigned := 0
	for i, w := range weights {
		exact := float64(total) * w
		out[i] = int(math.Floor(exact))
		assigned += out[i]
		shares[i] = share{index: i, remainder: exact - float64(out[i])}
	}

	sort.SliceStable(shares, func(a, b int) bool { return shares[a].remainder > shares[b].remainder })
	for i := 0; assigned < target && i < len(shares); i++ {
		out[shares[i].index]++
		assigned++
	}
	return out
}
