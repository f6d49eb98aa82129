package restserver

import (
	"math"

	"github.com/chrissnell/laistats/internal/records"
	"github.com/chrissnell/laistats/internal/scenario"
	"github.com/chrissnell/laistats/internal/views"
	"github.com/chrissnell/laistats/internal/zonal"
)

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func transformStats(s zonal.Stats) StatsResponse {
	return StatsResponse{
		MeanLAI:      finite(s.MeanLAI),
		Min:          finite(s.Min),
		Q1:           finite(s.Q1),
		Median:       finite(s.Median),
		Q3:           finite(s.Q3),
		Max:          finite(s.Max),
		LowerWhisker: finite(s.LowerWhisker),
		UpperWhisker: finite(s.UpperWhisker),
	}
}

// transformRecords converts a record table to its response rows
func transformRecords(tbl records.Table) []RecordResponse {
	out := make([]RecordResponse, 0, len(tbl))
	for _, r := range tbl {
		out = append(out, RecordResponse{
			Date:           r.Date.Format(records.DateLayout),
			Landuse:        r.Landuse,
			ElevationClass: r.ElevationClass,
			StatsResponse:  transformStats(r.Stats),
		})
	}
	return out
}

func transformDays(days []views.DayRecord) []DayResponse {
	out := make([]DayResponse, 0, len(days))
	for _, d := range days {
		out = append(out, DayResponse{
			MonthDay:       d.MonthDay,
			Landuse:        d.Landuse,
			ElevationClass: d.ElevationClass,
			Years:          d.Years,
			StatsResponse:  transformStats(d.Stats),
		})
	}
	return out
}

func transformRows(rows []scenario.Row) []AdjustmentResponse {
	out := make([]AdjustmentResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, AdjustmentResponse{
			Date:                 r.Date.Format(records.DateLayout),
			ElevationClass:       r.ElevationClass,
			LanduseTarget:        r.LanduseTarget,
			LanduseCurrent:       r.LanduseCurrent,
			MedianTarget:         finite(r.MedianTarget),
			MedianCurrent:        finite(r.MedianCurrent),
			Q1Target:             finite(r.Q1Target),
			Q3Target:             finite(r.Q3Target),
			Diff:                 finite(r.Diff),
			SumOfPixels:          r.SumOfPixels,
			CountUnchangedPixels: r.CountUnchangedPixels,
		})
	}
	return out
}
