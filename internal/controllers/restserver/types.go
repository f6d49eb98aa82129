package restserver

// Statistic columns are pointers so that NaN and ±Inf, which JSON cannot
// carry, serialize as null.

// StatsResponse holds the eight statistic columns of a record
type StatsResponse struct {
	MeanLAI      *float64 `json:"mean_lai"`
	Min          *float64 `json:"min"`
	Q1           *float64 `json:"q1"`
	Median       *float64 `json:"median"`
	Q3           *float64 `json:"q3"`
	Max          *float64 `json:"max"`
	LowerWhisker *float64 `json:"lower_whisker"`
	UpperWhisker *float64 `json:"upper_whisker"`
}

// RecordResponse is one row of /records
type RecordResponse struct {
	Date           string `json:"date"`
	Landuse        int    `json:"landuse"`
	ElevationClass string `json:"elevation_class"`
	StatsResponse
}

// RecordsResponse wraps the records of one run
type RecordsResponse struct {
	RunID   string           `json:"run_id"`
	Records []RecordResponse `json:"records"`
}

// DayResponse is one row of /characteristic-year
type DayResponse struct {
	MonthDay       string `json:"month_day"`
	Landuse        int    `json:"landuse"`
	ElevationClass string `json:"elevation_class"`
	Years          int    `json:"years"`
	StatsResponse
}

// CharacteristicYearResponse wraps the characteristic year of one run
type CharacteristicYearResponse struct {
	RunID string        `json:"run_id"`
	Days  []DayResponse `json:"days"`
}

// AdjustmentResponse is one row of a run's adjustment table
type AdjustmentResponse struct {
	Date                 string   `json:"date"`
	ElevationClass       string   `json:"elevation_class"`
	LanduseTarget        int      `json:"landuse_target"`
	LanduseCurrent       int      `json:"landuse_current"`
	MedianTarget         *float64 `json:"median_target"`
	MedianCurrent        *float64 `json:"median_current"`
	Q1Target             *float64 `json:"q1_target"`
	Q3Target             *float64 `json:"q3_target"`
	Diff                 *float64 `json:"diff"`
	SumOfPixels          *int     `json:"sum_of_pixels"`
	CountUnchangedPixels *int     `json:"count_unchanged_pixels"`
}

// AdjustmentsResponse wraps the adjustment table of one run
type AdjustmentsResponse struct {
	RunID string               `json:"run_id"`
	Rows  []AdjustmentResponse `json:"rows"`
}
