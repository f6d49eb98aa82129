package database

import (
	"time"
)

// RunModel is a pipeline run in the lai_runs table
type RunModel struct {
	ID           string    `gorm:"primaryKey;column:id;type:uuid"`
	StartedAt    time.Time `gorm:"column:started_at;not null"`
	LAIFiles     int       `gorm:"column:lai_files"`
	Thresholds   string    `gorm:"column:thresholds"`
	Labels       string    `gorm:"column:labels"`
	CurrentClass int       `gorm:"column:current_class"`
	TargetClass  int       `gorm:"column:target_class"`
}

// TableName specifies the table name for RunModel
func (RunModel) TableName() string {
	return "lai_runs"
}

// LAIRecordModel is one zonal statistics row of the lai_records hypertable.
// Time is the acquisition date.
type LAIRecordModel struct {
	Time           time.Time `gorm:"column:time;not null"`
	RunID          string    `gorm:"column:run_id;type:uuid;not null"`
	Landuse        int       `gorm:"column:landuse;not null"`
	ElevationClass string    `gorm:"column:elevation_class;not null"`
	MeanLAI        float64   `gorm:"column:mean_lai"`
	Min            float64   `gorm:"column:min"`
	Q1             float64   `gorm:"column:q1"`
	Median         float64   `gorm:"column:median"`
	Q3             float64   `gorm:"column:q3"`
	Max            float64   `gorm:"column:max"`
	LowerWhisker   float64   `gorm:"column:lower_whisker"`
	UpperWhisker   float64   `gorm:"column:upper_whisker"`
}

// TableName specifies the table name for LAIRecordModel
func (LAIRecordModel) TableName() string {
	return "lai_records"
}

// AdjustmentRowModel is one row of a run's adjustment table
type AdjustmentRowModel struct {
	Time                 time.Time `gorm:"column:time;not null"`
	RunID                string    `gorm:"column:run_id;type:uuid;not null"`
	ElevationClass       string    `gorm:"column:elevation_class;not null"`
	LanduseTarget        int       `gorm:"column:landuse_target"`
	LanduseCurrent       int       `gorm:"column:landuse_current"`
	MedianTarget         float64   `gorm:"column:median_target"`
	MedianCurrent        float64   `gorm:"column:median_current"`
	Q1Target             float64   `gorm:"column:q1_target"`
	Q3Target             float64   `gorm:"column:q3_target"`
	Diff                 float64   `gorm:"column:diff"`
	SumOfPixels          *int      `gorm:"column:sum_of_pixels"`
	CountUnchangedPixels *int      `gorm:"column:count_unchanged_pixels"`
}

// TableName specifies the table name for AdjustmentRowModel
func (AdjustmentRowModel) TableName() string {
	return "lai_adjustment_rows"
}
