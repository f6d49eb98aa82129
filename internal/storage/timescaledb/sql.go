package timescaledb

const createRunsTableSQL = `
CREATE TABLE IF NOT EXISTS lai_runs (
    id uuid PRIMARY KEY,
    started_at timestamp WITH TIME ZONE NOT NULL,
    lai_files integer NOT NULL DEFAULT 0,
    thresholds text NOT NULL DEFAULT '[]',
    labels text NOT NULL DEFAULT '[]',
    current_class integer NOT NULL DEFAULT 0,
    target_class integer NOT NULL DEFAULT 0
);`

const createRecordsTableSQL = `
CREATE TABLE IF NOT EXISTS lai_records (
    time timestamp WITH TIME ZONE NOT NULL,
    run_id uuid NOT NULL REFERENCES lai_runs(id) ON DELETE CASCADE,
    landuse integer NOT NULL,
    elevation_class text NOT NULL,
    mean_lai float8 NULL,
    min float8 NULL,
    q1 float8 NULL,
    median float8 NULL,
    q3 float8 NULL,
    max float8 NULL,
    lower_whisker float8 NULL,
    upper_whisker float8 NULL
);`

const createAdjustmentTableSQL = `
CREATE TABLE IF NOT EXISTS lai_adjustment_rows (
    time timestamp WITH TIME ZONE NOT NULL,
    run_id uuid NOT NULL REFERENCES lai_runs(id) ON DELETE CASCADE,
    elevation_class text NOT NULL,
    landuse_target integer NOT NULL,
    landuse_current integer NOT NULL,
    median_target float8 NULL,
    median_current float8 NULL,
    q1_target float8 NULL,
    q3_target float8 NULL,
    diff float8 NULL,
    sum_of_pixels integer NULL,
    count_unchanged_pixels integer NULL
);`

const createExtensionSQL = `CREATE EXTENSION IF NOT EXISTS timescaledb;`

const createHypertableSQL = `SELECT create_hypertable('lai_records', 'time', if_not_exists => true);`

const createRecordsIndexSQL = `CREATE INDEX IF NOT EXISTS lai_records_landuse_idx ON lai_records (landuse, elevation_class, time DESC);`
