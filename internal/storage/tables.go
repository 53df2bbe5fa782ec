package storage

// Tables created by migrations/001_init.sql.
const (
	TableRuns  = "scrap_stat"
	TableItems = "scrap_items"
	TableFails = "scrap_fails"
)
