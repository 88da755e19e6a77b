package models

// MonthlyDiscardRate is the share of scrapped components among all
// component outcomes (scrapped + used) of one calendar month.
type MonthlyDiscardRate struct {
	Month    string  `json:"month"`
	Rate     float64 `json:"rate"`
	Used     int     `json:"used"`
	Scrapped int     `json:"scrapped"`
}

// MonthlyCount is a raw per-month counter read from the store.
type MonthlyCount struct {
	Month string `db:"month"`
	Count int    `db:"count"`
}
