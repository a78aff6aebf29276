package usage

// ExportRecord is the flat per-site summary used for usage analysis.
type ExportRecord struct {
	URL       string `json:"url"`
	TimeUsed  int    `json:"timeUsed"`
	TimeLimit int    `json:"timeLimit"`
	LastReset string `json:"lastReset"`
}

// Export summarizes sites for external analysis, preserving order.
func Export(sites []SiteQuota) []ExportRecord {
	records := make([]ExportRecord, 0, len(sites))
	for _, s := range sites {
		records = append(records, ExportRecord{
			URL:       s.SiteKey,
			TimeUsed:  s.UsedMinutes,
			TimeLimit: s.DailyLimitMinutes,
			LastReset: s.LastResetDate.String(),
		})
	}
	return records
}
