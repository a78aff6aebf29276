package usage

import (
	"encoding/json"
	"testing"
)

func TestExport(t *testing.T) {
	sites := []SiteQuota{
		{SiteKey: "b.com", DailyLimitMinutes: 30, UsedMinutes: 12, LastResetDate: Date{Year: 2026, Month: 10, Day: 15}},
		{SiteKey: "a.com", DailyLimitMinutes: 10, LastResetDate: Date{Year: 2026, Month: 10, Day: 14}},
	}

	records := Export(sites)
	if len(records) != 2 {
		t.Fatalf("Export returned %d records", len(records))
	}
	want := ExportRecord{URL: "b.com", TimeUsed: 12, TimeLimit: 30, LastReset: "2026-10-15"}
	if records[0] != want {
		t.Errorf("records[0] = %+v, want %+v", records[0], want)
	}

	data, err := json.Marshal(records[1])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"url":"a.com","timeUsed":0,"timeLimit":10,"lastReset":"2026-10-14"}` {
		t.Errorf("json = %s", data)
	}
}

func TestExportEmpty(t *testing.T) {
	if records := Export(nil); records == nil || len(records) != 0 {
		t.Errorf("Export(nil) = %#v, want empty slice", records)
	}
}
