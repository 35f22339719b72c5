package storage

import (
	"errors"
	"testing"
	"time"
)

type fakeRows struct {
	rows [][]any
	idx  int
	err  error
}

func (f *fakeRows) Next() bool {
	if f.idx >= len(f.rows) {
		return false
	}
	f.idx++
	return true
}

func (f *fakeRows) Scan(dest ...any) error {
	row := f.rows[f.idx-1]
	*dest[0].(*string) = row[0].(string)
	*dest[1].(*time.Time) = row[1].(time.Time)
	*dest[2].(*string) = row[2].(string)
	*dest[3].(*time.Time) = row[3].(time.Time)
	return nil
}

func (f *fakeRows) Err() error { return f.err }

func TestScanSignalRecords(t *testing.T) {
	date := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	created := date.Add(7 * time.Hour)
	rows := &fakeRows{rows: [][]any{
		{"ACME", date, "101.25", created},
		{"BOLT", date, "7.4", created},
	}}

	records, err := scanSignalRecords(rows)
	if err != nil {
		t.Fatalf("扫描行不应失败: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("应返回 2 条记录, 实际 %d", len(records))
	}
	if records[0].Ticker != "ACME" || records[0].Price.String() != "101.25" {
		t.Fatalf("记录解析不正确: %+v", records[0])
	}
	if !records[1].Date.Equal(date) {
		t.Fatalf("日期解析不正确: %v", records[1].Date)
	}
}

func TestScanSignalRecordsBadPrice(t *testing.T) {
	date := time.Now().UTC()
	rows := &fakeRows{rows: [][]any{
		{"ACME", date, "not-a-number", date},
	}}
	if _, err := scanSignalRecords(rows); err == nil {
		t.Fatal("非法价格应报错")
	}
}

func TestScanSignalRecordsRowError(t *testing.T) {
	rows := &fakeRows{err: errors.New("connection reset")}
	if _, err := scanSignalRecords(rows); err == nil {
		t.Fatal("底层行错误应向上传递")
	}
}
