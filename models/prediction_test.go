package models

import "testing"

func TestIPCPredictionListScan(t *testing.T) {
	var list IPCPredictionList
	raw := `[{"section":"379","offense":"Theft","punishment":"3 years","confidence":0.9}]`

	if err := list.Scan([]byte(raw)); err != nil {
		t.Fatalf("scan bytes: %v", err)
	}
	if len(list) != 1 || list[0].Section != "379" {
		t.Fatalf("unexpected scan result: %+v", list)
	}

	if err := list.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("nil column must scan to empty list, got %+v", list)
	}

	if err := list.Scan(42); err == nil {
		t.Fatal("scanning an int must fail")
	}
}

func TestIPCPredictionListValueNeverNull(t *testing.T) {
	var list IPCPredictionList
	v, err := list.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if v != "[]" {
		t.Fatalf("nil list must serialize as empty array, got %v", v)
	}
}
