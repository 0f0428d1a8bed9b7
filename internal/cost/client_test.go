package cost

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetAnalysisSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analysis" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("startDate") != "2025-01-01" || q.Get("endDate") != "2025-01-31" {
			t.Errorf("unexpected date params: %v", q)
		}
		if q.Get("granularity") != "day" {
			t.Errorf("unexpected granularity %s", q.Get("granularity"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"detailedCostData": [
				{"date": "2025-01-01", "service": "Amazon EC2", "cost": 42.5, "region": "us-east-1"}
			],
			"costData": [{"date": "2025-01-01", "cost": 42.5}],
			"anomalies": []
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, false)
	data, err := client.GetAnalysis(context.Background(), DateRange{Start: "2025-01-01", End: "2025-01-31"}, GranularityDay)
	if err != nil {
		t.Fatalf("GetAnalysis failed: %v", err)
	}
	if len(data.DetailedCostData) != 1 || data.DetailedCostData[0].Service != "Amazon EC2" {
		t.Errorf("unexpected ledger: %+v", data.DetailedCostData)
	}
	if len(data.CostData) != 1 || data.CostData[0].Cost != 42.5 {
		t.Errorf("unexpected series: %+v", data.CostData)
	}
}

func TestGetAnalysisServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, false)
	_, err := client.GetAnalysis(context.Background(), DateRange{Start: "2025-01-01", End: "2025-01-31"}, GranularityDay)

	var dsErr *DataSourceError
	if !errors.As(err, &dsErr) {
		t.Fatalf("expected *DataSourceError, got %v", err)
	}
	if dsErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", dsErr.StatusCode)
	}
	if !dsErr.Fatal() {
		t.Error("a 500 from the backend should classify as fatal")
	}
}

func TestGetAnalysisMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"detailedCostData": [`))
	}))
	defer server.Close()

	client := NewClient(server.URL, false)
	_, err := client.GetAnalysis(context.Background(), DateRange{Start: "2025-01-01", End: "2025-01-31"}, GranularityDay)

	var dsErr *DataSourceError
	if !errors.As(err, &dsErr) {
		t.Fatalf("expected *DataSourceError, got %v", err)
	}
	if dsErr.StatusCode != 0 {
		t.Errorf("parse failures carry no status, got %d", dsErr.StatusCode)
	}
}

func TestGetAnalysisUnreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", false)
	_, err := client.GetAnalysis(context.Background(), DateRange{Start: "2025-01-01", End: "2025-01-31"}, GranularityDay)

	var dsErr *DataSourceError
	if !errors.As(err, &dsErr) {
		t.Fatalf("expected *DataSourceError, got %v", err)
	}
	// "backend unreachable" contains "backend", which flags a hard failure.
	if !dsErr.Fatal() {
		t.Error("unreachable backend should classify as fatal")
	}
}

func TestBackendSourceFetchRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("granularity") != "day" {
			t.Errorf("ledger fetch should always be daily, got %s", r.URL.Query().Get("granularity"))
		}
		w.Write([]byte(`{
			"detailedCostData": [
				{"date": "2025-02-01", "service": "Amazon S3", "cost": 3.21, "region": "us-east-1"},
				{"date": "2025-02-02", "service": "Amazon S3", "cost": 4.56, "region": "us-east-1"}
			],
			"costData": [],
			"anomalies": [{"date": "2025-02-01", "cost": 3.21, "expectedCost": 1.93, "description": "ignored"}]
		}`))
	}))
	defer server.Close()

	source := NewBackendSource(NewClient(server.URL, false))
	if !source.IsConfigured() {
		t.Fatal("source with a base URL should be configured")
	}

	records, err := source.FetchRecords(context.Background(), DateRange{Start: "2025-02-01", End: "2025-02-02"})
	if err != nil {
		t.Fatalf("FetchRecords failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Service != "Amazon S3" || records[1].Date != "2025-02-02" {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestBackendSourceUnconfigured(t *testing.T) {
	source := NewBackendSource(NewClient("", false))
	if source.IsConfigured() {
		t.Error("source without a base URL should not be configured")
	}
}

func TestDataSourceErrorFatal(t *testing.T) {
	tests := []struct {
		name string
		err  DataSourceError
		want bool
	}{
		{name: "unauthorized", err: DataSourceError{StatusCode: 401}, want: true},
		{name: "forbidden", err: DataSourceError{StatusCode: 403}, want: true},
		{name: "server error", err: DataSourceError{StatusCode: 503}, want: true},
		{name: "credentials message", err: DataSourceError{Message: "invalid Credentials supplied"}, want: true},
		{name: "backend message", err: DataSourceError{Message: "backend unreachable"}, want: true},
		{name: "not found", err: DataSourceError{StatusCode: 404, Message: "no such range"}, want: false},
		{name: "rate limited", err: DataSourceError{StatusCode: 429, Message: "slow down"}, want: false},
		{name: "plain failure", err: DataSourceError{Message: "timeout talking upstream"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Fatal(); got != tt.want {
				t.Errorf("Fatal() = %v, want %v", got, tt.want)
			}
		})
	}
}
