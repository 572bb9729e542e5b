package reporting

import (
	"fmt"
	"strings"
	"testing"
)

func TestPredefinedMeasures(t *testing.T) {
	if len(PredefinedMeasures) != 8 {
		t.Fatalf("expected 8 predefined measures, got %d", len(PredefinedMeasures))
	}

	expectedIDs := []string{
		"call-volume-by-provider",
		"call-volume-by-task",
		"error-breakdown",
		"cache-hit-ratio",
		"latency-by-provider",
		"daily-call-volume",
		"document-volume",
		"assessment-status",
	}

	for i, expectedID := range expectedIDs {
		if PredefinedMeasures[i].ID != expectedID {
			t.Errorf("expected measure[%d].ID = %s, got %s", i, expectedID, PredefinedMeasures[i].ID)
		}
	}
}

func TestPredefinedMeasures_HaveSQL(t *testing.T) {
	for _, m := range PredefinedMeasures {
		if m.SQL == "" {
			t.Errorf("measure %s has empty SQL", m.ID)
		}
		if m.Name == "" {
			t.Errorf("measure %s has empty name", m.ID)
		}
		if m.Description == "" {
			t.Errorf("measure %s has empty description", m.ID)
		}
	}
}

func TestPredefinedMeasures_TargetKnownTables(t *testing.T) {
	tables := []string{"ai_call_log", "nursing_assessments", "soap_notes", "risk_reports"}

	for _, m := range PredefinedMeasures {
		found := false
		for _, table := range tables {
			if strings.Contains(m.SQL, table) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("measure %s does not query a known table", m.ID)
		}
	}
}

func TestPredefinedMeasures_ParametersAreBound(t *testing.T) {
	for _, m := range PredefinedMeasures {
		for i := range m.Parameters {
			placeholder := fmt.Sprintf("$%d", i+1)
			if !strings.Contains(m.SQL, placeholder) {
				t.Errorf("measure %s declares parameter %d but SQL never binds %s", m.ID, i+1, placeholder)
			}
		}
	}
}

func TestFindMeasure_Exists(t *testing.T) {
	m := FindMeasure("call-volume-by-provider")
	if m == nil {
		t.Fatal("expected to find call-volume-by-provider measure")
	}
	if m.Name != "Call Volume by Provider" {
		t.Errorf("expected 'Call Volume by Provider', got %s", m.Name)
	}
}

func TestFindMeasure_NotFound(t *testing.T) {
	m := FindMeasure("nonexistent")
	if m != nil {
		t.Error("expected nil for nonexistent measure")
	}
}

func TestFindMeasure_AllPredefined(t *testing.T) {
	for _, def := range PredefinedMeasures {
		found := FindMeasure(def.ID)
		if found == nil {
			t.Errorf("expected to find measure %s", def.ID)
		}
		if found != nil && found.ID != def.ID {
			t.Errorf("ID mismatch: expected %s, got %s", def.ID, found.ID)
		}
	}
}

func TestMeasureArgs_Defaults(t *testing.T) {
	m := FindMeasure("daily-call-volume")
	if m == nil {
		t.Fatal("expected daily-call-volume measure")
	}

	args, used, err := measureArgs(m, func(string) string { return "" })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(args) != 1 || args[0] != 7 {
		t.Errorf("expected default args [7], got %v", args)
	}
	if used["days"] != 7 {
		t.Errorf("expected days=7, got %v", used)
	}
}

func TestMeasureArgs_Override(t *testing.T) {
	m := FindMeasure("daily-call-volume")

	args, used, err := measureArgs(m, func(name string) string {
		if name == "days" {
			return "30"
		}
		return ""
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(args) != 1 || args[0] != 30 {
		t.Errorf("expected args [30], got %v", args)
	}
	if used["days"] != 30 {
		t.Errorf("expected days=30, got %v", used)
	}
}

func TestMeasureArgs_RejectsNonInteger(t *testing.T) {
	m := FindMeasure("daily-call-volume")

	_, _, err := measureArgs(m, func(string) string { return "last-week" })
	if err == nil {
		t.Fatal("expected error for non-integer parameter")
	}
	if !strings.Contains(err.Error(), "must be an integer") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMeasureArgs_RejectsNonPositive(t *testing.T) {
	m := FindMeasure("daily-call-volume")

	for _, raw := range []string{"0", "-3"} {
		_, _, err := measureArgs(m, func(string) string { return raw })
		if err == nil {
			t.Errorf("expected error for days=%s", raw)
		}
	}
}

func TestMeasureArgs_NoParameters(t *testing.T) {
	m := FindMeasure("cache-hit-ratio")
	if m == nil {
		t.Fatal("expected cache-hit-ratio measure")
	}

	args, used, err := measureArgs(m, func(string) string { return "" })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if args != nil || used != nil {
		t.Errorf("expected nil args for parameterless measure, got %v / %v", args, used)
	}
}

func TestMeasureReport_Structure(t *testing.T) {
	report := MeasureReport{
		MeasureID:   "cache-hit-ratio",
		MeasureName: "Cache Hit Ratio",
		Results: []map[string]interface{}{
			{"total": 120, "cache_hits": 45},
		},
		Parameters: map[string]int{"days": 7},
	}

	if report.MeasureID != "cache-hit-ratio" {
		t.Errorf("unexpected MeasureID: %s", report.MeasureID)
	}
	if len(report.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(report.Results))
	}
	if report.Results[0]["total"] != 120 {
		t.Errorf("unexpected total: %v", report.Results[0]["total"])
	}
	if report.Parameters["days"] != 7 {
		t.Errorf("unexpected parameter: %v", report.Parameters["days"])
	}
}

func TestNewHandler(t *testing.T) {
	h := NewHandler(nil)
	if h == nil {
		t.Fatal("expected non-nil handler")
	}
}

func TestLatencyMeasure_ExcludesCacheHits(t *testing.T) {
	m := FindMeasure("latency-by-provider")
	if m == nil {
		t.Fatal("expected latency-by-provider measure")
	}
	if !strings.Contains(m.SQL, "NOT cached") {
		t.Error("latency measure must exclude cached calls")
	}
	if !strings.Contains(m.SQL, "error_kind = ''") {
		t.Error("latency measure must exclude failed calls")
	}
}

func TestDocumentVolumeMeasure_CoversAllTypes(t *testing.T) {
	m := FindMeasure("document-volume")
	if m == nil {
		t.Fatal("expected document-volume measure")
	}
	for _, table := range []string{"nursing_assessments", "soap_notes", "risk_reports"} {
		if !strings.Contains(m.SQL, table) {
			t.Errorf("document-volume measure missing %s", table)
		}
	}
}
