package serializer

import (
	"strings"
	"testing"
	"time"

	"github.com/V4T54L/faultline/internal/domain"
)

func TestJSON_Serialize(t *testing.T) {
	report := domain.Report{
		ID:         "7f1c",
		OccurredOn: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Details: domain.ReportDetails{
			MachineName: "web-1",
			Version:     "1.2.3",
			Error:       domain.FaultSummary{ClassName: "*errors.errorString", Message: "boom"},
			Tags:        []string{"a", "a"},
			Request: &domain.RequestSnapshot{
				HTTPMethod: "POST",
				Headers:    domain.Fields{{Name: "Zeta", Value: "1"}, {Name: "Alpha", Value: "2"}},
			},
		},
	}

	data, err := NewJSON().Serialize(report)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	out := string(data)

	for _, want := range []string{
		`"occurredOn":"2024-05-01T12:00:00Z"`,
		`"machineName":"web-1"`,
		`"className":"*errors.errorString"`,
		`"tags":["a","a"]`,
		`"headers":{"Zeta":"1","Alpha":"2"}`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s\n%s", want, out)
		}
	}
	if strings.Contains(out, `"user"`) {
		t.Error("nil user must be omitted")
	}
}
