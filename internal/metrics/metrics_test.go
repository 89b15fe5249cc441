package metrics

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"statement-quality-service/internal/normalization"
)

func result(id string, state normalization.State, m normalization.Metrics) *normalization.NormalizationResult {
	return &normalization.NormalizationResult{RunID: id, State: state, Metrics: m}
}

func healthy(id string) *normalization.NormalizationResult {
	return result(id, normalization.StateDone, normalization.Metrics{
		Total: 10, SuccessfullyNormalized: 10, DataQualityScore: 0.9,
	})
}

func TestRingStoreKeepsNewest(t *testing.T) {
	store := NewRingStore(3)
	for i := 1; i <= 5; i++ {
		if err := store.Save(Snapshot{RunID: fmt.Sprintf("run-%d", i)}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	if store.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", store.Len())
	}
	got, _ := store.Recent(0)
	want := []string{"run-5", "run-4", "run-3"}
	for i, w := range want {
		if got[i].RunID != w {
			t.Errorf("Recent()[%d] = %s, want %s", i, got[i].RunID, w)
		}
	}

	two, _ := store.Recent(2)
	if len(two) != 2 || two[0].RunID != "run-5" {
		t.Errorf("Recent(2) = %+v", two)
	}
	if all, _ := store.Recent(10); len(all) != 3 {
		t.Errorf("Recent(10) returned %d", len(all))
	}
}

func TestRingStoreConcurrentSaves(t *testing.T) {
	store := NewRingStore(50)
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Save(Snapshot{RunID: fmt.Sprint(i)})
		}(i)
	}
	wg.Wait()
	if store.Len() != 50 {
		t.Errorf("Len() = %d, want 50", store.Len())
	}
}

func TestAlerts(t *testing.T) {
	tests := []struct {
		name   string
		result *normalization.NormalizationResult
		want   []AlertKind
	}{
		{"healthy", healthy("a"), nil},
		{
			"failed run",
			result("b", normalization.StateFailed, normalization.Metrics{}),
			[]AlertKind{AlertRunFailed},
		},
		{
			"low quality",
			result("c", normalization.StateDone, normalization.Metrics{Total: 10, SuccessfullyNormalized: 10, DataQualityScore: 0.5}),
			[]AlertKind{AlertLowQuality},
		},
		{
			"duplicates and failures",
			result("d", normalization.StateDone, normalization.Metrics{
				Total: 10, SuccessfullyNormalized: 8, FailedNormalization: 2, DuplicatesRemoved: 3, DataQualityScore: 0.9,
			}),
			[]AlertKind{AlertHighDuplicateRatio, AlertFailedNormalizations},
		},
		{
			"ratios at threshold",
			result("e", normalization.StateDone, normalization.Metrics{
				Total: 20, SuccessfullyNormalized: 19, FailedNormalization: 1, DuplicatesRemoved: 2, DataQualityScore: 0.7,
			}),
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts, err := NewRecorder(nil, nil).Observe(tt.result)
			if err != nil {
				t.Fatalf("Observe() error = %v", err)
			}
			if len(alerts) != len(tt.want) {
				t.Fatalf("alerts = %+v, want %v", alerts, tt.want)
			}
			for i, kind := range tt.want {
				if alerts[i].Kind != kind || alerts[i].RunID != tt.result.RunID {
					t.Errorf("alert %d = %+v, want %s", i, alerts[i], kind)
				}
			}
		})
	}
}

func TestSummaryAveragesCompletedRuns(t *testing.T) {
	rec := NewRecorder(NewRingStore(10), nil)
	rec.Record(healthy("a"))
	rec.Record(result("b", normalization.StateDone, normalization.Metrics{Total: 4, DuplicatesRemoved: 1, DataQualityScore: 0.5}))
	rec.Record(result("c", normalization.StateFailed, normalization.Metrics{}))

	sum, err := rec.Summary(0)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.Runs != 3 || sum.FailedRuns != 1 {
		t.Errorf("runs = %d failed = %d", sum.Runs, sum.FailedRuns)
	}
	if sum.AverageQuality != 0.7 {
		t.Errorf("AverageQuality = %v, want 0.7", sum.AverageQuality)
	}
	if sum.Transactions != 14 || sum.DuplicatesRemoved != 1 {
		t.Errorf("unexpected totals %+v", sum)
	}

	recent, _ := rec.Summary(1)
	if recent.Runs != 1 || recent.FailedRuns != 1 || recent.AverageQuality != 0 {
		t.Errorf("Summary(1) = %+v", recent)
	}
}

func TestObserveNilResult(t *testing.T) {
	if _, err := NewRecorder(nil, nil).Observe(nil); err == nil {
		t.Error("expected error for nil result")
	}
}

type failingStore struct{}

func (failingStore) Save(Snapshot) error            { return fmt.Errorf("disk full") }
func (failingStore) Recent(int) ([]Snapshot, error) { return nil, nil }
func (failingStore) Close() error                   { return nil }

func TestRecordSurfacesStoreErrors(t *testing.T) {
	if err := NewRecorder(failingStore{}, nil).Record(healthy("a")); err == nil {
		t.Error("expected store error")
	}
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics", "snapshots.db")
	store, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}
	defer store.Close()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		snap := Snapshot{
			ID:                fmt.Sprintf("id-%d", i),
			RunID:             fmt.Sprintf("run-%d", i),
			RecordedAt:        base.Add(time.Duration(i) * time.Minute),
			State:             "done",
			Total:             10 + i,
			DuplicatesRemoved: i,
			QualityScore:      0.5 + float64(i)/10,
			Discrepancies:     i,
		}
		if err := store.Save(snap); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	got, err := store.Recent(2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 || got[0].RunID != "run-2" || got[1].RunID != "run-1" {
		t.Fatalf("Recent(2) = %+v", got)
	}
	if !got[0].RecordedAt.Equal(base.Add(2*time.Minute)) || got[0].Total != 12 || got[0].Discrepancies != 2 {
		t.Errorf("snapshot did not round trip: %+v", got[0])
	}

	all, _ := store.Recent(0)
	if len(all) != 3 {
		t.Errorf("Recent(0) returned %d", len(all))
	}

	if err := store.Save(Snapshot{ID: "id-0", RecordedAt: base}); err == nil {
		t.Error("expected duplicate id to fail")
	}
}

func TestRecorderWithSQLiteStore(t *testing.T) {
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}
	defer store.Close()

	rec := NewRecorder(store, nil)
	if err := rec.Record(healthy("a")); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	sum, err := rec.Summary(10)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.Runs != 1 || sum.AverageQuality != 0.9 {
		t.Errorf("Summary() = %+v", sum)
	}
}
