package services

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/school-admin/backend/internal/docstore"
	"github.com/school-admin/backend/internal/models"
)

func newAnalyticsFixture(t *testing.T) (*AnalyticsService, *docstore.MemStore) {
	t.Helper()
	store := docstore.NewMemStore()
	return NewAnalyticsService(store, nil, 0, zerolog.Nop()), store
}

func seedDoc(t *testing.T, store *docstore.MemStore, collection string, v interface{}) {
	t.Helper()
	data, err := docstore.Encode(v)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := store.Add(context.Background(), collection, data); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
}

func TestKPIs(t *testing.T) {
	ctx := context.Background()
	svc, store := newAnalyticsFixture(t)

	seedDoc(t, store, models.CollectionStudents, models.Student{Name: "Alice", Class: "S2", Section: "A", Status: "active", AdmissionDate: "2026-01-10"})
	seedDoc(t, store, models.CollectionStudents, models.Student{Name: "Bob", Class: "S2", Section: "A", Status: "active", AdmissionDate: "2024-03-01"})
	seedDoc(t, store, models.CollectionStudents, models.Student{Name: "Carol", Class: "S3", Section: "B", Status: "inactive", AdmissionDate: "2023-05-01"})

	seedDoc(t, store, models.CollectionAttendance, models.AttendanceRecord{Class: "S2", Section: "A", Date: "2026-02-01", Status: "present"})
	seedDoc(t, store, models.CollectionAttendance, models.AttendanceRecord{Class: "S2", Section: "A", Date: "2026-02-01", Status: "absent"})
	seedDoc(t, store, models.CollectionAttendance, models.AttendanceRecord{Class: "S3", Section: "B", Date: "2026-02-01", Status: "present"})

	seedDoc(t, store, models.CollectionFees, models.FeeRecord{Class: "S2", TotalFees: 1000, PaidAmount: 1000, Balance: 0, Status: "paid"})
	seedDoc(t, store, models.CollectionFees, models.FeeRecord{Class: "S2", TotalFees: 1000, PaidAmount: 400, Balance: 600, Status: "partial"})
	seedDoc(t, store, models.CollectionFees, models.FeeRecord{Class: "S3", TotalFees: 800, PaidAmount: 0, Balance: 800, Status: "pending"})

	kpis, err := svc.KPIs(ctx, AnalyticsFilter{})
	if err != nil {
		t.Fatalf("KPIs failed: %v", err)
	}

	if kpis.TotalStudents != 3 || kpis.ActiveStudents != 2 || kpis.InactiveStudents != 1 {
		t.Errorf("Expected 3/2/1 students, got %d/%d/%d", kpis.TotalStudents, kpis.ActiveStudents, kpis.InactiveStudents)
	}
	if math.Abs(kpis.AttendancePercentage-66.666) > 0.01 {
		t.Errorf("Expected ~66.67%% attendance, got %v", kpis.AttendancePercentage)
	}
	if kpis.ClasswiseAttendance["S2-A"] != 50 {
		t.Errorf("Expected 50%% for S2-A, got %v", kpis.ClasswiseAttendance["S2-A"])
	}
	if kpis.FeeCollected != 1400 || kpis.OutstandingFees != 1400 {
		t.Errorf("Expected 1400 collected and 1400 outstanding, got %v/%v", kpis.FeeCollected, kpis.OutstandingFees)
	}
	if kpis.FeesByStatus.Paid != 1 || kpis.FeesByStatus.Partial != 1 || kpis.FeesByStatus.Pending != 1 {
		t.Errorf("Expected one fee record per status, got %+v", kpis.FeesByStatus)
	}
}

func TestKPIsFiltered(t *testing.T) {
	ctx := context.Background()
	svc, store := newAnalyticsFixture(t)

	seedDoc(t, store, models.CollectionStudents, models.Student{Name: "Alice", Class: "S2", Section: "A", Status: "active", AdmissionDate: "2026-01-10"})
	seedDoc(t, store, models.CollectionStudents, models.Student{Name: "Carol", Class: "S3", Section: "B", Status: "active", AdmissionDate: "2026-01-12"})

	seedDoc(t, store, models.CollectionAttendance, models.AttendanceRecord{Class: "S2", Section: "A", Date: "2026-01-15", Status: "present"})
	seedDoc(t, store, models.CollectionAttendance, models.AttendanceRecord{Class: "S2", Section: "A", Date: "2025-12-01", Status: "absent"})

	kpis, err := svc.KPIs(ctx, AnalyticsFilter{Class: "S2", StartDate: "2026-01-01", EndDate: "2026-12-31"})
	if err != nil {
		t.Fatalf("KPIs failed: %v", err)
	}

	if kpis.TotalStudents != 1 {
		t.Errorf("Expected 1 student in class S2, got %d", kpis.TotalStudents)
	}
	if kpis.NewAdmissions != 1 {
		t.Errorf("Expected 1 new admission in window, got %d", kpis.NewAdmissions)
	}
	// The December record falls outside the date window.
	if kpis.AttendancePercentage != 100 {
		t.Errorf("Expected 100%% attendance inside window, got %v", kpis.AttendancePercentage)
	}
}

func TestKPIsEmpty(t *testing.T) {
	svc, _ := newAnalyticsFixture(t)

	kpis, err := svc.KPIs(context.Background(), AnalyticsFilter{})
	if err != nil {
		t.Fatalf("KPIs failed: %v", err)
	}
	if kpis.TotalStudents != 0 || kpis.AttendancePercentage != 0 {
		t.Errorf("Expected zeroed KPIs, got %+v", kpis)
	}
}
