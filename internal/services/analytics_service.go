package services

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/school-admin/backend/internal/docstore"
	"github.com/school-admin/backend/internal/models"
)

// AnalyticsFilter narrows the record sets feeding the dashboard KPIs.
type AnalyticsFilter struct {
	StartDate string `form:"startDate" json:"startDate,omitempty"`
	EndDate   string `form:"endDate" json:"endDate,omitempty"`
	Class     string `form:"class" json:"class,omitempty"`
	Section   string `form:"section" json:"section,omitempty"`
	Status    string `form:"status" json:"status,omitempty"`
}

// FeesByStatus counts fee records per payment status.
type FeesByStatus struct {
	Paid    int `json:"paid"`
	Partial int `json:"partial"`
	Pending int `json:"pending"`
}

// KPIData is the analytics dashboard overview.
type KPIData struct {
	TotalStudents        int                `json:"totalStudents"`
	ActiveStudents       int                `json:"activeStudents"`
	InactiveStudents     int                `json:"inactiveStudents"`
	NewAdmissions        int                `json:"newAdmissions"`
	AttendancePercentage float64            `json:"attendancePercentage"`
	FeeCollected         float64            `json:"feeCollected"`
	OutstandingFees      float64            `json:"outstandingFees"`
	ClasswiseAttendance  map[string]float64 `json:"classwiseAttendance"`
	FeesByStatus         FeesByStatus       `json:"feesByStatus"`
}

// AnalyticsService computes descriptive dashboard statistics. Results are
// cached in Redis under a filter-derived key when a client is configured.
type AnalyticsService struct {
	store docstore.Store
	rdb   *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

func NewAnalyticsService(store docstore.Store, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *AnalyticsService {
	return &AnalyticsService{
		store: store,
		rdb:   rdb,
		ttl:   ttl,
		log:   log.With().Str("component", "analytics_service").Logger(),
	}
}

// KPIs computes the dashboard overview for the given filter.
func (s *AnalyticsService) KPIs(ctx context.Context, filter AnalyticsFilter) (*KPIData, error) {
	cacheKey := s.cacheKey(filter)
	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, cacheKey).Bytes(); err == nil {
			var kpis KPIData
			if err := json.Unmarshal(cached, &kpis); err == nil {
				return &kpis, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("analytics cache read failed")
		}
	}

	students, err := s.filteredStudents(ctx, filter)
	if err != nil {
		return nil, err
	}
	attendance, err := s.filteredAttendance(ctx, filter)
	if err != nil {
		return nil, err
	}
	fees, err := s.filteredFees(ctx, filter)
	if err != nil {
		return nil, err
	}

	kpis := &KPIData{
		TotalStudents:       len(students),
		ClasswiseAttendance: make(map[string]float64),
	}

	for _, st := range students {
		switch st.Status {
		case "active":
			kpis.ActiveStudents++
		case "inactive":
			kpis.InactiveStudents++
		}
		if filter.StartDate != "" && st.AdmissionDate >= filter.StartDate {
			kpis.NewAdmissions++
		}
	}

	present := 0
	classTotals := make(map[string]int)
	classPresent := make(map[string]int)
	for _, a := range attendance {
		key := a.Class + "-" + a.Section
		classTotals[key]++
		if a.Status == "present" {
			present++
			classPresent[key]++
		}
	}
	if len(attendance) > 0 {
		kpis.AttendancePercentage = float64(present) / float64(len(attendance)) * 100
	}
	for key, total := range classTotals {
		kpis.ClasswiseAttendance[key] = float64(classPresent[key]) / float64(total) * 100
	}

	for _, f := range fees {
		kpis.FeeCollected += f.PaidAmount
		kpis.OutstandingFees += f.Balance
		switch f.Status {
		case "paid":
			kpis.FeesByStatus.Paid++
		case "partial":
			kpis.FeesByStatus.Partial++
		case "pending":
			kpis.FeesByStatus.Pending++
		}
	}

	if s.rdb != nil {
		if b, err := json.Marshal(kpis); err == nil {
			if err := s.rdb.Set(ctx, cacheKey, b, s.ttl).Err(); err != nil {
				s.log.Warn().Err(err).Msg("analytics cache write failed")
			}
		}
	}

	return kpis, nil
}

func (s *AnalyticsService) cacheKey(filter AnalyticsFilter) string {
	b, _ := json.Marshal(filter)
	return fmt.Sprintf("analytics:kpis:%x", sha256.Sum256(b))
}

func (s *AnalyticsService) filteredStudents(ctx context.Context, filter AnalyticsFilter) ([]models.Student, error) {
	var filters []docstore.Filter
	if filter.Class != "" {
		filters = append(filters, docstore.Where("class", "==", filter.Class))
	}
	if filter.Section != "" {
		filters = append(filters, docstore.Where("section", "==", filter.Section))
	}
	if filter.Status != "" {
		filters = append(filters, docstore.Where("status", "==", filter.Status))
	}

	docs, err := s.store.Query(ctx, models.CollectionStudents, docstore.Query{Filters: filters})
	if err != nil {
		return nil, err
	}
	students, err := docstore.DecodeAll[models.Student](docs)
	if err != nil {
		return nil, err
	}

	out := students[:0]
	for _, st := range students {
		if filter.StartDate != "" && st.AdmissionDate < filter.StartDate {
			continue
		}
		if filter.EndDate != "" && st.AdmissionDate > filter.EndDate {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *AnalyticsService) filteredAttendance(ctx context.Context, filter AnalyticsFilter) ([]models.AttendanceRecord, error) {
	var filters []docstore.Filter
	if filter.Class != "" {
		filters = append(filters, docstore.Where("class", "==", filter.Class))
	}
	if filter.Section != "" {
		filters = append(filters, docstore.Where("section", "==", filter.Section))
	}
	if filter.StartDate != "" {
		filters = append(filters, docstore.Where("date", ">=", filter.StartDate))
	}
	if filter.EndDate != "" {
		filters = append(filters, docstore.Where("date", "<=", filter.EndDate))
	}

	docs, err := s.store.Query(ctx, models.CollectionAttendance, docstore.Query{Filters: filters})
	if err != nil {
		return nil, err
	}
	return docstore.DecodeAll[models.AttendanceRecord](docs)
}

func (s *AnalyticsService) filteredFees(ctx context.Context, filter AnalyticsFilter) ([]models.FeeRecord, error) {
	var filters []docstore.Filter
	if filter.Class != "" {
		filters = append(filters, docstore.Where("class", "==", filter.Class))
	}

	docs, err := s.store.Query(ctx, models.CollectionFees, docstore.Query{Filters: filters})
	if err != nil {
		return nil, err
	}
	return docstore.DecodeAll[models.FeeRecord](docs)
}
