package services

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/school-admin/backend/internal/docstore"
	"github.com/school-admin/backend/internal/models"
)

type captureNotifier struct {
	titles []string
	err    error
}

func (n *captureNotifier) NotifyAdmins(ctx context.Context, title, body, notifType string, meta models.JSONB) error {
	n.titles = append(n.titles, title)
	return n.err
}

type examFixture struct {
	svc      *ExamService
	activity *ActivityService
	store    *docstore.MemStore
	notifier *captureNotifier
}

func newExamFixture() *examFixture {
	store := docstore.NewMemStore()
	activity := NewActivityService(store, zerolog.Nop())
	notifier := &captureNotifier{}
	return &examFixture{
		svc:      NewExamService(store, activity, notifier, zerolog.Nop()),
		activity: activity,
		store:    store,
		notifier: notifier,
	}
}

func (f *examFixture) seedExam(t *testing.T) string {
	t.Helper()
	id, err := f.svc.CreateExam(context.Background(), models.Exam{
		Name:         "Mid Term",
		Type:         "midterm",
		AcademicYear: "2026",
		Subjects: []models.ExamSubject{
			{ID: "math", Name: "Mathematics", MaxMarks: 50, PassingMarks: 20},
			{ID: "eng", Name: "English", MaxMarks: 50, PassingMarks: 20},
		},
	})
	if err != nil {
		t.Fatalf("CreateExam failed: %v", err)
	}
	return id
}

func (f *examFixture) seedGradeSystem(t *testing.T) string {
	t.Helper()
	data, err := docstore.Encode(models.GradeSystem{
		Name: "Standard",
		Boundaries: []models.GradeBoundary{
			{Grade: "A", MinPercentage: 80, MaxPercentage: 100},
			{Grade: "B", MinPercentage: 70, MaxPercentage: 79.99},
			{Grade: "C", MinPercentage: 50, MaxPercentage: 69.99},
			{Grade: "F", MinPercentage: 0, MaxPercentage: 49.99},
		},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	id, err := f.store.Add(context.Background(), models.CollectionGradeSystems, data)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	return id
}

func (f *examFixture) seedStudent(t *testing.T, name, class, section string) string {
	t.Helper()
	id, err := f.store.Add(context.Background(), models.CollectionStudents, models.JSONB{
		"name": name, "class": class, "section": section, "status": "active",
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	return id
}

func TestCreateExamStartsDraft(t *testing.T) {
	ctx := context.Background()
	f := newExamFixture()

	id, err := f.svc.CreateExam(ctx, models.Exam{Name: "Final", Published: true, Locked: true})
	if err != nil {
		t.Fatalf("CreateExam failed: %v", err)
	}

	exam, err := f.svc.GetExam(ctx, id)
	if err != nil {
		t.Fatalf("GetExam failed: %v", err)
	}
	if exam.Published || exam.Locked {
		t.Errorf("Expected draft state regardless of input flags, got published=%v locked=%v", exam.Published, exam.Locked)
	}
}

func TestGetExamNotFound(t *testing.T) {
	f := newExamFixture()
	if _, err := f.svc.GetExam(context.Background(), "missing"); !errors.Is(err, ErrExamNotFound) {
		t.Errorf("Expected ErrExamNotFound, got %v", err)
	}
}

func TestUpdateExamGuards(t *testing.T) {
	ctx := context.Background()
	f := newExamFixture()
	examID := f.seedExam(t)

	// The lifecycle flags cannot be smuggled through a patch.
	if err := f.svc.UpdateExam(ctx, examID, models.JSONB{"name": "Renamed", "published": true, "locked": true}); err != nil {
		t.Fatalf("UpdateExam failed: %v", err)
	}
	exam, _ := f.svc.GetExam(ctx, examID)
	if exam.Name != "Renamed" {
		t.Errorf("Expected renamed exam, got %q", exam.Name)
	}
	if exam.Published || exam.Locked {
		t.Error("Expected published/locked stripped from patch")
	}

	// Once locked, updates are rejected outright.
	_ = f.store.Update(ctx, models.CollectionExams, examID, models.JSONB{"locked": true})
	if err := f.svc.UpdateExam(ctx, examID, models.JSONB{"name": "Again"}); !errors.Is(err, ErrExamLocked) {
		t.Errorf("Expected ErrExamLocked, got %v", err)
	}
}

func TestSaveMark(t *testing.T) {
	ctx := context.Background()
	f := newExamFixture()
	examID := f.seedExam(t)

	id, err := f.svc.SaveMark(ctx, models.Mark{
		ExamID: examID, StudentID: "s1", SubjectID: "math", MarksObtained: 30, MaxMarks: 50,
	}, "teacher-1")
	if err != nil {
		t.Fatalf("SaveMark failed: %v", err)
	}

	// Saving the same (exam, student, subject) again updates in place.
	id2, err := f.svc.SaveMark(ctx, models.Mark{
		ExamID: examID, StudentID: "s1", SubjectID: "math", MarksObtained: 35, MaxMarks: 50,
	}, "teacher-1")
	if err != nil {
		t.Fatalf("SaveMark failed: %v", err)
	}
	if id2 != id {
		t.Errorf("Expected upsert to reuse id %s, got %s", id, id2)
	}

	marks, err := f.svc.ExamMarks(ctx, examID)
	if err != nil {
		t.Fatalf("ExamMarks failed: %v", err)
	}
	if len(marks) != 1 {
		t.Fatalf("Expected 1 mark entry, got %d", len(marks))
	}
	if marks[0].MarksObtained != 35 {
		t.Errorf("Expected updated score 35, got %v", marks[0].MarksObtained)
	}
	if marks[0].EnteredBy != "teacher-1" || marks[0].EnteredAt.IsZero() {
		t.Errorf("Expected entry attribution, got %+v", marks[0])
	}
}

func TestSaveMarkValidation(t *testing.T) {
	ctx := context.Background()
	f := newExamFixture()
	examID := f.seedExam(t)

	tests := []struct {
		name     string
		mark     models.Mark
		expected error
	}{
		{
			"Unknown Exam",
			models.Mark{ExamID: "missing", StudentID: "s1", SubjectID: "math", MaxMarks: 50},
			ErrExamNotFound,
		},
		{
			"Max Marks Mismatch",
			models.Mark{ExamID: examID, StudentID: "s1", SubjectID: "math", MarksObtained: 80, MaxMarks: 100},
			ErrMaxMarksMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.SaveMark(ctx, tt.mark, "teacher-1"); !errors.Is(err, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, err)
			}
		})
	}

	_ = f.store.Update(ctx, models.CollectionExams, examID, models.JSONB{"locked": true})
	_, err := f.svc.SaveMark(ctx, models.Mark{ExamID: examID, StudentID: "s1", SubjectID: "math", MaxMarks: 50}, "teacher-1")
	if !errors.Is(err, ErrExamLocked) {
		t.Errorf("Expected ErrExamLocked after lock, got %v", err)
	}
}

func TestPublishResults(t *testing.T) {
	ctx := context.Background()
	f := newExamFixture()
	examID := f.seedExam(t)
	gsID := f.seedGradeSystem(t)
	studentID := f.seedStudent(t, "Alice Okello", "S2", "A")

	for _, m := range []models.Mark{
		{ExamID: examID, StudentID: studentID, SubjectID: "math", MarksObtained: 40, MaxMarks: 50},
		{ExamID: examID, StudentID: studentID, SubjectID: "eng", MarksObtained: 45, MaxMarks: 50},
	} {
		if _, err := f.svc.SaveMark(ctx, m, "teacher-1"); err != nil {
			t.Fatalf("SaveMark failed: %v", err)
		}
	}

	if err := f.svc.PublishResults(ctx, examID, gsID, "u1", "Admin"); err != nil {
		t.Fatalf("PublishResults failed: %v", err)
	}

	exam, _ := f.svc.GetExam(ctx, examID)
	if !exam.Published || !exam.Locked {
		t.Errorf("Expected exam published and locked, got published=%v locked=%v", exam.Published, exam.Locked)
	}

	rs, err := f.svc.ExamResults(ctx, examID)
	if err != nil {
		t.Fatalf("ExamResults failed: %v", err)
	}
	if len(rs) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(rs))
	}
	r := rs[0]
	if r.StudentName != "Alice Okello" || r.Class != "S2" || r.Section != "A" {
		t.Errorf("Expected student snapshot on the result, got %q/%q/%q", r.StudentName, r.Class, r.Section)
	}
	if r.TotalMarks != 100 || r.MarksObtained != 85 || r.Percentage != 85 {
		t.Errorf("Expected 85/100 at 85%%, got %v/%v at %v%%", r.MarksObtained, r.TotalMarks, r.Percentage)
	}
	if r.Grade != "A" || r.Rank != 1 {
		t.Errorf("Expected grade A rank 1, got %s rank %d", r.Grade, r.Rank)
	}

	// Exactly one publish audit entry carrying the processed count.
	history, _ := f.activity.EntityHistory(ctx, models.CollectionExams, examID)
	if len(history) != 1 {
		t.Fatalf("Expected 1 publish entry, got %d", len(history))
	}
	if history[0].Action != models.ActionPublish {
		t.Errorf("Expected publish action, got %s", history[0].Action)
	}
	if processed, _ := history[0].Meta["studentsProcessed"].(float64); processed != 1 {
		t.Errorf("Expected studentsProcessed=1, got %v", history[0].Meta["studentsProcessed"])
	}

	if len(f.notifier.titles) != 1 {
		t.Errorf("Expected 1 admin notification, got %d", len(f.notifier.titles))
	}
}

func TestPublishResultsSkipsZeroTotal(t *testing.T) {
	ctx := context.Background()
	f := newExamFixture()
	examID := f.seedExam(t)
	gsID := f.seedGradeSystem(t)

	// s1 has gradeable marks, s2 only a zero-max entry.
	if _, err := f.svc.SaveMark(ctx, models.Mark{
		ExamID: examID, StudentID: "s1", SubjectID: "math", MarksObtained: 25, MaxMarks: 50,
	}, "teacher-1"); err != nil {
		t.Fatalf("SaveMark failed: %v", err)
	}
	markData, _ := docstore.Encode(models.Mark{ExamID: examID, StudentID: "s2", SubjectID: "math", MaxMarks: 0})
	_, _ = f.store.Add(ctx, models.CollectionMarks, markData)

	if err := f.svc.PublishResults(ctx, examID, gsID, "u1", "Admin"); err != nil {
		t.Fatalf("PublishResults failed: %v", err)
	}

	rs, _ := f.svc.ExamResults(ctx, examID)
	if len(rs) != 1 || rs[0].StudentID != "s1" {
		t.Fatalf("Expected only s1 in the published set, got %d results", len(rs))
	}

	history, _ := f.activity.EntityHistory(ctx, models.CollectionExams, examID)
	if processed, _ := history[0].Meta["studentsProcessed"].(float64); processed != 1 {
		t.Errorf("Expected studentsProcessed=1, got %v", history[0].Meta["studentsProcessed"])
	}
}

func TestPublishResultsLockedRejected(t *testing.T) {
	ctx := context.Background()
	f := newExamFixture()
	examID := f.seedExam(t)
	gsID := f.seedGradeSystem(t)

	_ = f.store.Update(ctx, models.CollectionExams, examID, models.JSONB{"locked": true})

	if err := f.svc.PublishResults(ctx, examID, gsID, "u1", "Admin"); !errors.Is(err, ErrExamLocked) {
		t.Fatalf("Expected ErrExamLocked, got %v", err)
	}

	// A rejected publish writes nothing: no results, no audit entry, no
	// notification.
	if f.store.Count(models.CollectionResults) != 0 {
		t.Error("Expected no results")
	}
	if f.store.Count(models.CollectionActivityLogs) != 0 {
		t.Error("Expected no audit entries")
	}
	if len(f.notifier.titles) != 0 {
		t.Error("Expected no notifications")
	}
}

func TestPublishResultsConcurrentLockWins(t *testing.T) {
	ctx := context.Background()
	f := newExamFixture()
	examID := f.seedExam(t)
	gsID := f.seedGradeSystem(t)

	if _, err := f.svc.SaveMark(ctx, models.Mark{
		ExamID: examID, StudentID: "s1", SubjectID: "math", MarksObtained: 25, MaxMarks: 50,
	}, "teacher-1"); err != nil {
		t.Fatalf("SaveMark failed: %v", err)
	}

	// Another publisher locks the exam between the pre-check and commit:
	// the batch precondition catches it and the second publish loses.
	batch := f.store.NewBatch()
	batch.Check(models.CollectionExams, examID, "locked", false)
	batch.Update(models.CollectionExams, examID, models.JSONB{"published": true, "locked": true})
	if err := batch.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	err := f.svc.PublishResults(ctx, examID, gsID, "u1", "Admin")
	if !errors.Is(err, ErrExamLocked) {
		t.Fatalf("Expected ErrExamLocked from the precondition, got %v", err)
	}
	if f.store.Count(models.CollectionResults) != 0 {
		t.Error("Expected the losing publish to write nothing")
	}
}

func TestPublishResultsUnknownGradeSystem(t *testing.T) {
	ctx := context.Background()
	f := newExamFixture()
	examID := f.seedExam(t)

	if err := f.svc.PublishResults(ctx, examID, "missing", "u1", "Admin"); !errors.Is(err, ErrGradeSystemNotFound) {
		t.Errorf("Expected ErrGradeSystemNotFound, got %v", err)
	}
}

// brokenBatchStore fails every batch commit, standing in for a backend
// outage at the worst possible moment.
type brokenBatchStore struct {
	docstore.Store
}

type brokenBatch struct{}

func (brokenBatch) Set(collection, id string, data models.JSONB) {}

func (brokenBatch) Update(collection, id string, patch models.JSONB) {}

func (brokenBatch) Delete(collection, id string) {}

func (brokenBatch) Check(collection, id, field string, want interface{}) {}

func (brokenBatch) Commit(ctx context.Context) error { return errors.New("backend unavailable") }

func (s *brokenBatchStore) NewBatch() docstore.Batch { return brokenBatch{} }

func TestPublishResultsCommitFailure(t *testing.T) {
	ctx := context.Background()
	f := newExamFixture()
	examID := f.seedExam(t)
	gsID := f.seedGradeSystem(t)

	if _, err := f.svc.SaveMark(ctx, models.Mark{
		ExamID: examID, StudentID: "s1", SubjectID: "math", MarksObtained: 25, MaxMarks: 50,
	}, "teacher-1"); err != nil {
		t.Fatalf("SaveMark failed: %v", err)
	}

	broken := &brokenBatchStore{Store: f.store}
	svc := NewExamService(broken, f.activity, f.notifier, zerolog.Nop())

	err := svc.PublishResults(ctx, examID, gsID, "u1", "Admin")
	if !errors.Is(err, ErrCommitFailed) {
		t.Fatalf("Expected ErrCommitFailed, got %v", err)
	}

	// The failed commit leaves no trace.
	exam, _ := f.svc.GetExam(ctx, examID)
	if exam.Published || exam.Locked {
		t.Error("Expected exam unchanged after failed commit")
	}
	if f.store.Count(models.CollectionResults) != 0 {
		t.Error("Expected no results after failed commit")
	}
	if f.store.Count(models.CollectionActivityLogs) != 0 {
		t.Error("Expected no audit entry after failed commit")
	}
}

func TestPublishResultsNotifierFailureTolerated(t *testing.T) {
	ctx := context.Background()
	f := newExamFixture()
	f.notifier.err = errors.New("smtp down")
	examID := f.seedExam(t)
	gsID := f.seedGradeSystem(t)

	if _, err := f.svc.SaveMark(ctx, models.Mark{
		ExamID: examID, StudentID: "s1", SubjectID: "math", MarksObtained: 25, MaxMarks: 50,
	}, "teacher-1"); err != nil {
		t.Fatalf("SaveMark failed: %v", err)
	}

	if err := f.svc.PublishResults(ctx, examID, gsID, "u1", "Admin"); err != nil {
		t.Fatalf("Expected publish to succeed despite notifier failure, got %v", err)
	}
}

func TestExamResultsRanking(t *testing.T) {
	ctx := context.Background()
	f := newExamFixture()
	examID := f.seedExam(t)
	gsID := f.seedGradeSystem(t)

	for _, m := range []models.Mark{
		{ExamID: examID, StudentID: "s1", SubjectID: "math", MarksObtained: 37.5, MaxMarks: 50},
		{ExamID: examID, StudentID: "s2", SubjectID: "math", MarksObtained: 45, MaxMarks: 50},
		{ExamID: examID, StudentID: "s3", SubjectID: "math", MarksObtained: 45, MaxMarks: 50},
	} {
		if _, err := f.svc.SaveMark(ctx, m, "teacher-1"); err != nil {
			t.Fatalf("SaveMark failed: %v", err)
		}
	}

	if err := f.svc.PublishResults(ctx, examID, gsID, "u1", "Admin"); err != nil {
		t.Fatalf("PublishResults failed: %v", err)
	}

	rs, err := f.svc.ExamResults(ctx, examID)
	if err != nil {
		t.Fatalf("ExamResults failed: %v", err)
	}
	if len(rs) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(rs))
	}
	if rs[0].Percentage != 90 || rs[0].Rank != 1 {
		t.Errorf("Expected 90%% at rank 1, got %v%% rank %d", rs[0].Percentage, rs[0].Rank)
	}
	if rs[1].Percentage != 90 || rs[1].Rank != 2 {
		t.Errorf("Expected tied 90%% at distinct rank 2, got %v%% rank %d", rs[1].Percentage, rs[1].Rank)
	}
	if rs[2].StudentID != "s1" || rs[2].Rank != 3 {
		t.Errorf("Expected s1 at rank 3, got %s rank %d", rs[2].StudentID, rs[2].Rank)
	}
}

func TestStudentResultFor(t *testing.T) {
	ctx := context.Background()
	f := newExamFixture()
	examID := f.seedExam(t)
	gsID := f.seedGradeSystem(t)

	if _, err := f.svc.SaveMark(ctx, models.Mark{
		ExamID: examID, StudentID: "s1", SubjectID: "math", MarksObtained: 40, MaxMarks: 50,
	}, "teacher-1"); err != nil {
		t.Fatalf("SaveMark failed: %v", err)
	}
	if err := f.svc.PublishResults(ctx, examID, gsID, "u1", "Admin"); err != nil {
		t.Fatalf("PublishResults failed: %v", err)
	}

	result, err := f.svc.StudentResultFor(ctx, examID, "s1")
	if err != nil {
		t.Fatalf("StudentResultFor failed: %v", err)
	}
	if result.Percentage != 80 || result.Grade != "A" {
		t.Errorf("Expected 80%% grade A, got %v%% grade %s", result.Percentage, result.Grade)
	}

	if _, err := f.svc.StudentResultFor(ctx, examID, "nobody"); !errors.Is(err, ErrResultNotFound) {
		t.Errorf("Expected ErrResultNotFound, got %v", err)
	}
}
