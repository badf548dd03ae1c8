package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/school-admin/backend/internal/docstore"
	"github.com/school-admin/backend/internal/models"
	"github.com/school-admin/backend/internal/results"
)

// Domain errors
var (
	ErrExamNotFound        = errors.New("exam not found")
	ErrExamLocked          = errors.New("exam is locked")
	ErrGradeSystemNotFound = errors.New("grade system not found")
	ErrMaxMarksMismatch    = errors.New("mark max marks do not match exam subject")
	ErrCommitFailed        = errors.New("publish commit failed")
	ErrResultNotFound      = errors.New("result not found")
)

// Notifier delivers out-of-band notifications after state changes. Its
// failures never roll back the change that triggered them.
type Notifier interface {
	NotifyAdmins(ctx context.Context, title, body, notifType string, meta models.JSONB) error
}

// ExamService owns the exam lifecycle: creation, mark entry up to the lock,
// and the atomic publish that finalizes results.
type ExamService struct {
	store    docstore.Store
	activity *ActivityService
	notifier Notifier
	log      zerolog.Logger
}

func NewExamService(store docstore.Store, activity *ActivityService, notifier Notifier, log zerolog.Logger) *ExamService {
	return &ExamService{
		store:    store,
		activity: activity,
		notifier: notifier,
		log:      log.With().Str("component", "exam_service").Logger(),
	}
}

// CreateExam stores a new exam in draft state.
func (s *ExamService) CreateExam(ctx context.Context, exam models.Exam) (string, error) {
	exam.Published = false
	exam.Locked = false

	data, err := docstore.Encode(exam)
	if err != nil {
		return "", err
	}
	return s.store.Add(ctx, models.CollectionExams, data)
}

// GetExam loads one exam.
func (s *ExamService) GetExam(ctx context.Context, examID string) (*models.Exam, error) {
	doc, err := s.store.GetByID(ctx, models.CollectionExams, examID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, err
	}
	var exam models.Exam
	if err := doc.Decode(&exam); err != nil {
		return nil, err
	}
	return &exam, nil
}

// ListExams returns all exams.
func (s *ExamService) ListExams(ctx context.Context) ([]models.Exam, error) {
	docs, err := s.store.GetAll(ctx, models.CollectionExams)
	if err != nil {
		return nil, err
	}
	return docstore.DecodeAll[models.Exam](docs)
}

// UpdateExam patches a draft exam. Locked exams reject updates, and the
// published/locked flags can only change through the publish path.
func (s *ExamService) UpdateExam(ctx context.Context, examID string, patch models.JSONB) error {
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return err
	}
	if exam.Locked {
		return ErrExamLocked
	}
	delete(patch, "published")
	delete(patch, "locked")
	return s.store.Update(ctx, models.CollectionExams, examID, patch)
}

// SaveMark records or updates one (exam, student, subject) mark entry.
// Marks are append/update-only while the exam is unlocked and immutable
// after. Max marks must match the exam subject's max marks at entry time.
func (s *ExamService) SaveMark(ctx context.Context, mark models.Mark, enteredBy string) (string, error) {
	exam, err := s.GetExam(ctx, mark.ExamID)
	if err != nil {
		return "", err
	}
	if exam.Locked {
		return "", ErrExamLocked
	}
	if subject, ok := exam.Subject(mark.SubjectID); ok && subject.MaxMarks != mark.MaxMarks {
		return "", ErrMaxMarksMismatch
	}

	existing, err := s.store.Query(ctx, models.CollectionMarks, docstore.Query{
		Filters: []docstore.Filter{
			docstore.Where("examId", "==", mark.ExamID),
			docstore.Where("studentId", "==", mark.StudentID),
			docstore.Where("subjectId", "==", mark.SubjectID),
		},
	})
	if err != nil {
		return "", err
	}

	mark.EnteredBy = enteredBy
	mark.EnteredAt = time.Now().UTC()
	data, err := docstore.Encode(mark)
	if err != nil {
		return "", err
	}

	if len(existing) > 0 {
		id := existing[0].ID
		return id, s.store.Update(ctx, models.CollectionMarks, id, data)
	}
	return s.store.Add(ctx, models.CollectionMarks, data)
}

// ExamMarks returns every mark entry for an exam across all students.
func (s *ExamService) ExamMarks(ctx context.Context, examID string) ([]models.Mark, error) {
	docs, err := s.store.Query(ctx, models.CollectionMarks, docstore.Query{
		Filters: []docstore.Filter{docstore.Where("examId", "==", examID)},
	})
	if err != nil {
		return nil, err
	}
	return docstore.DecodeAll[models.Mark](docs)
}

// StudentMarks returns one student's marks for an exam.
func (s *ExamService) StudentMarks(ctx context.Context, examID, studentID string) ([]models.Mark, error) {
	docs, err := s.store.Query(ctx, models.CollectionMarks, docstore.Query{
		Filters: []docstore.Filter{
			docstore.Where("examId", "==", examID),
			docstore.Where("studentId", "==", studentID),
		},
	})
	if err != nil {
		return nil, err
	}
	return docstore.DecodeAll[models.Mark](docs)
}

// PublishResults finalizes an exam: it builds one result per student with
// gradeable marks and commits all of them together with the exam's
// published/locked flip as a single atomic batch. Either every result and
// the flag flip become visible together, or nothing does. Exactly one
// publish activity entry follows a successful commit; a rejected publish
// logs nothing.
func (s *ExamService) PublishResults(ctx context.Context, examID, gradeSystemID, actorUID, actorName string) error {
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return err
	}
	if exam.Locked {
		return ErrExamLocked
	}

	gradeSystem, err := s.getGradeSystem(ctx, gradeSystemID)
	if err != nil {
		return err
	}

	marks, err := s.ExamMarks(ctx, examID)
	if err != nil {
		return err
	}

	lookup := &storeStudentLookup{store: s.store}
	batch := s.store.NewBatch()
	batch.Check(models.CollectionExams, examID, "locked", false)

	processed := 0
	for _, group := range results.Aggregate(marks) {
		result, ok, err := results.Build(ctx, exam, gradeSystem, group, lookup)
		if err != nil {
			return fmt.Errorf("build result for student %s: %w", group.StudentID, err)
		}
		if !ok {
			continue
		}
		result.ID = uuid.New().String()
		data, err := docstore.Encode(result)
		if err != nil {
			return err
		}
		batch.Set(models.CollectionResults, result.ID, data)
		processed++
	}

	batch.Update(models.CollectionExams, examID, models.JSONB{
		"published": true,
		"locked":    true,
	})

	if err := batch.Commit(ctx); err != nil {
		if errors.Is(err, docstore.ErrCheckFailed) {
			return ErrExamLocked
		}
		return fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}

	s.log.Info().
		Str("exam_id", examID).
		Int("students_processed", processed).
		Msg("exam results published")

	_, err = s.activity.Log(ctx, actorUID, actorName, models.ActionPublish, models.CollectionExams, examID,
		nil,
		models.JSONB{"published": true, "locked": true},
		models.JSONB{"studentsProcessed": processed})
	if err != nil {
		return fmt.Errorf("results committed but audit entry failed: %w", err)
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyAdmins(ctx, "Results published",
			fmt.Sprintf("Results for %s are now available", exam.Name),
			"results", models.JSONB{"examId": examID}); err != nil {
			s.log.Warn().Err(err).Str("exam_id", examID).Msg("admin notification failed")
		}
	}

	return nil
}

// ExamResults lists all published results for an exam with read-time ranks
// assigned in percentage order.
func (s *ExamService) ExamResults(ctx context.Context, examID string) ([]models.StudentResult, error) {
	docs, err := s.store.Query(ctx, models.CollectionResults, docstore.Query{
		Filters: []docstore.Filter{docstore.Where("examId", "==", examID)},
	})
	if err != nil {
		return nil, err
	}
	rs, err := docstore.DecodeAll[models.StudentResult](docs)
	if err != nil {
		return nil, err
	}
	return results.Rank(rs), nil
}

// StudentResultFor returns one student's published result for an exam.
func (s *ExamService) StudentResultFor(ctx context.Context, examID, studentID string) (*models.StudentResult, error) {
	docs, err := s.store.Query(ctx, models.CollectionResults, docstore.Query{
		Filters: []docstore.Filter{
			docstore.Where("examId", "==", examID),
			docstore.Where("studentId", "==", studentID),
		},
		Limit: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrResultNotFound
	}
	var result models.StudentResult
	if err := docs[0].Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *ExamService) getGradeSystem(ctx context.Context, id string) (*models.GradeSystem, error) {
	doc, err := s.store.GetByID(ctx, models.CollectionGradeSystems, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrGradeSystemNotFound
	}
	if err != nil {
		return nil, err
	}
	var gs models.GradeSystem
	if err := doc.Decode(&gs); err != nil {
		return nil, err
	}
	return &gs, nil
}

// storeStudentLookup resolves students through the document store. A
// missing record resolves to nil, not an error.
type storeStudentLookup struct {
	store docstore.Store
}

func (l *storeStudentLookup) LookupStudent(ctx context.Context, id string) (*models.Student, error) {
	doc, err := l.store.GetByID(ctx, models.CollectionStudents, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var student models.Student
	if err := doc.Decode(&student); err != nil {
		return nil, err
	}
	return &student, nil
}
