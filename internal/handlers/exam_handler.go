package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/school-admin/backend/internal/docstore"
	"github.com/school-admin/backend/internal/models"
	"github.com/school-admin/backend/internal/services"
)

type ExamHandler struct {
	exams    *services.ExamService
	activity *services.ActivityService
}

func NewExamHandler(exams *services.ExamService, activity *services.ActivityService) *ExamHandler {
	return &ExamHandler{exams: exams, activity: activity}
}

type CreateExamRequest struct {
	Name         string               `json:"name" binding:"required"`
	Type         string               `json:"type" binding:"required"`
	AcademicYear string               `json:"academicYear" binding:"required"`
	StartDate    string               `json:"startDate" binding:"required"`
	EndDate      string               `json:"endDate" binding:"required"`
	ClassIDs     []string             `json:"classIds"`
	Subjects     []models.ExamSubject `json:"subjects" binding:"required,min=1,dive"`
	Weights      map[string]float64   `json:"weights"`
}

func (h *ExamHandler) Create(c *gin.Context) {
	var req CreateExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exam := models.Exam{
		Name:         req.Name,
		Type:         req.Type,
		AcademicYear: req.AcademicYear,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		ClassIDs:     req.ClassIDs,
		Subjects:     req.Subjects,
		Weights:      req.Weights,
	}

	id, err := h.exams.CreateExam(c.Request.Context(), exam)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	snapshot, _ := docstore.Encode(exam)
	h.activity.Log(c.Request.Context(), c.GetString("user_id"), c.GetString("user_name"),
		models.ActionCreate, models.CollectionExams, id, nil, snapshot, nil)

	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *ExamHandler) List(c *gin.Context) {
	exams, err := h.exams.ListExams(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, exams)
}

func (h *ExamHandler) Get(c *gin.Context) {
	exam, err := h.exams.GetExam(c.Request.Context(), c.Param("id"))
	if errors.Is(err, services.ErrExamNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Exam not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, exam)
}

func (h *ExamHandler) Update(c *gin.Context) {
	examID := c.Param("id")

	var patch models.JSONB
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	before, err := h.exams.GetExam(c.Request.Context(), examID)
	if errors.Is(err, services.ErrExamNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Exam not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.exams.UpdateExam(c.Request.Context(), examID, patch); err != nil {
		switch {
		case errors.Is(err, services.ErrExamLocked):
			c.JSON(http.StatusConflict, gin.H{"error": "Exam is locked"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	after, err := h.exams.GetExam(c.Request.Context(), examID)
	if err == nil {
		beforeData, _ := docstore.Encode(before)
		afterData, _ := docstore.Encode(after)
		diff := h.activity.ComputeDiff(beforeData, afterData)
		if len(diff) > 0 {
			h.activity.Log(c.Request.Context(), c.GetString("user_id"), c.GetString("user_name"),
				models.ActionUpdate, models.CollectionExams, examID, diff, nil, nil)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Updated"})
}

type SaveMarkRequest struct {
	StudentID     string  `json:"studentId" binding:"required"`
	SubjectID     string  `json:"subjectId" binding:"required"`
	MarksObtained float64 `json:"marksObtained" binding:"min=0"`
	MaxMarks      float64 `json:"maxMarks" binding:"required,gt=0"`
	Remarks       string  `json:"remarks"`
}

func (h *ExamHandler) SaveMark(c *gin.Context) {
	var req SaveMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mark := models.Mark{
		ExamID:        c.Param("id"),
		StudentID:     req.StudentID,
		SubjectID:     req.SubjectID,
		MarksObtained: req.MarksObtained,
		MaxMarks:      req.MaxMarks,
		Remarks:       req.Remarks,
	}

	id, err := h.exams.SaveMark(c.Request.Context(), mark, c.GetString("user_id"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrExamNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Exam not found"})
		case errors.Is(err, services.ErrExamLocked):
			c.JSON(http.StatusConflict, gin.H{"error": "Exam is locked"})
		case errors.Is(err, services.ErrMaxMarksMismatch):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Max marks do not match the exam subject"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *ExamHandler) ListMarks(c *gin.Context) {
	examID := c.Param("id")

	var (
		marks []models.Mark
		err   error
	)
	if studentID := c.Query("studentId"); studentID != "" {
		marks, err = h.exams.StudentMarks(c.Request.Context(), examID, studentID)
	} else {
		marks, err = h.exams.ExamMarks(c.Request.Context(), examID)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, marks)
}

type PublishRequest struct {
	GradeSystemID string `json:"gradeSystemId" binding:"required"`
}

func (h *ExamHandler) Publish(c *gin.Context) {
	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.exams.PublishResults(c.Request.Context(), c.Param("id"), req.GradeSystemID,
		c.GetString("user_id"), c.GetString("user_name"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrExamNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Exam not found"})
		case errors.Is(err, services.ErrExamLocked):
			c.JSON(http.StatusConflict, gin.H{"error": "Exam is already locked"})
		case errors.Is(err, services.ErrGradeSystemNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Grade system not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Results published"})
}

func (h *ExamHandler) ListResults(c *gin.Context) {
	results, err := h.exams.ExamResults(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *ExamHandler) GetStudentResult(c *gin.Context) {
	result, err := h.exams.StudentResultFor(c.Request.Context(), c.Param("id"), c.Param("studentId"))
	if errors.Is(err, services.ErrResultNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Result not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
