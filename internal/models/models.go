package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSONB custom type for JSON fields
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONB)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Collection names for the document store
const (
	CollectionStudents     = "students"
	CollectionTeachers     = "teachers"
	CollectionStaff        = "staff"
	CollectionFees         = "fees"
	CollectionAttendance   = "attendance"
	CollectionSettings     = "settings"
	CollectionExams        = "exams"
	CollectionMarks        = "marks"
	CollectionGradeSystems = "gradeSystems"
	CollectionResults      = "results"
	CollectionActivityLogs  = "activityLogs"
	CollectionNotifications = "notifications"
	CollectionFileMeta      = "fileMeta"
)

// Activity actions
const (
	ActionCreate    = "create"
	ActionUpdate    = "update"
	ActionDelete    = "delete"
	ActionPublish   = "publish"
	ActionUnpublish = "unpublish"
	ActionRevert    = "revert"
)

// Student represents an enrolled student
type Student struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Class         string    `json:"class"`
	Section       string    `json:"section"`
	GuardianName  string    `json:"guardianName"`
	GuardianPhone string    `json:"guardianPhone"`
	Address       string    `json:"address"`
	DateOfBirth   string    `json:"dateOfBirth"`
	AdmissionDate string    `json:"admissionDate"`
	Status        string    `json:"status"`
	PhotoURL      string    `json:"photoURL,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Teacher represents a teaching staff member
type Teacher struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	Subject        string    `json:"subject"`
	Qualifications string    `json:"qualifications"`
	Experience     string    `json:"experience"`
	JoiningDate    string    `json:"joiningDate"`
	Status         string    `json:"status"`
	Address        string    `json:"address"`
	PhotoURL       string    `json:"photoURL,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Staff represents a non-teaching staff member
type Staff struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Role        string    `json:"role"`
	Department  string    `json:"department"`
	JoiningDate string    `json:"joiningDate"`
	Status      string    `json:"status"`
	Address     string    `json:"address"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PaymentEntry is a single fee payment
type PaymentEntry struct {
	ID      string  `json:"id"`
	Amount  float64 `json:"amount"`
	Date    string  `json:"date"`
	Method  string  `json:"method"`
	Remarks string  `json:"remarks,omitempty"`
}

// FeeRecord tracks fees for one student
type FeeRecord struct {
	ID              string         `json:"id"`
	StudentID       string         `json:"studentId"`
	StudentName     string         `json:"studentName"`
	Class           string         `json:"class"`
	TotalFees       float64        `json:"totalFees"`
	PaidAmount      float64        `json:"paidAmount"`
	Balance         float64        `json:"balance"`
	LastPaymentDate string         `json:"lastPaymentDate,omitempty"`
	PaymentHistory  []PaymentEntry `json:"paymentHistory"`
	Status          string         `json:"status"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// AttendanceRecord is one day's attendance for one student
type AttendanceRecord struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"studentId"`
	StudentName string    `json:"studentName"`
	Class       string    `json:"class"`
	Section     string    `json:"section"`
	Date        string    `json:"date"`
	Status      string    `json:"status"`
	Remarks     string    `json:"remarks,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SchoolSettings holds school-wide configuration
type SchoolSettings struct {
	ID           string    `json:"id"`
	SchoolName   string    `json:"schoolName"`
	Address      string    `json:"address"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email"`
	Website      string    `json:"website,omitempty"`
	AcademicYear string    `json:"academicYear"`
	LogoURL      string    `json:"logoURL,omitempty"`
	DateFormat   string    `json:"dateFormat"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ExamSubject is a subject embedded in an exam
type ExamSubject struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	MaxMarks     float64 `json:"maxMarks"`
	PassingMarks float64 `json:"passingMarks"`
}

// Exam represents a graded assessment event. Once locked, marks for the
// exam must not be mutated; published implies locked.
type Exam struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Type         string             `json:"type"`
	AcademicYear string             `json:"academicYear"`
	StartDate    string             `json:"startDate"`
	EndDate      string             `json:"endDate"`
	ClassIDs     []string           `json:"classIds"`
	Subjects     []ExamSubject      `json:"subjects"`
	Weights      map[string]float64 `json:"weights,omitempty"`
	Published    bool               `json:"published"`
	Locked       bool               `json:"locked"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// Subject returns the embedded subject with the given id, if present.
func (e *Exam) Subject(subjectID string) (ExamSubject, bool) {
	for _, s := range e.Subjects {
		if s.ID == subjectID {
			return s, true
		}
	}
	return ExamSubject{}, false
}

// Mark is one subject-score entry for one student in one exam
type Mark struct {
	ID            string    `json:"id"`
	ExamID        string    `json:"examId"`
	StudentID     string    `json:"studentId"`
	SubjectID     string    `json:"subjectId"`
	MarksObtained float64   `json:"marksObtained"`
	MaxMarks      float64   `json:"maxMarks"`
	Remarks       string    `json:"remarks,omitempty"`
	EnteredBy     string    `json:"enteredBy"`
	EnteredAt     time.Time `json:"enteredAt"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// GradeBoundary maps a percentage band to a letter grade
type GradeBoundary struct {
	Grade         string   `json:"grade"`
	MinPercentage float64  `json:"minPercentage"`
	MaxPercentage float64  `json:"maxPercentage"`
	GradePoint    *float64 `json:"gradePoint,omitempty"`
}

// GradeSystem is a configurable percentage-to-grade mapping
type GradeSystem struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Boundaries []GradeBoundary `json:"boundaries"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// SubjectResult is the per-subject breakdown inside a student result
type SubjectResult struct {
	SubjectID     string  `json:"subjectId"`
	SubjectName   string  `json:"subjectName"`
	MarksObtained float64 `json:"marksObtained"`
	MaxMarks      float64 `json:"maxMarks"`
	Grade         string  `json:"grade"`
}

// StudentResult is the published outcome record for one student in one
// exam. Student name/class/section are snapshots taken at publish time.
// Rank is assigned at listing time only and never persisted.
type StudentResult struct {
	ID            string          `json:"id"`
	ExamID        string          `json:"examId"`
	StudentID     string          `json:"studentId"`
	StudentName   string          `json:"studentName"`
	Class         string          `json:"class"`
	Section       string          `json:"section"`
	TotalMarks    float64         `json:"totalMarks"`
	MarksObtained float64         `json:"marksObtained"`
	Percentage    float64         `json:"percentage"`
	Grade         string          `json:"grade"`
	Rank          int             `json:"rank,omitempty"`
	Subjects      []SubjectResult `json:"subjects"`
	GeneratedAt   time.Time       `json:"generatedAt"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// FieldChange is one field-level before/after pair in an activity diff
type FieldChange struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

// ActivityLog is one append-only audit entry
type ActivityLog struct {
	ID         string                 `json:"id"`
	ActorUID   string                 `json:"actorUid"`
	ActorName  string                 `json:"actorName"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entityType"`
	EntityID   string                 `json:"entityId"`
	Diff       map[string]FieldChange `json:"diff,omitempty"`
	Snapshot   JSONB                  `json:"snapshot,omitempty"`
	Meta       JSONB                  `json:"meta,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	CreatedAt  time.Time              `json:"createdAt"`
	UpdatedAt  time.Time              `json:"updatedAt"`
}

// Notification is an in-app notification for one user
type Notification struct {
	ID        string    `json:"id"`
	UID       string    `json:"uid"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Type      string    `json:"type"`
	Read      bool      `json:"read"`
	Meta      JSONB     `json:"meta,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FileMeta describes one stored file and where its bytes live
type FileMeta struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	MimeType    string    `json:"mimeType"`
	Size        int64     `json:"size"`
	OwnerType   string    `json:"ownerType"`
	OwnerID     string    `json:"ownerId"`
	StorageType string    `json:"storageType"`
	StoragePath string    `json:"storagePath,omitempty"`
	MigratedAt  string    `json:"migratedAt,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Base model with UUID for relational auth tables
type BaseModel struct {
	ID        uuid.UUID      `gorm:"type:char(36);primaryKey" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// User represents a dashboard user (admin/staff). Auth lives beside the
// document store in relational tables, like the original's auth provider.
type User struct {
	BaseModel
	Email        string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"type:varchar(255);not null" json:"-"`
	Role         string `gorm:"type:varchar(20);not null" json:"role"`
	FullName     string `gorm:"type:varchar(255);not null" json:"fullName"`
	IsActive     bool   `gorm:"default:true" json:"isActive"`
	Meta         JSONB  `gorm:"type:json" json:"meta"`
}

// RefreshToken stores issued refresh tokens for rotation checks
type RefreshToken struct {
	BaseModel
	UserID    uuid.UUID `gorm:"type:char(36);not null;index" json:"userId"`
	Token     string    `gorm:"type:text;not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null" json:"expiresAt"`
	Revoked   bool      `gorm:"default:false" json:"revoked"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
