package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/school-admin/backend/internal/docstore"
	"github.com/school-admin/backend/internal/models"
	"github.com/school-admin/backend/internal/services"
)

// ResourceHandler serves the CRUD screens (students, teachers, staff,
// fees, attendance, grade systems, settings) through the generic document
// store. Every mutation is recorded in the activity log: creates and
// deletes with a snapshot, updates with a field-level diff.
type ResourceHandler struct {
	store    docstore.Store
	activity *services.ActivityService
}

func NewResourceHandler(store docstore.Store, activity *services.ActivityService) *ResourceHandler {
	return &ResourceHandler{store: store, activity: activity}
}

// listFilters whitelists the query parameters each collection may be
// filtered by; filter fields reach the store's query builder.
var listFilters = map[string][]string{
	models.CollectionStudents:   {"class", "section", "status"},
	models.CollectionTeachers:   {"status", "subject"},
	models.CollectionStaff:      {"status", "department"},
	models.CollectionFees:       {"studentId", "status", "class"},
	models.CollectionAttendance: {"studentId", "class", "section", "date", "status"},
}

func (h *ResourceHandler) List(collection string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var filters []docstore.Filter
		for _, field := range listFilters[collection] {
			if value := c.Query(field); value != "" {
				filters = append(filters, docstore.Where(field, "==", value))
			}
		}

		docs, err := h.store.Query(c.Request.Context(), collection, docstore.Query{Filters: filters})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		out := make([]models.JSONB, 0, len(docs))
		for i := range docs {
			out = append(out, docWithID(&docs[i]))
		}
		c.JSON(http.StatusOK, out)
	}
}

func (h *ResourceHandler) Get(collection string) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := h.store.GetByID(c.Request.Context(), collection, c.Param("id"))
		if errors.Is(err, docstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, docWithID(doc))
	}
}

func (h *ResourceHandler) Create(collection string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var data models.JSONB
		if err := c.ShouldBindJSON(&data); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		delete(data, "id")

		id, err := h.store.Add(c.Request.Context(), collection, data)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		h.activity.Log(c.Request.Context(), c.GetString("user_id"), c.GetString("user_name"),
			models.ActionCreate, collection, id, nil, data, nil)

		c.JSON(http.StatusCreated, gin.H{"id": id})
	}
}

func (h *ResourceHandler) Update(collection string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		var patch models.JSONB
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		delete(patch, "id")

		before, err := h.store.GetByID(c.Request.Context(), collection, id)
		if errors.Is(err, docstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if err := h.store.Update(c.Request.Context(), collection, id, patch); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		after, err := h.store.GetByID(c.Request.Context(), collection, id)
		if err == nil {
			diff := h.activity.ComputeDiff(before.Data, after.Data)
			if len(diff) > 0 {
				h.activity.Log(c.Request.Context(), c.GetString("user_id"), c.GetString("user_name"),
					models.ActionUpdate, collection, id, diff, nil, nil)
			}
		}

		c.JSON(http.StatusOK, gin.H{"message": "Updated"})
	}
}

func (h *ResourceHandler) Delete(collection string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		before, err := h.store.GetByID(c.Request.Context(), collection, id)
		if errors.Is(err, docstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if err := h.store.Delete(c.Request.Context(), collection, id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		h.activity.Log(c.Request.Context(), c.GetString("user_id"), c.GetString("user_name"),
			models.ActionDelete, collection, id, nil, before.Data, nil)

		c.JSON(http.StatusOK, gin.H{"message": "Deleted"})
	}
}

// docWithID flattens a document into its data plus id and timestamps, the
// shape the dashboard consumes.
func docWithID(doc *docstore.Document) models.JSONB {
	out := make(models.JSONB, len(doc.Data)+3)
	for k, v := range doc.Data {
		out[k] = v
	}
	out["id"] = doc.ID
	out["createdAt"] = doc.CreatedAt
	out["updatedAt"] = doc.UpdatedAt
	return out
}
