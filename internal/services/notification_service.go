package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/school-admin/backend/internal/docstore"
	"github.com/school-admin/backend/internal/models"
	"gorm.io/gorm"
)

// NotificationService manages in-app notifications and implements Notifier
// by fanning out to every active admin user.
type NotificationService struct {
	store docstore.Store
	db    *gorm.DB
	log   zerolog.Logger
}

func NewNotificationService(store docstore.Store, db *gorm.DB, log zerolog.Logger) *NotificationService {
	return &NotificationService{
		store: store,
		db:    db,
		log:   log.With().Str("component", "notification_service").Logger(),
	}
}

// Create stores one notification for one user.
func (s *NotificationService) Create(ctx context.Context, uid, title, body, notifType string, meta models.JSONB) (string, error) {
	n := models.Notification{
		UID:   uid,
		Title: title,
		Body:  body,
		Type:  notifType,
		Read:  false,
		Meta:  meta,
	}
	data, err := docstore.Encode(n)
	if err != nil {
		return "", err
	}
	return s.store.Add(ctx, models.CollectionNotifications, data)
}

// NotifyAdmins creates one notification per active admin user.
func (s *NotificationService) NotifyAdmins(ctx context.Context, title, body, notifType string, meta models.JSONB) error {
	var admins []models.User
	if err := s.db.WithContext(ctx).
		Where("role = ? AND is_active = ?", "admin", true).
		Find(&admins).Error; err != nil {
		return fmt.Errorf("list admin users: %w", err)
	}

	for _, admin := range admins {
		if _, err := s.Create(ctx, admin.ID.String(), title, body, notifType, meta); err != nil {
			return err
		}
	}

	s.log.Debug().Int("recipients", len(admins)).Str("type", notifType).Msg("admins notified")
	return nil
}

// UserNotifications lists one user's notifications, newest first.
func (s *NotificationService) UserNotifications(ctx context.Context, uid string) ([]models.Notification, error) {
	docs, err := s.store.Query(ctx, models.CollectionNotifications, docstore.Query{
		Filters:     []docstore.Filter{docstore.Where("uid", "==", uid)},
		NewestFirst: true,
	})
	if err != nil {
		return nil, err
	}
	return docstore.DecodeAll[models.Notification](docs)
}

// UnreadCount counts unread notifications for one user.
func (s *NotificationService) UnreadCount(ctx context.Context, uid string) (int, error) {
	docs, err := s.store.Query(ctx, models.CollectionNotifications, docstore.Query{
		Filters: []docstore.Filter{
			docstore.Where("uid", "==", uid),
			docstore.Where("read", "==", false),
		},
	})
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// MarkAsRead flags one notification as read.
func (s *NotificationService) MarkAsRead(ctx context.Context, id string) error {
	return s.store.Update(ctx, models.CollectionNotifications, id, models.JSONB{"read": true})
}

// MarkAllAsRead flags all of one user's unread notifications as read.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, uid string) error {
	docs, err := s.store.Query(ctx, models.CollectionNotifications, docstore.Query{
		Filters: []docstore.Filter{
			docstore.Where("uid", "==", uid),
			docstore.Where("read", "==", false),
		},
	})
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := s.store.Update(ctx, models.CollectionNotifications, doc.ID, models.JSONB{"read": true}); err != nil {
			return err
		}
	}
	return nil
}
