package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
)

func TestEnqueueForAdmins(t *testing.T) {
	db := newTestDB(t)
	admin := createUser(t, db, "n-admin", model.RoleAdmin)
	manager := createUser(t, db, "n-manager", model.RoleManager)
	regular := createUser(t, db, "n-user", model.RoleUser)
	disabled := createUser(t, db, "n-disabled", model.RoleAdmin)
	require.NoError(t, db.Model(&model.User{}).Where("id = ?", disabled.ID).Update("status", 0).Error)

	notifier := NewNotificationService(db, nil, "")
	err := db.Transaction(func(tx *gorm.DB) error {
		return notifier.EnqueueForAdminsTx(tx, nil, model.NotificationOperationSubmitted, "t", "m")
	})
	require.NoError(t, err)

	var userIDs []uint
	require.NoError(t, db.Model(&model.Notification{}).Order("user_id").Pluck("user_id", &userIDs).Error)
	assert.ElementsMatch(t, []uint{admin.ID, manager.ID}, userIDs)

	var forRegular int64
	db.Model(&model.Notification{}).Where("user_id = ?", regular.ID).Count(&forRegular)
	assert.EqualValues(t, 0, forRegular)
}

func TestMarkReadOwnership(t *testing.T) {
	db := newTestDB(t)
	owner := createUser(t, db, "owner", model.RoleUser)
	stranger := createUser(t, db, "stranger", model.RoleUser)
	notifier := NewNotificationService(db, nil, "")
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		return notifier.EnqueueTx(tx, nil, []uint{owner.ID}, model.NotificationOperationApproved, "t", "m")
	})
	require.NoError(t, err)

	var n model.Notification
	require.NoError(t, db.Where("user_id = ?", owner.ID).First(&n).Error)

	// a stranger cannot mark it
	assert.ErrorIs(t, notifier.MarkRead(ctx, stranger.ID, n.ID), model.ErrNotFound)

	require.NoError(t, notifier.MarkRead(ctx, owner.ID, n.ID))
	require.NoError(t, db.First(&n, n.ID).Error)
	assert.True(t, n.IsRead)
	assert.NotNil(t, n.ReadAt)

	// marking twice is not an error
	require.NoError(t, notifier.MarkRead(ctx, owner.ID, n.ID))

	assert.ErrorIs(t, notifier.MarkRead(ctx, owner.ID, 9999), model.ErrNotFound)
}

func TestUnreadCountAndMarkAll(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "counted", model.RoleUser)
	notifier := NewNotificationService(db, nil, "")
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		return notifier.EnqueueTx(tx, nil, []uint{user.ID, user.ID, user.ID},
			model.NotificationOperationSubmitted, "t", "m")
	})
	require.NoError(t, err)

	count, err := notifier.UnreadCount(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	affected, err := notifier.MarkAllRead(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, affected)

	count, err = notifier.UnreadCount(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	// nothing left to mark
	affected, err = notifier.MarkAllRead(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, affected)
}

func TestListNotifications(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "lister", model.RoleUser)
	notifier := NewNotificationService(db, nil, "")
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		return notifier.EnqueueTx(tx, nil, []uint{user.ID, user.ID}, model.NotificationOperationSubmitted, "t", "m")
	})
	require.NoError(t, err)

	all, total, err := notifier.List(ctx, user.ID, false, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, all, 2)

	require.NoError(t, notifier.MarkRead(ctx, user.ID, all[0].ID))

	unread, total, err := notifier.List(ctx, user.ID, true, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, unread, 1)
	assert.False(t, unread[0].IsRead)
}
