package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/shiyuan-lin/carpool-api/models"
)

func setupServiceTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Vehicle{},
		&models.Order{},
		&models.OrderParticipant{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
	); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := models.User{Username: username}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func seedVehicle(t *testing.T, db *gorm.DB, ownerID uint, plate string, seats int) *models.Vehicle {
	t.Helper()
	vehicle := models.Vehicle{OwnerID: ownerID, PlateNumber: plate, TypeLabel: "sedan", SeatCapacity: seats}
	require.NoError(t, db.Create(&vehicle).Error)
	return &vehicle
}

func seedOrder(t *testing.T, db *gorm.DB, order models.Order) *models.Order {
	t.Helper()
	if order.StartLoc == "" {
		order.StartLoc = "North Gate"
	}
	if order.DestLoc == "" {
		order.DestLoc = "Airport"
	}
	if order.StartTime.IsZero() {
		order.StartTime = time.Now().Add(time.Hour)
	}
	require.NoError(t, db.Create(&order).Error)
	return &order
}

func TestCreateOrderInputValidation(t *testing.T) {
	vehicleID := uint(1)
	base := CreateOrderInput{
		InitiatorID:      1,
		OrderType:        models.OrderTypePersonFindCar,
		StartLoc:         "North Gate",
		DestLoc:          "Airport",
		StartTime:        time.Now().Add(time.Hour),
		Price:            25,
		TravelPartnerNum: 2,
	}

	tests := []struct {
		name    string
		mutate  func(in *CreateOrderInput)
		wantErr string
	}{
		{"valid person_find_car", func(in *CreateOrderInput) {}, ""},
		{"valid car_find_person", func(in *CreateOrderInput) {
			in.OrderType = models.OrderTypeCarFindPerson
			in.TravelPartnerNum = 0
			in.SpareSeatNum = 3
			in.VehicleID = &vehicleID
		}, ""},
		{"missing start location", func(in *CreateOrderInput) { in.StartLoc = "" }, "locations are required"},
		{"missing destination", func(in *CreateOrderInput) { in.DestLoc = "" }, "locations are required"},
		{"missing start time", func(in *CreateOrderInput) { in.StartTime = time.Time{} }, "start time is required"},
		{"negative price", func(in *CreateOrderInput) { in.Price = -1 }, "price cannot be negative"},
		{"person_find_car without partners", func(in *CreateOrderInput) { in.TravelPartnerNum = 0 }, "travel partner count is required"},
		{"car_find_person without vehicle", func(in *CreateOrderInput) {
			in.OrderType = models.OrderTypeCarFindPerson
			in.SpareSeatNum = 3
		}, "vehicle is required"},
		{"car_find_person without seats", func(in *CreateOrderInput) {
			in.OrderType = models.OrderTypeCarFindPerson
			in.VehicleID = &vehicleID
			in.SpareSeatNum = 0
		}, "spare seat count is required"},
		{"unknown order type", func(in *CreateOrderInput) { in.OrderType = "taxi" }, "invalid order type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := base
			tt.mutate(&input)
			err := input.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, IsKind(err, KindValidation))
		})
	}
}

func TestGetOrder(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewOrderService(db)

	initiator := seedUser(t, db, "alice")
	order := seedOrder(t, db, models.Order{
		InitiatorID:      initiator.ID,
		Status:           models.OrderStatusNotStarted,
		OrderType:        models.OrderTypePersonFindCar,
		TravelPartnerNum: 2,
		Price:            25,
	})
	require.NoError(t, db.Create(&models.OrderParticipant{
		OrderID:  order.ID,
		UserID:   initiator.ID,
		Identity: models.IdentityPassenger,
	}).Error)

	loaded, roster, err := svc.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, loaded.ID)
	assert.Equal(t, "alice", loaded.Initiator.Username)
	require.Len(t, roster, 1)
	assert.Equal(t, models.IdentityPassenger, roster[0].Identity)

	_, _, err = svc.GetOrder(9999)
	assert.True(t, IsKind(err, KindNotFound))
}

func TestPostTripLifecycle(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewOrderService(db)

	initiator := seedUser(t, db, "alice")
	stranger := seedUser(t, db, "mallory")
	order := seedOrder(t, db, models.Order{
		InitiatorID: initiator.ID,
		Status:      models.OrderStatusInProgress,
		OrderType:   models.OrderTypeCarFindPerson,
		Price:       25,
	})

	// Only the initiator may drive the lifecycle.
	_, err := svc.CompleteTrip(order.ID, stranger.ID)
	assert.True(t, IsKind(err, KindForbidden))

	updated, err := svc.CompleteTrip(order.ID, initiator.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusToPay, updated.Status)

	// Completing twice is an invalid state, not a silent overwrite.
	_, err = svc.CompleteTrip(order.ID, initiator.ID)
	assert.True(t, IsKind(err, KindInvalidState))

	updated, err = svc.MarkPaid(order.ID, initiator.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusToReview, updated.Status)

	_, err = svc.Rate(order.ID, initiator.ID, 7)
	assert.True(t, IsKind(err, KindValidation))

	updated, err = svc.Rate(order.ID, initiator.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, updated.Status)
	require.NotNil(t, updated.Rate)
	assert.Equal(t, 5, *updated.Rate)

	// Completed is terminal.
	_, err = svc.Rate(order.ID, initiator.ID, 4)
	assert.True(t, IsKind(err, KindInvalidState))
}

func TestRejectOrder(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewOrderService(db)

	initiator := seedUser(t, db, "alice")
	order := seedOrder(t, db, models.Order{
		InitiatorID:      initiator.ID,
		Status:           models.OrderStatusNotStarted,
		OrderType:        models.OrderTypePersonFindCar,
		TravelPartnerNum: 1,
	})

	updated, err := svc.RejectOrder(order.ID, initiator.ID, "plans changed")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRejected, updated.Status)
	require.NotNil(t, updated.RejectReason)
	assert.Equal(t, "plans changed", *updated.RejectReason)

	// Rejected is terminal; a second rejection fails.
	_, err = svc.RejectOrder(order.ID, initiator.ID, "again")
	assert.True(t, IsKind(err, KindInvalidState))
}

func TestRejectOrderInProgress(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewOrderService(db)

	initiator := seedUser(t, db, "alice")
	order := seedOrder(t, db, models.Order{
		InitiatorID: initiator.ID,
		Status:      models.OrderStatusInProgress,
		OrderType:   models.OrderTypeCarFindPerson,
	})

	_, err := svc.RejectOrder(order.ID, initiator.ID, "")
	assert.True(t, IsKind(err, KindInvalidState))
}

func TestDeleteOrder(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewOrderService(db)

	initiator := seedUser(t, db, "alice")
	stranger := seedUser(t, db, "mallory")
	order := seedOrder(t, db, models.Order{
		InitiatorID:      initiator.ID,
		Status:           models.OrderStatusNotStarted,
		OrderType:        models.OrderTypePersonFindCar,
		TravelPartnerNum: 1,
	})
	require.NoError(t, db.Create(&models.OrderParticipant{
		OrderID: order.ID, UserID: initiator.ID, Identity: models.IdentityPassenger,
	}).Error)
	conv := models.Conversation{Type: models.ConversationGroup, OrderID: &order.ID}
	require.NoError(t, db.Create(&conv).Error)
	require.NoError(t, db.Create(&models.ConversationParticipant{
		ConversationID: conv.ID, UserID: initiator.ID,
	}).Error)
	require.NoError(t, db.Create(&models.Message{
		ConversationID: conv.ID, SenderID: initiator.ID, Content: "hello", MessageType: models.MessageText,
	}).Error)

	err := svc.DeleteOrder(order.ID, stranger.ID)
	assert.True(t, IsKind(err, KindForbidden))

	require.NoError(t, svc.DeleteOrder(order.ID, initiator.ID))

	// Order, roster and the bound conversation are all gone.
	var count int64
	db.Model(&models.Order{}).Where("id = ?", order.ID).Count(&count)
	assert.Zero(t, count)
	db.Model(&models.OrderParticipant{}).Where("order_id = ?", order.ID).Count(&count)
	assert.Zero(t, count)
	db.Model(&models.Conversation{}).Where("id = ?", conv.ID).Count(&count)
	assert.Zero(t, count)
	db.Model(&models.Message{}).Where("conversation_id = ?", conv.ID).Count(&count)
	assert.Zero(t, count)
}

func TestDeleteOrderRequiresNotStarted(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewOrderService(db)

	initiator := seedUser(t, db, "alice")
	order := seedOrder(t, db, models.Order{
		InitiatorID: initiator.ID,
		Status:      models.OrderStatusInProgress,
		OrderType:   models.OrderTypeCarFindPerson,
	})

	err := svc.DeleteOrder(order.ID, initiator.ID)
	assert.True(t, IsKind(err, KindInvalidState))
}

func TestTransitionOrderStatusIsGuarded(t *testing.T) {
	db := setupServiceTestDB(t)

	initiator := seedUser(t, db, "alice")
	order := seedOrder(t, db, models.Order{
		InitiatorID: initiator.ID,
		Status:      models.OrderStatusNotStarted,
		OrderType:   models.OrderTypeCarFindPerson,
		SpareSeatNum: 2,
	})

	require.NoError(t, transitionOrderStatus(db, order.ID, models.OrderStatusNotStarted, models.OrderStatusInProgress))

	// The losing side of the race sees InvalidState.
	err := transitionOrderStatus(db, order.ID, models.OrderStatusNotStarted, models.OrderStatusInProgress)
	assert.True(t, IsKind(err, KindInvalidState))

	// Illegal transitions never reach the database.
	err = transitionOrderStatus(db, order.ID, models.OrderStatusInProgress, models.OrderStatusCompleted)
	assert.True(t, IsKind(err, KindInvalidState))
}

func TestClaimSpareSeatNeverGoesNegative(t *testing.T) {
	db := setupServiceTestDB(t)

	initiator := seedUser(t, db, "alice")
	order := seedOrder(t, db, models.Order{
		InitiatorID:  initiator.ID,
		Status:       models.OrderStatusNotStarted,
		OrderType:    models.OrderTypeCarFindPerson,
		SpareSeatNum: 2,
	})

	remaining, err := claimSpareSeat(db, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	remaining, err = claimSpareSeat(db, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	// Claiming with zero seats left fails instead of going negative.
	_, err = claimSpareSeat(db, order.ID)
	assert.True(t, IsKind(err, KindConflict))

	var reloaded models.Order
	require.NoError(t, db.First(&reloaded, order.ID).Error)
	assert.Equal(t, 0, reloaded.SpareSeatNum)
}

func TestAddOrderParticipantInvariants(t *testing.T) {
	db := setupServiceTestDB(t)

	driver := seedUser(t, db, "dave")
	other := seedUser(t, db, "erin")
	order := seedOrder(t, db, models.Order{
		InitiatorID: driver.ID,
		Status:      models.OrderStatusNotStarted,
		OrderType:   models.OrderTypeCarFindPerson,
	})

	require.NoError(t, addOrderParticipant(db, order.ID, driver.ID, models.IdentityDriver, nil))

	// Duplicate participation is rejected.
	err := addOrderParticipant(db, order.ID, driver.ID, models.IdentityPassenger, nil)
	assert.True(t, IsKind(err, KindConflict))

	// At most one driver per order.
	err = addOrderParticipant(db, order.ID, other.ID, models.IdentityDriver, nil)
	assert.True(t, IsKind(err, KindConflict))

	require.NoError(t, addOrderParticipant(db, order.ID, other.ID, models.IdentityPassenger, &driver.ID))
}
