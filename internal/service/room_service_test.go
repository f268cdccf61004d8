package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-api/internal/dto"
	"github.com/noah-isme/tuition-api/internal/models"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
)

func TestRoomServiceCreate(t *testing.T) {
	repo := &mockRoomRepo{items: map[string]*models.Room{"r1": {ID: "r1", Name: "Room 101"}}}
	svc := NewRoomService(repo, nil, nil)

	room, err := svc.Create(context.Background(), dto.CreateRoomRequest{Name: "  Science Lab ", Capacity: 24})
	require.NoError(t, err)
	assert.Equal(t, "Science Lab", room.Name)
	assert.Equal(t, "room-generated", room.ID)

	_, err = svc.Create(context.Background(), dto.CreateRoomRequest{Name: "Room 101", Capacity: 30})
	requireAppError(t, err, appErrors.ErrConflict.Code, http.StatusConflict)

	_, err = svc.Create(context.Background(), dto.CreateRoomRequest{Name: "Hall"})
	requireAppError(t, err, appErrors.ErrValidation.Code, http.StatusBadRequest)
}

func TestRoomServiceGetAndList(t *testing.T) {
	repo := &mockRoomRepo{items: map[string]*models.Room{"r1": {ID: "r1", Name: "Room 101"}}}
	svc := NewRoomService(repo, nil, nil)

	room, err := svc.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "Room 101", room.Name)

	_, err = svc.Get(context.Background(), "missing")
	requireAppError(t, err, appErrors.ErrNotFound.Code, http.StatusNotFound)

	rooms, pagination, err := svc.List(context.Background(), models.RoomFilter{PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.Page)
}
