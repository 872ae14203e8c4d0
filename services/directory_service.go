package services

import (
	"errors"

	"gorm.io/gorm"

	"github.com/shiyuan-lin/carpool-api/models"
)

// UserProfile is the projection returned by the identity collaborator
type UserProfile struct {
	ID          uint   `json:"id"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
}

// VehicleInfo is the projection returned by the fleet collaborator
type VehicleInfo struct {
	ID           uint   `json:"id"`
	SeatCapacity int    `json:"seat_capacity"`
	TypeLabel    string `json:"type_label"`
}

// UserDirectory resolves user ids to display profiles
type UserDirectory interface {
	LookupUser(userID uint) (*UserProfile, error)
}

// VehicleDirectory resolves vehicle ids to seat capacity and type
type VehicleDirectory interface {
	LookupVehicle(vehicleID uint) (*VehicleInfo, error)
}

// DirectoryService backs both collaborator lookups with the local
// read-side projections
type DirectoryService struct {
	db *gorm.DB
}

// NewDirectoryService creates a directory service backed by the given
// database
func NewDirectoryService(db *gorm.DB) *DirectoryService {
	return &DirectoryService{db: db}
}

// LookupUser returns the user's display profile
func (s *DirectoryService) LookupUser(userID uint) (*UserProfile, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound("user not found")
		}
		return nil, errInternal("failed to load user", err)
	}
	return &UserProfile{ID: user.ID, DisplayName: user.Username, Avatar: user.Avatar}, nil
}

// LookupVehicle returns the vehicle's seat capacity and type label
func (s *DirectoryService) LookupVehicle(vehicleID uint) (*VehicleInfo, error) {
	var vehicle models.Vehicle
	if err := s.db.First(&vehicle, vehicleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound("vehicle not found")
		}
		return nil, errInternal("failed to load vehicle", err)
	}
	return &VehicleInfo{ID: vehicle.ID, SeatCapacity: vehicle.SeatCapacity, TypeLabel: vehicle.TypeLabel}, nil
}
