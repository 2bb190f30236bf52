package service

import (
	"github.com/shinoburc/driving-report-go/internal/models"
	"github.com/shinoburc/driving-report-go/internal/repository"
)

// TripService handles business logic for finished trips. It is the
// read side consumed by presentation and export collaborators; the
// recording path writes through the session engine instead.
type TripService struct {
	repo *repository.TripRepository
}

// NewTripService creates a new trip service
func NewTripService(repo *repository.TripRepository) *TripService {
	return &TripService{repo: repo}
}

// ListTrips retrieves trips with filtering and pagination.
func (s *TripService) ListTrips(filter models.TripFilter) ([]models.Trip, int64, error) {
	return s.repo.List(filter)
}

// GetTripByID retrieves a single trip with its waypoints.
func (s *TripService) GetTripByID(id string) (*models.Trip, error) {
	return s.repo.GetByID(id)
}
