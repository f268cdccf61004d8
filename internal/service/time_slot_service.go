package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-api/internal/dto"
	"github.com/noah-isme/tuition-api/internal/models"
	"github.com/noah-isme/tuition-api/internal/scheduling"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
)

type timeSlotRepository interface {
	List(ctx context.Context, exec sqlx.ExtContext) ([]models.TimeSlot, error)
	FindByID(ctx context.Context, id string) (*models.TimeSlot, error)
	Lock(ctx context.Context, tx sqlx.ExtContext, timeout time.Duration) error
	Create(ctx context.Context, exec sqlx.ExtContext, slot *models.TimeSlot) error
	Update(ctx context.Context, exec sqlx.ExtContext, slot *models.TimeSlot) error
	Delete(ctx context.Context, id string) error
}

// TimeSlotService manages the periods of the teaching day. Periods never
// overlap each other.
type TimeSlotService struct {
	repo      timeSlotRepository
	tx        txProvider
	cache     *CacheService
	cfg       ScheduleServiceConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTimeSlotService constructs the service.
func NewTimeSlotService(repo timeSlotRepository, tx txProvider, cache *CacheService, cfg ScheduleServiceConfig, validate *validator.Validate, logger *zap.Logger) *TimeSlotService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimeSlotService{repo: repo, tx: tx, cache: cache, cfg: cfg, validator: validate, logger: logger}
}

// List returns every time slot ordered by start. The bool reports a cache hit.
func (s *TimeSlotService) List(ctx context.Context) ([]models.TimeSlot, bool, error) {
	var cached []models.TimeSlot
	if s.cache.Get(ctx, cacheKeyTimeSlots, &cached) {
		return cached, true, nil
	}
	slots, err := s.repo.List(ctx, nil)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list time slots")
	}
	if slots == nil {
		slots = []models.TimeSlot{}
	}
	s.cache.Set(ctx, cacheKeyTimeSlots, slots, s.cfg.CacheTTL)
	return slots, false, nil
}

// Get returns a time slot.
func (s *TimeSlotService) Get(ctx context.Context, id string) (*models.TimeSlot, error) {
	slot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "time slot")
	}
	return slot, nil
}

// Create stores a new time slot unless it overlaps an existing one.
func (s *TimeSlotService) Create(ctx context.Context, req dto.TimeSlotRequest) (*models.TimeSlot, error) {
	slot, interval, err := s.normalize(req)
	if err != nil {
		return nil, err
	}

	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.ensureNoOverlap(ctx, tx, interval, ""); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, tx, slot); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create time slot")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.Info("time slot created", zap.String("time_slot_id", slot.ID), zap.String("range", interval.String()))
	return slot, nil
}

// Update replaces a time slot's label and range. The slot is not compared
// with itself. Schedules already booked from the slot keep their times.
func (s *TimeSlotService) Update(ctx context.Context, id string, req dto.TimeSlotRequest) (*models.TimeSlot, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "time slot")
	}
	slot, interval, err := s.normalize(req)
	if err != nil {
		return nil, err
	}
	slot.ID = existing.ID
	slot.CreatedAt = existing.CreatedAt

	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.ensureNoOverlap(ctx, tx, interval, id); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, tx, slot); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update time slot")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	return slot, nil
}

// Delete removes a time slot.
func (s *TimeSlotService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete time slot")
	}
	s.invalidate(ctx)
	return nil
}

func (s *TimeSlotService) normalize(req dto.TimeSlotRequest) (*models.TimeSlot, scheduling.TimeInterval, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, scheduling.TimeInterval{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time slot payload")
	}
	interval, err := scheduling.ParseInterval(req.StartTime, req.EndTime)
	if err != nil {
		return nil, scheduling.TimeInterval{}, mapSchedulingError(err, "")
	}
	return &models.TimeSlot{
		Label:     req.Label,
		StartTime: interval.StartClock(),
		EndTime:   interval.EndClock(),
	}, interval, nil
}

// ensureNoOverlap locks the time-slot table and rejects interval when it
// overlaps any stored slot other than ignoreID.
func (s *TimeSlotService) ensureNoOverlap(ctx context.Context, tx *sqlx.Tx, interval scheduling.TimeInterval, ignoreID string) error {
	if err := s.repo.Lock(ctx, tx, s.cfg.LockTimeout); err != nil {
		return mapSchedulingError(err, "failed to lock time slots")
	}
	stored, err := s.repo.List(ctx, tx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slots")
	}

	others := make([]models.TimeSlot, 0, len(stored))
	intervals := make([]scheduling.TimeInterval, 0, len(stored))
	for _, item := range stored {
		if item.ID == ignoreID {
			continue
		}
		iv, err := scheduling.ParseInterval(item.StartTime, item.EndTime)
		if err != nil {
			return appErrors.Wrap(fmt.Errorf("stored time slot %s: %v", item.ID, err), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slots")
		}
		others = append(others, item)
		intervals = append(intervals, iv)
	}

	if idx := scheduling.FirstOverlap(interval, intervals); idx >= 0 {
		hit := others[idx]
		return appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("time slot overlaps %q (%s-%s)", hit.Label, hit.StartTime, hit.EndTime)),
			map[string]string{"time_slot_id": hit.ID, "label": hit.Label},
		)
	}
	return nil
}

func (s *TimeSlotService) invalidate(ctx context.Context) {
	s.cache.Delete(ctx, cacheKeyTimeSlots)
}
