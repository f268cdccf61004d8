package service

import (
	"errors"

	"github.com/lib/pq"

	"github.com/noah-isme/tuition-api/internal/models"
	"github.com/noah-isme/tuition-api/internal/scheduling"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
)

// pgLockNotAvailable is raised when lock_timeout expires.
const pgLockNotAvailable = "55P03"

// mapSchedulingError converts checker errors into API errors. Unknown errors
// become INTERNAL_ERROR with message.
func mapSchedulingError(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}

	var formatErr *scheduling.FormatError
	if errors.As(err, &formatErr) {
		mapped := appErrors.Wrap(err, appErrors.ErrInvalidFormat.Code, appErrors.ErrInvalidFormat.Status, formatErr.Error())
		return appErrors.WithDetails(mapped, map[string]string{"field": formatErr.Field})
	}
	if errors.Is(err, scheduling.ErrInvalidRange) {
		return appErrors.Wrap(err, appErrors.ErrInvalidRange.Code, appErrors.ErrInvalidRange.Status, appErrors.ErrInvalidRange.Message)
	}

	var conflictErr *scheduling.ConflictError
	if errors.As(err, &conflictErr) {
		domainErr := &models.ScheduleConflictError{
			Type:     string(conflictErr.Axis),
			Message:  conflictErr.Error(),
			Conflict: conflictFromReservation(conflictErr.Axis, conflictErr.Existing),
		}
		if len(conflictErr.All) > 1 {
			for _, existing := range conflictErr.All {
				domainErr.Errors = append(domainErr.Errors, conflictFromReservation(conflictErr.Axis, existing))
			}
		}
		mapped := appErrors.Wrap(domainErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "schedule conflict: "+conflictErr.Error())
		return appErrors.WithDetails(mapped, domainErr)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgLockNotAvailable {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "slot is being booked by another request, retry")
	}

	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func conflictFromReservation(axis scheduling.Axis, existing scheduling.Reservation) models.ScheduleConflict {
	conflict := models.ScheduleConflict{
		ScheduleID: existing.ID,
		ClassID:    existing.OwnerID,
		ClassName:  existing.OwnerName,
		DayOfWeek:  existing.Day.String(),
		StartTime:  existing.Interval.StartClock(),
		EndTime:    existing.Interval.EndClock(),
		Dimension:  string(axis),
	}
	switch axis {
	case scheduling.AxisRoom:
		conflict.RoomID = existing.ResourceID
	case scheduling.AxisTeacher:
		conflict.TeacherID = existing.ResourceID
	}
	return conflict
}

// conflictDetails extracts the conflict carried by a mapped error.
func conflictDetails(err error) (*models.ScheduleConflictError, bool) {
	var domainErr *models.ScheduleConflictError
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}

// scheduleOutcome classifies a booking error for metrics.
func scheduleOutcome(err error) string {
	if err == nil {
		return ScheduleOutcomeAccepted
	}
	if _, ok := conflictDetails(err); ok {
		return ScheduleOutcomeConflict
	}
	appErr := appErrors.FromError(err)
	switch appErr.Code {
	case appErrors.ErrInvalidFormat.Code, appErrors.ErrInvalidRange.Code:
		return ScheduleOutcomeInvalid
	}
	return ""
}
