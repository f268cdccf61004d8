package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/tuition-api/internal/dto"
	"github.com/noah-isme/tuition-api/internal/models"
	"github.com/noah-isme/tuition-api/internal/scheduling"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
)

type legacyClassRepository interface {
	ListWithLegacySchedule(ctx context.Context) ([]models.Class, error)
	ClearLegacySchedule(ctx context.Context, id string) error
}

type scheduleBooker interface {
	ListByClass(ctx context.Context, classID string) ([]models.ClassScheduleDetail, error)
	Check(ctx context.Context, req dto.ScheduleRequest) (*dto.ScheduleCheckResult, error)
	Create(ctx context.Context, req dto.ScheduleRequest) (*models.ClassSchedule, error)
}

// LegacyMigrationService moves free-form class schedule strings into
// class_schedules through the regular conflict-checked booking path.
type LegacyMigrationService struct {
	classes legacyClassRepository
	booker  scheduleBooker
	logger  *zap.Logger
}

// NewLegacyMigrationService constructs the migration service.
func NewLegacyMigrationService(classes legacyClassRepository, booker scheduleBooker, logger *zap.Logger) *LegacyMigrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LegacyMigrationService{classes: classes, booker: booker, logger: logger}
}

// Migrate books every parseable legacy slot into roomID. A class's legacy
// string is cleared only when all of its slots are booked; slots stored by an
// earlier run count as booked. With dryRun no writes happen and slots are
// checked against stored schedules and the slots planned earlier in the run.
func (s *LegacyMigrationService) Migrate(ctx context.Context, roomID string, dryRun bool) (*dto.LegacyMigrationReport, error) {
	classes, err := s.classes.ListWithLegacySchedule(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load legacy schedules")
	}

	report := &dto.LegacyMigrationReport{DryRun: dryRun, Classes: len(classes), Entries: []dto.LegacyMigrationEntry{}}
	plan := &pendingPlan{roomID: roomID}
	for _, class := range classes {
		raw := ""
		if class.LegacySchedule != nil {
			raw = *class.LegacySchedule
		}
		base := dto.LegacyMigrationEntry{ClassID: class.ID, ClassName: class.Name, Raw: raw}

		slots, err := scheduling.ParseLegacySchedule(raw)
		if err != nil {
			entry := base
			entry.Status = dto.LegacyStatusUnparseable
			entry.Reason = err.Error()
			report.Entries = append(report.Entries, entry)
			report.Unparseable++
			s.logger.Warn("legacy schedule unparseable", zap.String("class_id", class.ID), zap.String("raw", raw), zap.Error(err))
			continue
		}

		stored, err := s.storedSlots(ctx, class.ID)
		if err != nil {
			return nil, err
		}

		booked := 0
		for _, slot := range slots {
			entry := base
			entry.DayOfWeek = slot.Day.String()
			entry.StartTime = slot.Interval.StartClock()
			entry.EndTime = slot.Interval.EndClock()

			if stored[slot] {
				entry.Status = dto.LegacyStatusExisting
				report.Existing++
				report.Entries = append(report.Entries, entry)
				booked++
				continue
			}

			req := dto.ScheduleRequest{
				ClassID:   class.ID,
				RoomID:    roomID,
				DayOfWeek: entry.DayOfWeek,
				StartTime: entry.StartTime,
				EndTime:   entry.EndTime,
			}
			status, reason, err := s.book(ctx, req, dryRun)
			if err != nil {
				return nil, err
			}
			if dryRun && status == dto.LegacyStatusPlanned {
				status, reason = plan.claim(class, slot)
			}
			entry.Status = status
			entry.Reason = reason
			switch status {
			case dto.LegacyStatusConflict:
				report.Conflicts++
			default:
				booked++
				if !dryRun {
					report.Created++
				}
			}
			report.Entries = append(report.Entries, entry)
		}

		if !dryRun && booked == len(slots) {
			if err := s.classes.ClearLegacySchedule(ctx, class.ID); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear legacy schedule")
			}
		}
	}

	s.logger.Info("legacy schedule migration finished",
		zap.Bool("dry_run", dryRun),
		zap.Int("classes", report.Classes),
		zap.Int("created", report.Created),
		zap.Int("existing", report.Existing),
		zap.Int("conflicts", report.Conflicts),
		zap.Int("unparseable", report.Unparseable),
	)
	return report, nil
}

// storedSlots returns the slots the class already has in class_schedules.
func (s *LegacyMigrationService) storedSlots(ctx context.Context, classID string) (map[scheduling.Slot]bool, error) {
	rows, err := s.booker.ListByClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	stored := make(map[scheduling.Slot]bool, len(rows))
	for _, row := range rows {
		slot, err := scheduling.NormalizeSlot(row.DayOfWeek, row.StartTime, row.EndTime)
		if err != nil {
			continue
		}
		stored[slot] = true
	}
	return stored, nil
}

// pendingPlan holds the slots a dry run has planned so far, per room and teacher.
type pendingPlan struct {
	roomID   string
	rooms    []scheduling.Reservation
	teachers []scheduling.Reservation
}

// claim plans the slot unless it clashes with an earlier planned slot.
func (p *pendingPlan) claim(class models.Class, slot scheduling.Slot) (string, string) {
	teacherID := ""
	if class.TeacherID != nil {
		teacherID = *class.TeacherID
	}
	err := scheduling.CheckAxes(scheduling.Proposal{OwnerID: class.ID, OwnerName: class.Name}, slot, []scheduling.AxisSnapshot{
		{Axis: scheduling.AxisRoom, ResourceID: p.roomID, Existing: p.rooms},
		{Axis: scheduling.AxisTeacher, ResourceID: teacherID, Existing: p.teachers},
	})
	var conflictErr *scheduling.ConflictError
	if errors.As(err, &conflictErr) {
		return dto.LegacyStatusConflict, conflictReason(conflictFromReservation(conflictErr.Axis, conflictErr.Existing)) + " (planned)"
	}

	planned := scheduling.Reservation{Day: slot.Day, Interval: slot.Interval, OwnerID: class.ID, OwnerName: class.Name}
	planned.ResourceID = p.roomID
	p.rooms = append(p.rooms, planned)
	if teacherID != "" {
		planned.ResourceID = teacherID
		p.teachers = append(p.teachers, planned)
	}
	return dto.LegacyStatusPlanned, ""
}

// book returns the entry status. Conflicts are reported, anything else aborts.
func (s *LegacyMigrationService) book(ctx context.Context, req dto.ScheduleRequest, dryRun bool) (string, string, error) {
	if dryRun {
		result, err := s.booker.Check(ctx, req)
		if err != nil {
			return "", "", err
		}
		if !result.Available && result.Conflict != nil {
			return dto.LegacyStatusConflict, conflictReason(*result.Conflict), nil
		}
		return dto.LegacyStatusPlanned, "", nil
	}

	if _, err := s.booker.Create(ctx, req); err != nil {
		if domainErr, ok := conflictDetails(err); ok {
			return dto.LegacyStatusConflict, domainErr.Message, nil
		}
		return "", "", err
	}
	return dto.LegacyStatusCreated, "", nil
}

func conflictReason(conflict models.ScheduleConflict) string {
	return conflict.Dimension + " conflict with " + conflict.ClassName + " " + conflict.DayOfWeek + " " + conflict.StartTime + "-" + conflict.EndTime
}
