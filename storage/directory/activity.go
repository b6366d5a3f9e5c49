package directory

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Joeboy77/dms-backend-sub000/core/defense"
)

// ActivityLog appends audit entries to the activity_logs table.
type ActivityLog struct {
	db *gorm.DB
}

var _ defense.ActivityLog = (*ActivityLog)(nil) // interface compliance check

func NewActivityLog(db *gorm.DB) *ActivityLog {
	return &ActivityLog{db: db}
}

func (al *ActivityLog) Record(ctx context.Context, activity defense.Activity) error {
	rec, err := newActivityRecord(activity)
	if err != nil {
		return err
	}
	return errors.Wrap(al.db.WithContext(ctx).Create(&rec).Error, "inserting activity log")
}

func newActivityRecord(activity defense.Activity) (activityRecord, error) {
	details := activity.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	b, err := json.Marshal(details)
	if err != nil {
		return activityRecord{}, errors.Wrap(err, "encoding activity details")
	}

	return activityRecord{
		ID:          uuid.NewString(),
		Action:      activity.Action,
		Type:        activity.Type,
		Description: activity.Description,
		ActorID:     activity.ActorID,
		ActorName:   activity.ActorName,
		Details:     datatypes.JSON(b),
		CreatedAt:   activity.Timestamp.UTC(),
	}, nil
}
