package models

import (
	"fmt"
	"time"
)

// ValidationError represents a validation error with field and message
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Validate validates an Event
func (e Event) Validate() error {
	if e.Package == "" {
		return ValidationError{Field: "Package", Message: "package cannot be empty"}
	}
	if e.Timestamp <= 0 {
		return ValidationError{Field: "Timestamp", Message: "timestamp must be positive"}
	}
	return nil
}

// Validate validates a UsageSession
func (s *UsageSession) Validate() error {
	if s.Package == "" {
		return ValidationError{Field: "Package", Message: "package cannot be empty"}
	}
	if s.EndTime < s.StartTime {
		return ValidationError{Field: "EndTime", Message: "end time cannot be before start time"}
	}
	if s.DurationSeconds != DurationSeconds(s.StartTime, s.EndTime) {
		return ValidationError{Field: "DurationSeconds", Message: "duration does not match interval"}
	}
	if s.Date == "" {
		return ValidationError{Field: "Date", Message: "date cannot be empty"}
	}
	return nil
}

// Validate validates a HourBucket
func (b HourBucket) Validate() error {
	if b.Hour < 0 || b.Hour >= HoursPerDay {
		return ValidationError{Field: "Hour", Message: fmt.Sprintf("hour %d out of range", b.Hour)}
	}
	if b.DurationSeconds < 0 || b.DurationSeconds > MaxBucketSeconds {
		return ValidationError{Field: "DurationSeconds", Message: fmt.Sprintf("duration %d outside [0, %d]", b.DurationSeconds, MaxBucketSeconds)}
	}
	return nil
}

// Validate validates a Goal
func (g Goal) Validate() error {
	if g.ThresholdMinutes < 0 {
		return ValidationError{Field: "ThresholdMinutes", Message: "threshold cannot be negative"}
	}
	if g.Condition != GoalAtMost && g.Condition != GoalAtLeast {
		return ValidationError{Field: "Condition", Message: fmt.Sprintf("unknown condition %q", g.Condition)}
	}
	return nil
}

// Validate validates a RewardPunishmentDaily row
func (r RewardPunishmentDaily) Validate() error {
	if _, err := ParseDate(r.Date, time.UTC); err != nil {
		return ValidationError{Field: "Date", Message: fmt.Sprintf("invalid date %q", r.Date)}
	}
	if r.RewardCompletionPercent < 0 || r.RewardCompletionPercent > 100 {
		return ValidationError{Field: "RewardCompletionPercent", Message: "percent outside [0, 100]"}
	}
	if r.PunishCompletionPercent < 0 || r.PunishCompletionPercent > 100 {
		return ValidationError{Field: "PunishCompletionPercent", Message: "percent outside [0, 100]"}
	}
	return nil
}
