package repository

import (
	"strconv"
	"strings"
	"time"

	"github.com/gurkanbulca/tasktracker/internal/responsibility"
)

// Helpers turning optional inputs into driver arguments, nil meaning NULL.

func nullableTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullableID(id *int64) any {
	if id == nil || *id <= 0 {
		return nil
	}
	return *id
}

func positiveID(id int64) any {
	if id <= 0 {
		return nil
	}
	return id
}

func nullableText(s *string) any {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return trimmed
}

// subjectOwnerValue stores an owner that parses as an identity in base-10
// form, so "07" and " 7" are kept as "7" and match by equality when listing.
// Free text is stored trimmed.
func subjectOwnerValue(s *string) any {
	if s == nil {
		return nil
	}
	parsed := responsibility.ParseIdentity(*s)
	switch parsed.Outcome {
	case responsibility.Empty:
		return nil
	case responsibility.Valid:
		return strconv.FormatInt(parsed.ID, 10)
	}
	return strings.TrimSpace(*s)
}
