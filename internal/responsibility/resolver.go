// Package responsibility determines which users are responsible for, or in
// control of, a task.
package responsibility

import (
	"github.com/gurkanbulca/tasktracker/internal/models"
)

// Resolve returns the distinct identities responsible for t: the primary
// assignee, the secondary and tertiary responsibles and the subject owner.
// Empty or unparseable subject owners are dropped.
func Resolve(t *models.Task) *IdentitySet {
	set := NewIdentitySet(t.AssignedTo)

	if t.SecondaryID.Valid {
		set.Add(t.SecondaryID.Int64)
	}
	if t.TertiaryID.Valid {
		set.Add(t.TertiaryID.Int64)
	}
	if id, ok := SubjectOwner(t); ok {
		set.Add(id)
	}

	return set
}

// Controllers returns Resolve(t) plus the creator of t. These are the
// identities allowed to post updates on the task.
func Controllers(t *models.Task) *IdentitySet {
	set := Resolve(t)
	if t.CreatedBy.Valid {
		set.Add(t.CreatedBy.Int64)
	}
	return set
}

// SubjectOwner parses the free-text subject owner field of t.
func SubjectOwner(t *models.Task) (int64, bool) {
	if !t.SubjectOwner.Valid {
		return 0, false
	}
	parsed := ParseIdentity(t.SubjectOwner.String)
	return parsed.ID, parsed.Outcome == Valid
}
