package service

import (
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gurkanbulca/tasktracker/internal/apperror"
	"github.com/gurkanbulca/tasktracker/internal/models"
)

const dateLayout = "2006-01-02"

// reader decodes request fields. The first problem is kept in err and later
// reads become no-ops.
type reader struct {
	fields map[string]*structpb.Value
	err    error
}

func newReader(req *structpb.Struct) *reader {
	return &reader{fields: req.GetFields()}
}

func (r *reader) fail(field, reason string) {
	if r.err == nil {
		r.err = apperror.Invalid(field, reason)
	}
}

// value returns the field unless it is absent or null.
func (r *reader) value(field string) (*structpb.Value, bool) {
	v, ok := r.fields[field]
	if !ok || v == nil {
		return nil, false
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, false
	}
	return v, true
}

func (r *reader) isNull(field string) bool {
	_, present := r.fields[field]
	_, set := r.value(field)
	return present && !set
}

func (r *reader) text(field string) *string {
	v, ok := r.value(field)
	if !ok {
		return nil
	}
	s, isString := v.GetKind().(*structpb.Value_StringValue)
	if !isString {
		r.fail(field, "must be a string")
		return nil
	}
	return &s.StringValue
}

func (r *reader) integer(field string) *int64 {
	v, ok := r.value(field)
	if !ok {
		return nil
	}
	n, isNumber := v.GetKind().(*structpb.Value_NumberValue)
	if !isNumber || n.NumberValue != math.Trunc(n.NumberValue) || math.Abs(n.NumberValue) > 1<<53 {
		r.fail(field, "must be an integer")
		return nil
	}
	i := int64(n.NumberValue)
	return &i
}

// id reads a required positive identifier.
func (r *reader) id(field string) int64 {
	i := r.integer(field)
	if i == nil || *i <= 0 {
		r.fail(field, "must be a positive id")
		return 0
	}
	return *i
}

func (r *reader) flag(field string) *bool {
	v, ok := r.value(field)
	if !ok {
		return nil
	}
	b, isBool := v.GetKind().(*structpb.Value_BoolValue)
	if !isBool {
		r.fail(field, "must be a boolean")
		return nil
	}
	return &b.BoolValue
}

// time accepts RFC 3339 timestamps and plain dates.
func (r *reader) time(field string) *time.Time {
	s := r.text(field)
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	raw := strings.TrimSpace(*s)
	for _, layout := range []string{time.RFC3339Nano, dateLayout} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	r.fail(field, fmt.Sprintf("%q is not a date", raw))
	return nil
}

func (r *reader) status(field string) *models.TaskStatus {
	s := r.text(field)
	if s == nil {
		return nil
	}
	status := models.TaskStatus(strings.TrimSpace(*s))
	if !status.IsValid() {
		r.fail(field, fmt.Sprintf("unknown status %q", *s))
		return nil
	}
	return &status
}

func (r *reader) files(field string) []models.FileRef {
	v, ok := r.value(field)
	if !ok {
		return nil
	}
	list := v.GetListValue()
	if list == nil {
		r.fail(field, "must be a list")
		return nil
	}

	refs := make([]models.FileRef, 0, len(list.GetValues()))
	for i, item := range list.GetValues() {
		entry := item.GetStructValue()
		if entry == nil {
			r.fail(fmt.Sprintf("%s[%d]", field, i), "must be an object")
			return nil
		}
		f := entry.GetFields()
		ref := models.FileRef{
			Filename:     strings.TrimSpace(f["filename"].GetStringValue()),
			OriginalName: strings.TrimSpace(f["original_name"].GetStringValue()),
			MimeType:     strings.TrimSpace(f["mime_type"].GetStringValue()),
		}
		if ref.OriginalName == "" {
			ref.OriginalName = ref.Filename
		}
		refs = append(refs, ref)
	}
	return refs
}

func encodeTask(t *models.Task) map[string]interface{} {
	return map[string]interface{}{
		"id":            t.ID,
		"title":         t.Title,
		"description":   t.Description,
		"status":        string(t.Status),
		"status_label":  t.Status.Label(),
		"deadline":      nullTime(t.Deadline),
		"created_at":    formatTime(t.CreatedAt),
		"completed_at":  nullTime(t.CompletedAt),
		"urgent":        t.Urgent,
		"assigned_to":   t.AssignedTo,
		"secondary_id":  nullInt(t.SecondaryID),
		"tertiary_id":   nullInt(t.TertiaryID),
		"subject_owner": nullString(t.SubjectOwner),
		"created_by":    nullInt(t.CreatedBy),
		"form_date":     nullTime(t.FormDate),
		"region":        nullString(t.Region),
		"city":          nullString(t.City),
		"municipality":  nullString(t.Municipality),
		"department":    nullString(t.Department),
		"archive":       t.Archive,
		"given_date":    nullTime(t.GivenDate),
		"task_subject":  nullString(t.Subject),
	}
}

func encodeTasks(tasks []*models.Task) []interface{} {
	out := make([]interface{}, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, encodeTask(t))
	}
	return out
}

func encodeUpdates(updates []*models.TaskUpdate) []interface{} {
	out := make([]interface{}, 0, len(updates))
	for _, u := range updates {
		out = append(out, map[string]interface{}{
			"id":         u.ID,
			"user_id":    u.UserID,
			"actor_name": nullString(u.ActorName),
			"status":     nullString(u.Status),
			"note":       nullString(u.Note),
			"created_at": formatTime(u.CreatedAt),
		})
	}
	return out
}

func encodeFiles(files []*models.TaskFile) []interface{} {
	out := make([]interface{}, 0, len(files))
	for _, f := range files {
		out = append(out, map[string]interface{}{
			"id":            f.ID,
			"update_id":     nullInt(f.UpdateID),
			"uploader_id":   f.UploaderID,
			"filename":      f.Filename,
			"original_name": f.OriginalName,
			"mime_type":     nullString(f.MimeType),
			"uploaded_at":   formatTime(f.UploadedAt),
		})
	}
	return out
}

func encodeNotifications(list []*models.Notification) []interface{} {
	out := make([]interface{}, 0, len(list))
	for _, n := range list {
		out = append(out, map[string]interface{}{
			"id":              n.ID,
			"message":         n.Message,
			"type":            string(n.Type),
			"related_task_id": nullInt(n.RelatedTaskID),
			"is_read":         n.IsRead,
			"created_at":      formatTime(n.CreatedAt),
		})
	}
	return out
}

// encodeUser never includes the password hash.
func encodeUser(u *models.User) map[string]interface{} {
	return map[string]interface{}{
		"id":         u.ID,
		"username":   u.Username,
		"role":       string(u.Role),
		"email":      nullString(u.Email),
		"avatar":     nullString(u.Avatar),
		"created_at": formatTime(u.CreatedAt),
	}
}

func encodeUsers(users []*models.User) []interface{} {
	out := make([]interface{}, 0, len(users))
	for _, u := range users {
		out = append(out, encodeUser(u))
	}
	return out
}

func encodeStats(stats *models.TaskStats) map[string]interface{} {
	byStatus := make(map[string]interface{}, len(stats.ByStatus))
	for s, n := range stats.ByStatus {
		byStatus[string(s)] = n
	}

	var top interface{}
	if a := stats.TopAssignee; a != nil {
		top = map[string]interface{}{
			"user_id":  a.UserID,
			"username": a.Username,
			"tasks":    a.Tasks,
		}
	}

	return map[string]interface{}{
		"total":        stats.Total,
		"by_status":    byStatus,
		"urgent":       stats.Urgent,
		"top_assignee": top,
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullTime(t sql.NullTime) interface{} {
	if !t.Valid {
		return nil
	}
	return formatTime(t.Time)
}

func nullInt(n sql.NullInt64) interface{} {
	if !n.Valid {
		return nil
	}
	return n.Int64
}

func nullString(s sql.NullString) interface{} {
	if !s.Valid {
		return nil
	}
	return s.String
}
