package models

// TaskStats is the dashboard summary over every task, regardless of who
// may see them.
type TaskStats struct {
	Total       int
	ByStatus    map[TaskStatus]int
	Urgent      int
	TopAssignee *AssigneeCount
}

// AssigneeCount is the number of tasks assigned to one user.
type AssigneeCount struct {
	UserID   int64
	Username string
	Tasks    int
}
