package domain

// Task is a to-do item. ID is assigned by storage on creation.
type Task struct {
	ID          int64
	Title       string
	Description string
}
