// Package domain contains the core entities of the task-lifecycle
// engine: tasks, recurrence rules, and reminders. Entities validate
// themselves and carry no persistence or transport concerns.
package domain
