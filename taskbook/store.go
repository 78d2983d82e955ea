// Package taskbook is a small to-do list application. It exists to
// show one full composition of the framework: routing, templates,
// forms, static assets, and a transaction around every request.
package taskbook

import (
	"database/sql"
	"fmt"

	"github.com/kjosib/kale/storage"
)

// Task is one row of the book.
type Task struct {
	ID        int64
	Title     string
	Notes     string
	Done      bool
	CreatedAt string
}

const schema = `
CREATE TABLE IF NOT EXISTS task (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	done INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// EnsureSchema creates the task table if it does not exist yet.
func EnsureSchema(db *storage.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// The row operations take the open transaction, not the database:
// handlers run inside the per-request transaction guard and must do
// all their work through it.

func listTasks(tx *sql.Tx) ([]Task, error) {
	rows, err := tx.Query(`SELECT id, title, notes, done, created_at FROM task ORDER BY done, id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	var tasks []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Notes, &t.Done, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func getTask(tx *sql.Tx, id int64) (Task, error) {
	var t Task
	err := tx.QueryRow(`SELECT id, title, notes, done, created_at FROM task WHERE id = ?`, id).
		Scan(&t.ID, &t.Title, &t.Notes, &t.Done, &t.CreatedAt)
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

func insertTask(tx *sql.Tx, title, notes string) (int64, error) {
	res, err := tx.Exec(`INSERT INTO task (title, notes) VALUES (?, ?)`, title, notes)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return res.LastInsertId()
}

func toggleTask(tx *sql.Tx, id int64) error {
	res, err := tx.Exec(`UPDATE task SET done = NOT done WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("toggle task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func deleteTask(tx *sql.Tx, id int64) error {
	_, err := tx.Exec(`DELETE FROM task WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return nil
}
