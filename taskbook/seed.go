package taskbook

import (
	"database/sql"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/kjosib/kale/storage"
)

// SeedFile is the shape of a TOML file of initial tasks:
//
//	[[task]]
//	title = "Water the plants"
//	notes = "The fern looks thirsty"
//	done = false
type SeedFile struct {
	Tasks []SeedTask `toml:"task"`
}

// SeedTask is one entry of a seed file.
type SeedTask struct {
	Title string `toml:"title"`
	Notes string `toml:"notes"`
	Done  bool   `toml:"done"`
}

// LoadSeed reads and checks a seed file.
func LoadSeed(path string) (*SeedFile, error) {
	var seed SeedFile
	if _, err := toml.DecodeFile(path, &seed); err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	for i, t := range seed.Tasks {
		if t.Title == "" {
			return nil, fmt.Errorf("seed file: task %d has no title", i+1)
		}
	}
	return &seed, nil
}

// Apply inserts the seed tasks in one transaction.
func (s *SeedFile) Apply(db *storage.DB) error {
	return db.WithTx(func(tx *sql.Tx) error {
		for _, t := range s.Tasks {
			done := 0
			if t.Done {
				done = 1
			}
			if _, err := tx.Exec(`INSERT INTO task (title, notes, done) VALUES (?, ?, ?)`,
				t.Title, t.Notes, done); err != nil {
				return fmt.Errorf("insert %q: %w", t.Title, err)
			}
		}
		return nil
	})
}
