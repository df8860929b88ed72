package migrations

import (
	"context"
	"embed"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed *.sql
var sqlFiles embed.FS

// Migrations is the ordered schema history applied by the migrate command and on start-up.
var Migrations = migrate.NewMigrations()

type step struct {
	name   string
	file   string
	tables []string
}

var steps = []step{
	{name: "20241122010000_create_quizzes", file: "0001_create_quizzes.sql", tables: []string{"quizzes"}},
	{name: "20241122020000_create_rooms", file: "0002_create_rooms.sql", tables: []string{"room_members", "rooms", "users"}},
	{name: "20241122030000_create_attempts", file: "0003_create_attempts.sql", tables: []string{"attempts"}},
}

func init() {
	for _, s := range steps {
		s := s
		up, err := sqlFiles.ReadFile(s.file)
		if err != nil {
			panic(fmt.Sprintf("read migration %s: %v", s.file, err))
		}
		Migrations.Add(migrate.Migration{
			Name: s.name,
			Up: func(ctx context.Context, db *bun.DB) error {
				_, err := db.ExecContext(ctx, string(up))
				return err
			},
			Down: func(ctx context.Context, db *bun.DB) error {
				for _, table := range s.tables {
					if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
						return err
					}
				}
				return nil
			},
		})
	}
}
