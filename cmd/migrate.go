/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"database/sql"
	"fmt"
	"log"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"

	"github.com/jerry-enebeli/remit"
	"github.com/jerry-enebeli/remit/config"
	"github.com/jerry-enebeli/remit/database"
)

// migrationSchema holds both the transactions table and the migration bookkeeping table.
const migrationSchema = "remit"

func migrationSource() migrate.MigrationSource {
	return migrate.EmbedFileSystemMigrationSource{
		FileSystem: remit.SQLFiles,
		Root:       "sql",
	}
}

func migrateCommands(_ *remitInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply, roll back or inspect the transactions schema",
	}

	cmd.AddCommand(migrateUpCommand())
	cmd.AddCommand(migrateDownCommand())
	cmd.AddCommand(migrateStatusCommand())
	return cmd
}

func migrateUpCommand() *cobra.Command {
	return &cobra.Command{
		Use: "up",
		Run: func(cmd *cobra.Command, args []string) {
			n, err := runMigrations(migrate.Up, 0)
			if err != nil {
				log.Printf("Error migrating up: %v", err)
				return
			}
			fmt.Printf("Applied %d migrations!\n", n)
		},
	}
}

// migrateDownCommand rolls back one migration unless --steps says otherwise. Zero rolls back all.
func migrateDownCommand() *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use: "down",
		Run: func(cmd *cobra.Command, args []string) {
			n, err := runMigrations(migrate.Down, steps)
			if err != nil {
				log.Printf("Error migrating down: %v", err)
				return
			}
			fmt.Printf("Rolled back %d migrations!\n", n)
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back, 0 for all")
	return cmd
}

func migrateStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "list embedded migrations and whether each is applied",
		Run: func(cmd *cobra.Command, args []string) {
			db, err := openMigrationDB()
			if err != nil {
				log.Print(err)
				return
			}
			defer db.Close()

			status, err := migrationStatus(db)
			if err != nil {
				log.Printf("Error reading migration status: %v", err)
				return
			}
			for _, line := range status {
				fmt.Println(line)
			}
		},
	}
}

func openMigrationDB() (*sql.DB, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return nil, fmt.Errorf("error fetching config: %w", err)
	}
	db, err := database.ConnectDB(cnf.DataSource.Dns)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	migrate.SetSchema(migrationSchema)
	return db, nil
}

// runMigrations applies up to max migrations in direction. Zero means no limit.
func runMigrations(direction migrate.MigrationDirection, max int) (int, error) {
	db, err := openMigrationDB()
	if err != nil {
		return 0, err
	}
	defer db.Close()

	return migrate.ExecMax(db, "postgres", migrationSource(), direction, max)
}

// migrationStatus pairs every embedded migration with its applied record, if any.
func migrationStatus(db *sql.DB) ([]string, error) {
	migrations, err := migrationSource().FindMigrations()
	if err != nil {
		return nil, err
	}
	records, err := migrate.GetMigrationRecords(db, "postgres")
	if err != nil {
		return nil, err
	}

	applied := make(map[string]string, len(records))
	for _, record := range records {
		applied[record.Id] = record.AppliedAt.Format("2006-01-02 15:04:05")
	}

	lines := make([]string, 0, len(migrations))
	for _, m := range migrations {
		at, ok := applied[m.Id]
		if !ok {
			at = "pending"
		}
		lines = append(lines, fmt.Sprintf("%-45s %s", m.Id, at))
	}
	return lines, nil
}
