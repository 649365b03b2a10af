package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"remo-voting/pkg/database"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate [up|drop|seed]")
		os.Exit(1)
	}
	command := os.Args[1]

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	switch command {
	case "up":
		if err := createTables(ctx, conn); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		fmt.Println("✅ All tables created successfully")

	case "drop":
		if err := dropTables(ctx, conn); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		fmt.Println("✅ All tables dropped successfully")

	case "seed":
		if err := seedData(ctx, conn); err != nil {
			log.Fatalf("Failed to seed data: %v", err)
		}
		fmt.Println("✅ Data seeded successfully")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println("Usage: migrate [up|drop|seed]")
		os.Exit(1)
	}
}

func createTables(ctx context.Context, conn *pgx.Conn) error {
	names, err := database.MigrationNames()
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Printf("Applying %s\n", name)
	}
	return database.Migrate(ctx, func(ctx context.Context, sql string) error {
		_, err := conn.Exec(ctx, sql)
		return err
	})
}

func dropTables(ctx context.Context, conn *pgx.Conn) error {
	for _, stmt := range database.DropStatements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

// seedData creates the admin and voter groups with a few members so a
// fresh database can be exercised end to end. It is safe to run twice.
func seedData(ctx context.Context, conn *pgx.Conn) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	groupID := func(name string) (int64, error) {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO groups (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, name).Scan(&id)
		return id, err
	}

	adminGroup := os.Getenv("ADMIN_GROUP")
	if adminGroup == "" {
		adminGroup = "Admin"
	}
	admins, err := groupID(adminGroup)
	if err != nil {
		return fmt.Errorf("seed group %s: %w", adminGroup, err)
	}
	reps, err := groupID("Rep")
	if err != nil {
		return fmt.Errorf("seed group Rep: %w", err)
	}

	users := []struct {
		first, last, email string
		group              int64
	}{
		{"Ada", "Admin", "admin@example.org", admins},
		{"Alice", "Zed", "alice@example.org", reps},
		{"Bob", "Young", "bob@example.org", reps},
		{"Carol", "Young", "carol@example.org", reps},
	}
	for _, u := range users {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO users (first_name, last_name, email) VALUES ($1, $2, $3)
			ON CONFLICT (email) DO UPDATE SET first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name
			RETURNING id`, u.first, u.last, u.email).Scan(&id)
		if err != nil {
			return fmt.Errorf("seed user %s: %w", u.email, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO group_memberships (user_id, group_id)
			SELECT $1, $2
			WHERE NOT EXISTS (
				SELECT 1 FROM group_memberships
				WHERE user_id = $1 AND group_id = $2 AND left_at IS NULL
			)`, id, u.group)
		if err != nil {
			return fmt.Errorf("seed membership %s: %w", u.email, err)
		}
		fmt.Printf("  user %d %s\n", id, u.email)
	}

	return tx.Commit(ctx)
}
