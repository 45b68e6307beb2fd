package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	// Get database URL
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	// Get command
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run main.go [drop|up|seed]")
		os.Exit(1)
	}

	command := os.Args[1]

	// Connect to database
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	switch command {
	case "drop":
		if err := dropTables(ctx, conn); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		fmt.Println("✅ All tables dropped successfully")

	case "up":
		if err := createTables(ctx, conn); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		fmt.Println("✅ All tables created successfully")

	case "seed":
		if err := seedData(ctx, conn); err != nil {
			log.Fatalf("Failed to seed data: %v", err)
		}
		fmt.Println("✅ Data seeded successfully")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println("Usage: go run main.go [drop|up|seed]")
		os.Exit(1)
	}
}

func dropTables(ctx context.Context, conn *pgx.Conn) error {
	queries := []string{
		`DROP TABLE IF EXISTS decks CASCADE`,
		`DROP TABLE IF EXISTS matches CASCADE`,
		`DROP TABLE IF EXISTS votes CASCADE`,
		`DROP TABLE IF EXISTS group_members CASCADE`,
	}

	for _, query := range queries {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
		fmt.Printf("  Dropped: %s\n", query)
	}

	return nil
}

func createTables(ctx context.Context, conn *pgx.Conn) error {
	queries := []string{
		// Membership roster, owned by the group service; mirrored here so
		// consensus evaluation can read it locally
		`CREATE TABLE IF NOT EXISTS group_members (
			scope_id VARCHAR(255) NOT NULL,
			member_id VARCHAR(255) NOT NULL,
			display_name VARCHAR(255) NOT NULL DEFAULT '',
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (scope_id, member_id)
		)`,

		// Vote ledger: one row per (scope, item, member), latest direction only
		`CREATE TABLE IF NOT EXISTS votes (
			scope_id VARCHAR(255) NOT NULL,
			item_id VARCHAR(255) NOT NULL,
			member_id VARCHAR(255) NOT NULL,
			direction VARCHAR(10) NOT NULL CHECK (direction IN ('right', 'left')),
			item_kind VARCHAR(20) NOT NULL CHECK (item_kind IN ('restaurant', 'recipe')),
			item_snapshot JSONB NOT NULL,
			voted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (scope_id, item_id, member_id)
		)`,

		// Match records: the (scope_id, item_id) primary key is what makes
		// concurrent materialization attempts collapse to a single row
		`CREATE TABLE IF NOT EXISTS matches (
			scope_id VARCHAR(255) NOT NULL,
			item_id VARCHAR(255) NOT NULL,
			match_id UUID NOT NULL,
			member_ids TEXT[] NOT NULL,
			required_count INTEGER NOT NULL,
			affirmative_count INTEGER NOT NULL,
			unanimous BOOLEAN NOT NULL DEFAULT false,
			status VARCHAR(20) NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'resolved', 'archived')),
			item_kind VARCHAR(20) NOT NULL,
			item_snapshot JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (scope_id, item_id)
		)`,

		// Shared candidate decks, one per scope
		`CREATE TABLE IF NOT EXISTS decks (
			scope_id VARCHAR(255) PRIMARY KEY,
			generation INTEGER NOT NULL DEFAULT 1,
			item_ids JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Create indexes
		`CREATE INDEX IF NOT EXISTS idx_votes_scope_item_direction ON votes(scope_id, item_id, direction)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_member ON votes(scope_id, member_id)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_voted_at ON votes(voted_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_scope_status ON matches(scope_id, status)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_matches_match_id ON matches(match_id)`,
	}

	for _, query := range queries {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
		fmt.Printf("  Created: %s\n", getTableName(query))
	}

	return nil
}

func seedData(ctx context.Context, conn *pgx.Conn) error {
	// Insert a demo group for local development
	query := `
		INSERT INTO group_members (scope_id, member_id, display_name) VALUES
		('demo-dinner-club', 'alice', 'Alice'),
		('demo-dinner-club', 'bob', 'Bob'),
		('demo-dinner-club', 'carol', 'Carol')
		ON CONFLICT (scope_id, member_id) DO UPDATE SET
			display_name = EXCLUDED.display_name
	`

	if _, err := conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to seed group members: %w", err)
	}

	fmt.Println("  Seeded demo group with 3 members")

	return nil
}

func getTableName(query string) string {
	if len(query) > 50 {
		return query[:50] + "..."
	}
	return query
}
