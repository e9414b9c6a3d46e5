package migrations

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// statements is the full declarative schema. The named constraints on
// enrollments are load-bearing: the seat allocator relies on the database
// rejecting duplicate (student, subject) and (student, semester) rows at
// commit time, and the conflict resolver maps violations back to
// user-facing errors by constraint name.
var statements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,

	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		email VARCHAR(255) UNIQUE NOT NULL,
		password VARCHAR(255) NOT NULL,
		role VARCHAR(20) NOT NULL CHECK (role IN ('teacher', 'student')),
		roll_number VARCHAR(50),
		full_name VARCHAR(255) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS semesters (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name VARCHAR(100) NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		is_active BOOLEAN DEFAULT true,
		created_by UUID REFERENCES users(id),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(name)
	)`,

	`CREATE TABLE IF NOT EXISTS subjects (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name VARCHAR(255) NOT NULL,
		code VARCHAR(50) NOT NULL,
		description TEXT,
		semester_id UUID REFERENCES semesters(id) ON DELETE CASCADE,
		total_seats INTEGER NOT NULL CHECK (total_seats > 0),
		available_seats INTEGER NOT NULL CHECK (available_seats >= 0),
		created_by UUID REFERENCES users(id),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT available_seats_check CHECK (available_seats <= total_seats),
		UNIQUE(code, semester_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_subjects_available_seats
		ON subjects(available_seats)
		WHERE available_seats > 0`,

	`CREATE TABLE IF NOT EXISTS enrollments (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		student_id UUID REFERENCES users(id) ON DELETE CASCADE,
		subject_id UUID REFERENCES subjects(id) ON DELETE CASCADE,
		semester_id UUID REFERENCES semesters(id) ON DELETE CASCADE,
		enrolled_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		status VARCHAR(20) DEFAULT 'active' CHECK (status IN ('active', 'dropped', 'completed')),
		CONSTRAINT enrollments_student_id_subject_id_key UNIQUE(student_id, subject_id),
		CONSTRAINT one_subject_per_semester UNIQUE(student_id, semester_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_enrollments_student ON enrollments(student_id)`,
	`CREATE INDEX IF NOT EXISTS idx_enrollments_subject ON enrollments(subject_id)`,
	`CREATE INDEX IF NOT EXISTS idx_enrollments_semester ON enrollments(semester_id)`,

	`CREATE TABLE IF NOT EXISTS enrollment_history (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		student_id UUID REFERENCES users(id) ON DELETE CASCADE,
		subject_id UUID REFERENCES subjects(id) ON DELETE CASCADE,
		semester_id UUID REFERENCES semesters(id) ON DELETE CASCADE,
		completed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(student_id, subject_id)
	)`,

	`CREATE OR REPLACE FUNCTION update_updated_at_column()
	RETURNS TRIGGER AS $$
	BEGIN
		NEW.updated_at = CURRENT_TIMESTAMP;
		RETURN NEW;
	END;
	$$ language 'plpgsql'`,

	`DROP TRIGGER IF EXISTS update_users_updated_at ON users;
	CREATE TRIGGER update_users_updated_at BEFORE UPDATE ON users
	FOR EACH ROW EXECUTE FUNCTION update_updated_at_column()`,

	`DROP TRIGGER IF EXISTS update_semesters_updated_at ON semesters;
	CREATE TRIGGER update_semesters_updated_at BEFORE UPDATE ON semesters
	FOR EACH ROW EXECUTE FUNCTION update_updated_at_column()`,

	`DROP TRIGGER IF EXISTS update_subjects_updated_at ON subjects;
	CREATE TRIGGER update_subjects_updated_at BEFORE UPDATE ON subjects
	FOR EACH ROW EXECUTE FUNCTION update_updated_at_column()`,
}

// Run applies the schema inside one transaction. Statements are
// idempotent, so re-running at every startup is safe.
func Run(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}
