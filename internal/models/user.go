package models

import "time"

// UserRole distinguishes teachers from students.
type UserRole string

const (
	RoleTeacher UserRole = "teacher"
	RoleStudent UserRole = "student"
)

// User represents a platform account.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	Role         UserRole  `db:"role" json:"role"`
	RollNumber   *string   `db:"roll_number" json:"roll_number,omitempty"`
	FullName     string    `db:"full_name" json:"full_name"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
