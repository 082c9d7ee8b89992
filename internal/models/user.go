package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lib/pq"
)

// Роли пользователей платформы
const (
	RoleSeeker   = "seeker"
	RoleReferrer = "referrer"
)

// User описывает сущность пользователя платформы.
// Companies заполняется у рефереров и определяет, какие запросы им видны.
type User struct {
	ID           uuid.UUID      `db:"id" json:"id"`
	Email        string         `db:"email" json:"email"`
	Name         string         `db:"name" json:"name"`
	PasswordHash string         `db:"password_hash" json:"-"`
	Role         string         `db:"role" json:"role"`
	Verified     bool           `db:"verified" json:"verified"`
	Companies    pq.StringArray `db:"companies" json:"companies"`
	LastLoginAt  *time.Time     `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// AnonDisplay возвращает обезличенное представление реферера:
// количество компаний в опыте и анонимный идентификатор.
func (u *User) AnonDisplay() ReferrerDisplay {
	id := u.ID.String()
	return ReferrerDisplay{
		Experience: len(u.Companies),
		AnonID:     "REF_" + id[len(id)-4:],
	}
}
