package domain

import "time"

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	AccountID    string    `json:"account_id,omitempty"`
	DisplayName  string    `json:"display_name"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *User) Clone() *User {
	cp := *u
	return &cp
}
