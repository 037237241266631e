package account

import "time"

type Account struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Nickname     string    `json:"nickname"`
	Gender       string    `json:"gender"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type RegisterRequest struct {
	Username        string `json:"username"`
	Nickname        string `json:"nickname"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Gender          string `json:"gender"`
}

// ProfilePatch carries the fields to change; nil means "leave as is".
type ProfilePatch struct {
	Username *string `json:"username"`
	Nickname *string `json:"nickname"`
	Password *string `json:"password"`
	Gender   *string `json:"gender"`
}

func (p ProfilePatch) Empty() bool {
	return p.Username == nil && p.Nickname == nil && p.Password == nil && p.Gender == nil
}
