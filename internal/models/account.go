package models

import "time"

// Stage is the lifecycle position of an account.
type Stage int

const (
	StageUnknown Stage = iota
	StageWaitlisted
	StageInvited
	StageUnconfirmed
	StageActive
)

func (s Stage) String() string {
	switch s {
	case StageWaitlisted:
		return "waitlisted"
	case StageInvited:
		return "invited"
	case StageUnconfirmed:
		return "unconfirmed"
	case StageActive:
		return "active"
	default:
		return "unknown"
	}
}

// Account is the per-user record, keyed in the store by lowercase Email.
// Email keeps the casing the user typed.
type Account struct {
	Email string `json:"email"`
	Stage Stage  `json:"stage"`

	WaitlistIP        string    `json:"waitlist_ip,omitempty"`
	WaitlistTime      time.Time `json:"waitlist_time,omitzero"`
	WaitlistSourceURL string    `json:"waitlist_source_url,omitempty"`

	InviteToken string    `json:"-"`
	InviteTime  time.Time `json:"invite_time,omitzero"`

	ConfirmationToken string    `json:"-"`
	ConfirmationTime  time.Time `json:"confirmation_time,omitzero"`

	PasswordHash string    `json:"-"`
	ScreenName   string    `json:"screen_name,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitzero"`

	LastLogin   time.Time `json:"last_login,omitzero"`
	LastLoginIP string    `json:"last_login_ip,omitempty"`

	PasswordResetToken string    `json:"-"`
	PasswordResetTime  time.Time `json:"password_reset_time,omitzero"`

	RememberMeSessionID string `json:"-"`
	IsSuperUser         bool   `json:"is_super_user,omitempty"`
}

// Stats holds one counter per lifecycle population.
type Stats struct {
	NumWaitlist    int64 `json:"num_waitlist"`
	NumInvited     int64 `json:"num_invited"`
	NumUnConfirmed int64 `json:"num_unconfirmed"`
	NumUsers       int64 `json:"num_users"`
}
