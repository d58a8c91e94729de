package accounts

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/drawbridge/internal/common"
	"github.com/dmitrijs2005/drawbridge/internal/models"
)

// Stored field names of an account record.
const (
	FieldEmail              = "email"
	FieldStage              = "stage"
	FieldWaitlistIP         = "wl_ip"
	FieldWaitlistTime       = "wl_time"
	FieldWaitlistSourceURL  = "wl_requestURL"
	FieldInviteToken        = "inv_token"
	FieldInviteTime         = "inv_time"
	FieldConfirmationToken  = "unc_token"
	FieldConfirmationTime   = "unc_time"
	FieldPasswordHash       = "password"
	FieldScreenName         = "screenName"
	FieldCreatedAt          = "createdAt"
	FieldLastLogin          = "lastLogin"
	FieldLastLoginIP        = "lastLoginIP"
	FieldPasswordResetToken = "passwordResetToken"
	FieldPasswordResetTime  = "passwordResetTime"
	FieldSessionID          = "sessionID"
	FieldSuperUser          = "superUser"
)

// timeFields hold EncodeTime values; anything else there breaks Decode.
var timeFields = map[string]bool{
	FieldWaitlistTime:      true,
	FieldInviteTime:        true,
	FieldConfirmationTime:  true,
	FieldCreatedAt:         true,
	FieldLastLogin:         true,
	FieldPasswordResetTime: true,
}

// CheckValue reports whether v can be stored in field without making the
// record undecodable.
func CheckValue(field, v string) error {
	switch {
	case timeFields[field]:
		if _, err := time.Parse(time.RFC3339Nano, v); err != nil {
			return fmt.Errorf("%w: %s must be an RFC3339 time", common.ErrorValidation, field)
		}
	case field == FieldStage:
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("%w: %s must be an integer", common.ErrorValidation, field)
		}
	}
	return nil
}

// Fields is a partial record update, field name to value.
type Fields map[string]any

// EncodeTime is the stored form of timestamps.
func EncodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Encode returns the non-empty fields of a.
func Encode(a *models.Account) Fields {
	f := Fields{}
	put := func(name, v string) {
		if v != "" {
			f[name] = v
		}
	}
	putTime := func(name string, t time.Time) {
		if !t.IsZero() {
			f[name] = EncodeTime(t)
		}
	}

	put(FieldEmail, a.Email)
	if a.Stage != models.StageUnknown {
		f[FieldStage] = int(a.Stage)
	}
	put(FieldWaitlistIP, a.WaitlistIP)
	putTime(FieldWaitlistTime, a.WaitlistTime)
	put(FieldWaitlistSourceURL, a.WaitlistSourceURL)
	put(FieldInviteToken, a.InviteToken)
	putTime(FieldInviteTime, a.InviteTime)
	put(FieldConfirmationToken, a.ConfirmationToken)
	putTime(FieldConfirmationTime, a.ConfirmationTime)
	put(FieldPasswordHash, a.PasswordHash)
	put(FieldScreenName, a.ScreenName)
	putTime(FieldCreatedAt, a.CreatedAt)
	putTime(FieldLastLogin, a.LastLogin)
	put(FieldLastLoginIP, a.LastLoginIP)
	put(FieldPasswordResetToken, a.PasswordResetToken)
	putTime(FieldPasswordResetTime, a.PasswordResetTime)
	put(FieldSessionID, a.RememberMeSessionID)
	if a.IsSuperUser {
		f[FieldSuperUser] = "true"
	}
	return f
}

// Decode builds an Account from stored fields. An empty map means the
// record does not exist.
func Decode(m map[string]string) (*models.Account, error) {
	if len(m) == 0 {
		return nil, common.ErrorNotFound
	}

	a := &models.Account{
		Email:               m[FieldEmail],
		WaitlistIP:          m[FieldWaitlistIP],
		WaitlistSourceURL:   m[FieldWaitlistSourceURL],
		InviteToken:         m[FieldInviteToken],
		ConfirmationToken:   m[FieldConfirmationToken],
		PasswordHash:        m[FieldPasswordHash],
		ScreenName:          m[FieldScreenName],
		LastLoginIP:         m[FieldLastLoginIP],
		PasswordResetToken:  m[FieldPasswordResetToken],
		RememberMeSessionID: m[FieldSessionID],
		IsSuperUser:         m[FieldSuperUser] == "true",
	}

	if v := m[FieldStage]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("decode account %q: stage: %w", a.Email, err)
		}
		a.Stage = models.Stage(n)
	}

	times := []struct {
		field string
		dst   *time.Time
	}{
		{FieldWaitlistTime, &a.WaitlistTime},
		{FieldInviteTime, &a.InviteTime},
		{FieldConfirmationTime, &a.ConfirmationTime},
		{FieldCreatedAt, &a.CreatedAt},
		{FieldLastLogin, &a.LastLogin},
		{FieldPasswordResetTime, &a.PasswordResetTime},
	}
	for _, tf := range times {
		v := m[tf.field]
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("decode account %q: %s: %w", a.Email, tf.field, err)
		}
		*tf.dst = t
	}

	return a, nil
}
