package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/drawbridge/internal/common"
	"github.com/dmitrijs2005/drawbridge/internal/events"
	"github.com/dmitrijs2005/drawbridge/internal/kv"
	"github.com/dmitrijs2005/drawbridge/internal/models"
	"github.com/dmitrijs2005/drawbridge/internal/repositories/accounts"
	"github.com/dmitrijs2005/drawbridge/internal/repositories/keys"
	"github.com/dmitrijs2005/drawbridge/internal/repositories/repomanager"
)

// TokenService owns the side channels layered on account records: invite
// checks, screen names, password reset tokens and remember-me sessions.
type TokenService struct {
	core
}

func NewTokenService(store kv.Store, m repomanager.RepositoryManager, opts ...Option) *TokenService {
	return &TokenService{core: newCore(store, m, opts)}
}

// CheckInviteToken returns the display email the invite was issued to. An
// unknown token, or one whose record is gone, yields an empty email and no
// error; callers treat the empty email as an invalid token.
func (s *TokenService) CheckInviteToken(ctx context.Context, token string) (string, error) {
	idx := s.repomanager.Indexes(s.store)
	lc, err := idx.Lookup(ctx, keys.Invited, token)
	if errors.Is(err, common.ErrorNotFound) {
		return "", nil
	}
	if err != nil {
		return "", s.fail(ctx, "check invite token", err)
	}

	email, err := s.repomanager.Accounts(s.store).GetField(ctx, lc, accounts.FieldEmail)
	if errors.Is(err, common.ErrorNotFound) {
		s.logger.Warn(ctx, "invite token points to a missing record", "email", lc)
		return "", nil
	}
	if err != nil {
		return "", s.fail(ctx, "check invite token", err)
	}
	return email, nil
}

// IsScreenNameInUse reports whether name is reserved, case-insensitively,
// and by which lowercase email.
func (s *TokenService) IsScreenNameInUse(ctx context.Context, name string) (string, bool, error) {
	owner, err := s.repomanager.Indexes(s.store).Lookup(ctx, keys.ScreenNames, keys.Normalize(name))
	if errors.Is(err, common.ErrorNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.fail(ctx, "screen name lookup", err)
	}
	return owner, true, nil
}

// SaveResetPasswordToken stores token on the account and in the reset index.
// A previously issued token for the same account stops resolving.
func (s *TokenService) SaveResetPasswordToken(ctx context.Context, email, token string) error {
	if err := required("email", email); err != nil {
		return err
	}
	if err := required("reset token", token); err != nil {
		return err
	}
	lc := keys.Normalize(email)

	err := s.store.Watch(ctx, func(ctx context.Context, tx kv.Tx) error {
		accts := s.repomanager.Accounts(tx)
		idx := s.repomanager.Indexes(tx)

		a, err := accts.Get(ctx, email)
		if err != nil {
			return err
		}
		return tx.Exec(ctx, func(b kv.Batch) error {
			if a.PasswordResetToken != "" && a.PasswordResetToken != token {
				idx.QueueMapDelete(b, keys.ResetPasswords, a.PasswordResetToken)
			}
			idx.QueueMapSet(b, keys.ResetPasswords, token, lc)
			accts.QueueSetFields(b, email, accounts.Fields{
				accounts.FieldPasswordResetToken: token,
				accounts.FieldPasswordResetTime:  accounts.EncodeTime(s.now()),
			})
			return nil
		})
	}, s.repomanager.Keys().Account(email))
	if err != nil {
		return s.fail(ctx, "save reset password token", err)
	}

	s.emit(ctx, events.PasswordResetRequested, lc, nil)
	return nil
}

// CheckResetPasswordToken returns the lowercase email token was issued to.
func (s *TokenService) CheckResetPasswordToken(ctx context.Context, token string) (string, error) {
	lc, err := s.repomanager.Indexes(s.store).Lookup(ctx, keys.ResetPasswords, token)
	if errors.Is(err, common.ErrorNotFound) {
		return "", tokenMiss("password reset token unknown")
	}
	if err != nil {
		return "", s.fail(ctx, "check reset password token", err)
	}
	return lc, nil
}

// ResetPassword redeems a reset token: the new hash is stored, the token is
// consumed and the updated record is returned.
func (s *TokenService) ResetPassword(ctx context.Context, token, passwordHash string) (*models.Account, error) {
	if err := required("password hash", passwordHash); err != nil {
		return nil, err
	}
	ks := s.repomanager.Keys()

	var (
		loaded kv.MapResult
		lc     string
	)
	err := s.store.Watch(ctx, func(ctx context.Context, tx kv.Tx) error {
		accts := s.repomanager.Accounts(tx)
		idx := s.repomanager.Indexes(tx)

		var err error
		lc, err = idx.Lookup(ctx, keys.ResetPasswords, token)
		if errors.Is(err, common.ErrorNotFound) {
			return tokenMiss("password reset token does not match")
		}
		if err != nil {
			return err
		}

		if err := tx.Watch(ctx, ks.Account(lc)); err != nil {
			return err
		}
		ok, err := accts.Exists(ctx, lc)
		if err != nil {
			return err
		}
		if !ok {
			return tokenMiss("password reset token does not match")
		}

		return tx.Exec(ctx, func(b kv.Batch) error {
			idx.QueueMapDelete(b, keys.ResetPasswords, token)
			accts.QueueSetFields(b, lc, accounts.Fields{accounts.FieldPasswordHash: passwordHash})
			accts.QueueDeleteFields(b, lc, accounts.FieldPasswordResetToken)
			loaded = accts.QueueLoad(b, lc)
			return nil
		})
	}, ks.Index(keys.ResetPasswords))
	if err != nil {
		return nil, s.fail(ctx, "reset password", err)
	}

	a, err := loadedAccount(loaded)
	if err != nil {
		return nil, s.fail(ctx, "reset password", err)
	}

	s.emit(ctx, events.PasswordReset, lc, nil)
	return a, nil
}

// SaveRememberMe maps sessionID to the account and stores the back
// reference on the record. A previous session of the account is dropped.
func (s *TokenService) SaveRememberMe(ctx context.Context, sessionID, email string) error {
	if err := required("session id", sessionID); err != nil {
		return err
	}
	if err := required("email", email); err != nil {
		return err
	}
	lc := keys.Normalize(email)

	err := s.store.Watch(ctx, func(ctx context.Context, tx kv.Tx) error {
		accts := s.repomanager.Accounts(tx)
		idx := s.repomanager.Indexes(tx)

		a, err := accts.Get(ctx, email)
		if err != nil {
			return err
		}
		return tx.Exec(ctx, func(b kv.Batch) error {
			if a.RememberMeSessionID != "" && a.RememberMeSessionID != sessionID {
				idx.QueueMapDelete(b, keys.RememberMe, a.RememberMeSessionID)
			}
			idx.QueueMapSet(b, keys.RememberMe, sessionID, lc)
			accts.QueueSetFields(b, email, accounts.Fields{accounts.FieldSessionID: sessionID})
			return nil
		})
	}, s.repomanager.Keys().Account(email))
	if err != nil {
		return s.fail(ctx, "save remember me", err)
	}

	s.emit(ctx, events.SessionRemembered, lc, nil)
	return nil
}

// GetRememberMe returns the account a session belongs to. An empty session
// ID is common.ErrorNotFound without a store round trip, as is a session
// whose account no longer exists.
func (s *TokenService) GetRememberMe(ctx context.Context, sessionID string) (*models.Account, error) {
	if sessionID == "" {
		return nil, common.ErrorNotFound
	}

	lc, err := s.repomanager.Indexes(s.store).Lookup(ctx, keys.RememberMe, sessionID)
	if err != nil {
		return nil, s.fail(ctx, "get remember me", err)
	}

	a, err := s.repomanager.Accounts(s.store).Get(ctx, lc)
	if err != nil {
		return nil, s.fail(ctx, "get remember me", err)
	}
	return a, nil
}

// DestroyRememberMe removes the session of email on both sides. An account
// without a session, or no account at all, is a no-op.
func (s *TokenService) DestroyRememberMe(ctx context.Context, email string) error {
	if err := required("email", email); err != nil {
		return err
	}
	lc := keys.Normalize(email)

	destroyed := false
	err := s.store.Watch(ctx, func(ctx context.Context, tx kv.Tx) error {
		accts := s.repomanager.Accounts(tx)
		idx := s.repomanager.Indexes(tx)

		sid, err := accts.GetField(ctx, email, accounts.FieldSessionID)
		if errors.Is(err, common.ErrorNotFound) || (err == nil && sid == "") {
			return nil
		}
		if err != nil {
			return err
		}

		destroyed = true
		return tx.Exec(ctx, func(b kv.Batch) error {
			accts.QueueDeleteFields(b, email, accounts.FieldSessionID)
			idx.QueueMapDelete(b, keys.RememberMe, sid)
			return nil
		})
	}, s.repomanager.Keys().Account(email))
	if err != nil {
		return s.fail(ctx, "destroy remember me", err)
	}

	if destroyed {
		s.emit(ctx, events.SessionForgotten, lc, nil)
	}
	return nil
}
