// Package services contains Drawbridge's business logic. This file implements
// LifecycleService, which moves accounts through the staged lifecycle
// waitlisted -> invited -> unconfirmed -> active.
//
// Every transition reads what it needs under WATCH and then commits the
// record change, the index changes and the counter changes as one batch. A
// concurrent change to a watched key aborts the commit with
// common.ErrConflict and leaves the store untouched.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/drawbridge/internal/common"
	"github.com/dmitrijs2005/drawbridge/internal/events"
	"github.com/dmitrijs2005/drawbridge/internal/kv"
	"github.com/dmitrijs2005/drawbridge/internal/models"
	"github.com/dmitrijs2005/drawbridge/internal/repositories/accounts"
	"github.com/dmitrijs2005/drawbridge/internal/repositories/indexes"
	"github.com/dmitrijs2005/drawbridge/internal/repositories/keys"
	"github.com/dmitrijs2005/drawbridge/internal/repositories/repomanager"
)

// Registration is the input of CreateUnactivatedUser. ConfirmationToken may
// be empty, in which case one is generated.
type Registration struct {
	InviteToken       string
	Email             string
	PasswordHash      string
	ScreenName        string
	ConfirmationToken string
}

type LifecycleService struct {
	core
}

func NewLifecycleService(store kv.Store, m repomanager.RepositoryManager, opts ...Option) *LifecycleService {
	return &LifecycleService{core: newCore(store, m, opts)}
}

// AddToWaitlist creates the record for email at stage waitlisted and adds it
// to the waitlist at score at. An existing record yields
// common.ErrorAlreadyExists and changes nothing.
func (s *LifecycleService) AddToWaitlist(ctx context.Context, email, ip string, at time.Time, sourceURL string) error {
	if err := required("email", email); err != nil {
		return err
	}
	lc := keys.Normalize(email)

	err := s.store.Watch(ctx, func(ctx context.Context, tx kv.Tx) error {
		accts := s.repomanager.Accounts(tx)
		idx := s.repomanager.Indexes(tx)

		ok, err := accts.Exists(ctx, email)
		if err != nil {
			return err
		}
		if ok {
			return common.ErrorAlreadyExists
		}

		rec := &models.Account{
			Email:             email,
			Stage:             models.StageWaitlisted,
			WaitlistIP:        ip,
			WaitlistTime:      at,
			WaitlistSourceURL: sourceURL,
		}
		return tx.Exec(ctx, func(b kv.Batch) error {
			accts.QueueSetFields(b, email, accounts.Encode(rec))
			idx.QueueAddMember(b, keys.Waitlist, lc, at)
			idx.QueueIncrement(b, indexes.NumWaitlist, 1)
			return nil
		})
	}, s.repomanager.Keys().Account(email))
	if err != nil {
		return s.fail(ctx, "add to waitlist", err)
	}

	s.logger.Debug(ctx, "waitlist joined", "email", lc)
	s.emit(ctx, events.WaitlistJoined, lc, map[string]string{"source_url": sourceURL})
	return nil
}

// InviteSignup issues an invite token for a waitlisted email and returns it.
// An account past the waitlist that already holds an invite token gets the
// same token back; it is still taken off the waitlist if it is somehow on it.
func (s *LifecycleService) InviteSignup(ctx context.Context, email string) (string, error) {
	if err := required("email", email); err != nil {
		return "", err
	}
	lc := keys.Normalize(email)
	ks := s.repomanager.Keys()

	var (
		token  string
		reused bool
	)
	err := s.store.Watch(ctx, func(ctx context.Context, tx kv.Tx) error {
		accts := s.repomanager.Accounts(tx)
		idx := s.repomanager.Indexes(tx)

		a, err := accts.Get(ctx, email)
		if err != nil {
			return err
		}

		if a.InviteToken != "" && a.Stage != models.StageWaitlisted {
			token, reused = a.InviteToken, true
			listed, err := idx.IsMember(ctx, keys.Waitlist, lc)
			if err != nil || !listed {
				return err
			}
			return tx.Exec(ctx, func(b kv.Batch) error {
				idx.QueueRemoveMember(b, keys.Waitlist, lc)
				idx.QueueIncrement(b, indexes.NumWaitlist, -1)
				return nil
			})
		}

		if a.Stage != models.StageWaitlisted {
			return fmt.Errorf("%w: %s account cannot be invited", common.ErrInvalidTransition, a.Stage)
		}

		// A waitlisted record can carry a token left behind by an undone
		// invite. Its mapping, if still present, is replaced.
		stale := false
		if a.InviteToken != "" {
			owner, err := idx.Lookup(ctx, keys.Invited, a.InviteToken)
			if err != nil && !errors.Is(err, common.ErrorNotFound) {
				return err
			}
			stale = owner == lc
		}

		token = s.newToken()
		return tx.Exec(ctx, func(b kv.Batch) error {
			if stale {
				idx.QueueMapDelete(b, keys.Invited, a.InviteToken)
				idx.QueueIncrement(b, indexes.NumInvited, -1)
			}
			accts.QueueSetFields(b, email, accounts.Fields{
				accounts.FieldInviteToken: token,
				accounts.FieldInviteTime:  accounts.EncodeTime(s.now()),
				accounts.FieldStage:       int(models.StageInvited),
			})
			idx.QueueRemoveMember(b, keys.Waitlist, lc)
			idx.QueueMapSet(b, keys.Invited, token, lc)
			idx.QueueIncrement(b, indexes.NumWaitlist, -1)
			idx.QueueIncrement(b, indexes.NumInvited, 1)
			return nil
		})
	}, ks.Account(email), ks.Index(keys.Waitlist), ks.Index(keys.Invited))
	if err != nil {
		return "", s.fail(ctx, "invite signup", err)
	}

	if reused {
		s.logger.Debug(ctx, "invite already issued", "email", lc)
		return token, nil
	}
	s.logger.Debug(ctx, "invite issued", "email", lc)
	s.emit(ctx, events.InviteIssued, lc, nil)
	return token, nil
}

// UndoInvite returns an invited account to the waitlist. It compensates for
// a failed invite delivery. The account is re-listed at score at, or at its
// original signup time when at is zero. The invite token is cleared so a
// later InviteSignup issues a fresh one.
func (s *LifecycleService) UndoInvite(ctx context.Context, email, token string, at time.Time) error {
	if err := required("email", email); err != nil {
		return err
	}
	if err := required("invite token", token); err != nil {
		return err
	}
	lc := keys.Normalize(email)
	ks := s.repomanager.Keys()

	err := s.store.Watch(ctx, func(ctx context.Context, tx kv.Tx) error {
		accts := s.repomanager.Accounts(tx)
		idx := s.repomanager.Indexes(tx)

		a, err := accts.Get(ctx, email)
		if err != nil {
			return err
		}
		if a.Stage != models.StageInvited {
			return fmt.Errorf("%w: %s account has no invite to undo", common.ErrInvalidTransition, a.Stage)
		}
		if a.InviteToken != token {
			return fmt.Errorf("invite token does not match: %w", common.ErrInvalidToken)
		}

		score := at
		if score.IsZero() {
			score = a.WaitlistTime
		}
		if score.IsZero() {
			score = s.now()
		}

		return tx.Exec(ctx, func(b kv.Batch) error {
			accts.QueueSetFields(b, email, accounts.Fields{accounts.FieldStage: int(models.StageWaitlisted)})
			accts.QueueDeleteFields(b, email, accounts.FieldInviteToken, accounts.FieldInviteTime)
			idx.QueueAddMember(b, keys.Waitlist, lc, score)
			idx.QueueMapDelete(b, keys.Invited, token)
			idx.QueueIncrement(b, indexes.NumInvited, -1)
			idx.QueueIncrement(b, indexes.NumWaitlist, 1)
			return nil
		})
	}, ks.Account(email), ks.Index(keys.Invited))
	if err != nil {
		return s.fail(ctx, "undo invite", err)
	}

	s.logger.Debug(ctx, "invite undone", "email", lc)
	s.emit(ctx, events.InviteUndone, lc, nil)
	return nil
}

// CreateUnactivatedUser redeems an invite token. The account moves to stage
// unconfirmed, gets its password hash and a confirmation token, and reserves
// its screen name, all in one batch. When the registration email differs
// from the invited one the record is re-keyed under the registration email.
func (s *LifecycleService) CreateUnactivatedUser(ctx context.Context, r Registration) (*models.Account, error) {
	if err := required("invite token", r.InviteToken); err != nil {
		return nil, err
	}
	if err := required("email", r.Email); err != nil {
		return nil, err
	}

	ks := s.repomanager.Keys()
	regLC := keys.Normalize(r.Email)
	nameLC := keys.Normalize(r.ScreenName)
	confirm := r.ConfirmationToken
	if confirm == "" {
		confirm = s.newToken()
	}

	var loaded kv.MapResult
	err := s.store.Watch(ctx, func(ctx context.Context, tx kv.Tx) error {
		accts := s.repomanager.Accounts(tx)
		idx := s.repomanager.Indexes(tx)

		invitedLC, err := idx.Lookup(ctx, keys.Invited, r.InviteToken)
		if errors.Is(err, common.ErrorNotFound) {
			return tokenMiss("invite token unknown")
		}
		if err != nil {
			return err
		}

		if err := tx.Watch(ctx, ks.Account(invitedLC), ks.Account(regLC)); err != nil {
			return err
		}

		a, err := accts.Get(ctx, invitedLC)
		if err != nil {
			return err
		}
		if a.Stage != models.StageInvited {
			return fmt.Errorf("%w: %s account cannot register", common.ErrInvalidTransition, a.Stage)
		}

		rekey := invitedLC != regLC
		if rekey {
			taken, err := accts.Exists(ctx, regLC)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("registration email %s: %w", regLC, common.ErrorAlreadyExists)
			}
		}

		if nameLC != "" {
			owner, err := idx.Lookup(ctx, keys.ScreenNames, nameLC)
			switch {
			case errors.Is(err, common.ErrorNotFound):
			case err != nil:
				return err
			case owner != invitedLC && owner != regLC:
				return fmt.Errorf("screen name %q: %w", r.ScreenName, common.ErrScreenNameTaken)
			}
		}

		return tx.Exec(ctx, func(b kv.Batch) error {
			if rekey {
				accts.QueueRename(b, invitedLC, regLC)
			}
			accts.QueueSetFields(b, regLC, accounts.Fields{
				accounts.FieldEmail:             r.Email,
				accounts.FieldConfirmationToken: confirm,
				accounts.FieldConfirmationTime:  accounts.EncodeTime(s.now()),
				accounts.FieldPasswordHash:      r.PasswordHash,
				accounts.FieldStage:             int(models.StageUnconfirmed),
			})
			idx.QueueMapDelete(b, keys.Invited, r.InviteToken)
			idx.QueueMapSet(b, keys.Unconfirmed, confirm, regLC)
			idx.QueueIncrement(b, indexes.NumInvited, -1)
			idx.QueueIncrement(b, indexes.NumUnConfirmed, 1)
			if nameLC != "" {
				accts.QueueSetFields(b, regLC, accounts.Fields{accounts.FieldScreenName: r.ScreenName})
				idx.QueueMapSet(b, keys.ScreenNames, nameLC, regLC)
			}
			loaded = accts.QueueLoad(b, regLC)
			return nil
		})
	}, ks.Index(keys.Invited), ks.Index(keys.ScreenNames))
	if err != nil {
		return nil, s.fail(ctx, "create unactivated user", err)
	}

	a, err := loadedAccount(loaded)
	if err != nil {
		return nil, s.fail(ctx, "create unactivated user", err)
	}

	s.logger.Debug(ctx, "registration created", "email", regLC)
	s.emit(ctx, events.RegistrationCreated, regLC, nil)
	return a, nil
}

// ActivateUser redeems a confirmation token and returns the active record.
// An unknown token mutates nothing.
func (s *LifecycleService) ActivateUser(ctx context.Context, token string) (*models.Account, error) {
	if token == "" {
		return nil, s.fail(ctx, "activate user", tokenMiss("confirmation token unknown"))
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
		lc, err = idx.Lookup(ctx, keys.Unconfirmed, token)
		if errors.Is(err, common.ErrorNotFound) {
			return tokenMiss("confirmation token unknown")
		}
		if err != nil {
			return err
		}

		if err := tx.Watch(ctx, ks.Account(lc)); err != nil {
			return err
		}
		a, err := accts.Get(ctx, lc)
		if err != nil {
			return err
		}
		if a.Stage != models.StageUnconfirmed {
			return fmt.Errorf("%w: %s account cannot be activated", common.ErrInvalidTransition, a.Stage)
		}

		now := s.now()
		return tx.Exec(ctx, func(b kv.Batch) error {
			accts.QueueSetFields(b, lc, accounts.Fields{
				accounts.FieldCreatedAt: accounts.EncodeTime(now),
				accounts.FieldStage:     int(models.StageActive),
			})
			idx.QueueMapDelete(b, keys.Unconfirmed, token)
			idx.QueueAddMember(b, keys.Users, lc, now)
			idx.QueueIncrement(b, indexes.NumUnConfirmed, -1)
			idx.QueueIncrement(b, indexes.NumUsers, 1)
			loaded = accts.QueueLoad(b, lc)
			return nil
		})
	}, ks.Index(keys.Unconfirmed))
	if err != nil {
		return nil, s.fail(ctx, "activate user", err)
	}

	a, err := loadedAccount(loaded)
	if err != nil {
		return nil, s.fail(ctx, "activate user", err)
	}

	s.logger.Debug(ctx, "account activated", "email", lc)
	s.emit(ctx, events.AccountActivated, lc, nil)
	return a, nil
}

// LogUserIn records the login time and address. It has no stage effect.
func (s *LifecycleService) LogUserIn(ctx context.Context, email, ip string) error {
	if err := required("email", email); err != nil {
		return err
	}

	err := s.store.Watch(ctx, func(ctx context.Context, tx kv.Tx) error {
		accts := s.repomanager.Accounts(tx)

		ok, err := accts.Exists(ctx, email)
		if err != nil {
			return err
		}
		if !ok {
			return common.ErrorNotFound
		}
		return tx.Exec(ctx, func(b kv.Batch) error {
			accts.QueueSetFields(b, email, accounts.Fields{
				accounts.FieldLastLogin:   accounts.EncodeTime(s.now()),
				accounts.FieldLastLoginIP: ip,
			})
			return nil
		})
	}, s.repomanager.Keys().Account(email))
	if err != nil {
		return s.fail(ctx, "log user in", err)
	}
	return nil
}

// loadedAccount decodes a record read at the end of a committed batch.
func loadedAccount(r kv.MapResult) (*models.Account, error) {
	m, err := r.Result()
	if err != nil {
		return nil, err
	}
	return accounts.Decode(m)
}
