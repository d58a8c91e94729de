package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/drawbridge/internal/common"
	"github.com/dmitrijs2005/drawbridge/internal/kv"
	"github.com/dmitrijs2005/drawbridge/internal/models"
	"github.com/dmitrijs2005/drawbridge/internal/repositories/accounts"
	"github.com/dmitrijs2005/drawbridge/internal/repositories/indexes"
	"github.com/dmitrijs2005/drawbridge/internal/repositories/keys"
	"github.com/dmitrijs2005/drawbridge/internal/repositories/repomanager"
)

// protectedFields are owned by the lifecycle and token protocols and cannot
// be changed through ChangeUserAttributes.
var protectedFields = map[string]bool{
	accounts.FieldEmail:              true,
	accounts.FieldStage:              true,
	accounts.FieldWaitlistTime:       true,
	accounts.FieldInviteToken:        true,
	accounts.FieldConfirmationToken:  true,
	accounts.FieldPasswordResetToken: true,
	accounts.FieldSessionID:          true,
	accounts.FieldScreenName:         true,
	accounts.FieldSuperUser:          true,
	accounts.FieldCreatedAt:          true,
}

// Drift is one counter that disagrees with its index.
type Drift struct {
	Counter  indexes.Counter
	Counted  int64
	Observed int64
}

// ReconcileReport compares the incremental counters with index cardinalities.
type ReconcileReport struct {
	Counted  models.Stats
	Observed models.Stats
	Drift    []Drift
	Repaired bool
}

// AdminService serves operator views and maintenance: listings, the
// dashboard, counter reconciliation, super users and free-form attributes.
type AdminService struct {
	core
}

func NewAdminService(store kv.Store, m repomanager.RepositoryManager, opts ...Option) *AdminService {
	return &AdminService{core: newCore(store, m, opts)}
}

// GetWaitlist returns waitlisted records in signup order.
func (s *AdminService) GetWaitlist(ctx context.Context) ([]*models.Account, error) {
	return s.listSet(ctx, keys.Waitlist)
}

// GetUsers returns active records in activation order.
func (s *AdminService) GetUsers(ctx context.Context) ([]*models.Account, error) {
	return s.listSet(ctx, keys.Users)
}

// GetInvites returns records holding an outstanding invite, oldest invite first.
func (s *AdminService) GetInvites(ctx context.Context) ([]*models.Account, error) {
	emails, err := s.repomanager.Indexes(s.store).Values(ctx, keys.Invited)
	if err != nil {
		return nil, s.fail(ctx, "get invites", err)
	}
	out, err := s.getMany(ctx, "get invites", emails)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].InviteTime.Before(out[j].InviteTime) })
	return out, nil
}

func (s *AdminService) listSet(ctx context.Context, set keys.Index) ([]*models.Account, error) {
	emails, err := s.repomanager.Indexes(s.store).Members(ctx, set)
	if err != nil {
		return nil, s.fail(ctx, "list "+string(set), err)
	}
	return s.getMany(ctx, "list "+string(set), emails)
}

// getMany loads records for a listing. Records that no longer decode are
// logged and left out.
func (s *AdminService) getMany(ctx context.Context, op string, emails []string) ([]*models.Account, error) {
	out, bad, err := s.repomanager.Accounts(s.store).GetMany(ctx, emails)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	for _, d := range bad {
		s.logger.Warn(ctx, "skipping undecodable account", "op", op, "email", d.Email, "error", d.Err)
	}
	return out, nil
}

// GetDashboardValues returns the incremental counters.
func (s *AdminService) GetDashboardValues(ctx context.Context) (models.Stats, error) {
	st, err := s.repomanager.Indexes(s.store).Stats(ctx)
	if err != nil {
		return models.Stats{}, s.fail(ctx, "dashboard", err)
	}
	return st, nil
}

// Growth counts the members of the waitlist and of the active users that
// entered those sets at or after Since.
type Growth struct {
	Since      time.Time
	Waitlisted int64
	Activated  int64
}

// GetGrowth counts recent entries by ordered-set score.
func (s *AdminService) GetGrowth(ctx context.Context, since time.Time) (Growth, error) {
	idx := s.repomanager.Indexes(s.store)
	g := Growth{Since: since}

	var err error
	if g.Waitlisted, err = idx.CountSince(ctx, keys.Waitlist, since); err != nil {
		return Growth{}, s.fail(ctx, "growth", err)
	}
	if g.Activated, err = idx.CountSince(ctx, keys.Users, since); err != nil {
		return Growth{}, s.fail(ctx, "growth", err)
	}
	return g, nil
}

// Reconcile recomputes each population from its index and compares it with
// the counters. With repair set, drifted counters are overwritten with the
// observed values in one batch.
func (s *AdminService) Reconcile(ctx context.Context, repair bool) (*ReconcileReport, error) {
	ks := s.repomanager.Keys()

	var rep *ReconcileReport
	err := s.store.Watch(ctx, func(ctx context.Context, tx kv.Tx) error {
		idx := s.repomanager.Indexes(tx)

		counted, err := idx.Stats(ctx)
		if err != nil {
			return err
		}
		observed, err := observe(ctx, idx)
		if err != nil {
			return err
		}

		rep = &ReconcileReport{Counted: counted, Observed: observed, Drift: compare(counted, observed)}
		if !repair || len(rep.Drift) == 0 {
			return nil
		}
		if err := tx.Exec(ctx, func(b kv.Batch) error {
			idx.QueueSetStats(b, observed)
			return nil
		}); err != nil {
			return err
		}
		rep.Repaired = true
		return nil
	},
		ks.Index(keys.Stats),
		ks.Index(keys.Waitlist),
		ks.Index(keys.Invited),
		ks.Index(keys.Unconfirmed),
		ks.Index(keys.Users),
	)
	if err != nil {
		return nil, s.fail(ctx, "reconcile", err)
	}

	for _, d := range rep.Drift {
		s.logger.Warn(ctx, "counter drift", "counter", d.Counter, "counted", d.Counted, "observed", d.Observed, "repaired", rep.Repaired)
	}
	return rep, nil
}

func observe(ctx context.Context, idx indexes.Repository) (models.Stats, error) {
	var (
		st  models.Stats
		err error
	)
	if st.NumWaitlist, err = idx.Cardinality(ctx, keys.Waitlist); err != nil {
		return st, err
	}
	if st.NumInvited, err = idx.Len(ctx, keys.Invited); err != nil {
		return st, err
	}
	if st.NumUnConfirmed, err = idx.Len(ctx, keys.Unconfirmed); err != nil {
		return st, err
	}
	if st.NumUsers, err = idx.Cardinality(ctx, keys.Users); err != nil {
		return st, err
	}
	return st, nil
}

func compare(counted, observed models.Stats) []Drift {
	pairs := []struct {
		c    indexes.Counter
		a, b int64
	}{
		{indexes.NumWaitlist, counted.NumWaitlist, observed.NumWaitlist},
		{indexes.NumInvited, counted.NumInvited, observed.NumInvited},
		{indexes.NumUnConfirmed, counted.NumUnConfirmed, observed.NumUnConfirmed},
		{indexes.NumUsers, counted.NumUsers, observed.NumUsers},
	}
	var out []Drift
	for _, p := range pairs {
		if p.a != p.b {
			out = append(out, Drift{Counter: p.c, Counted: p.a, Observed: p.b})
		}
	}
	return out
}

// FindUserByEmail looks a record up by email in any casing.
func (s *AdminService) FindUserByEmail(ctx context.Context, email string) (*models.Account, error) {
	if err := required("email", email); err != nil {
		return nil, err
	}
	a, err := s.repomanager.Accounts(s.store).Get(ctx, email)
	if err != nil {
		return nil, s.fail(ctx, "find user by email", err)
	}
	return a, nil
}

// FindUserByScreenName resolves a screen name, case-insensitively, to its
// record.
func (s *AdminService) FindUserByScreenName(ctx context.Context, name string) (*models.Account, error) {
	lc, err := s.repomanager.Indexes(s.store).Lookup(ctx, keys.ScreenNames, keys.Normalize(name))
	if err != nil {
		return nil, s.fail(ctx, "find user by screen name", err)
	}
	a, err := s.repomanager.Accounts(s.store).Get(ctx, lc)
	if err != nil {
		return nil, s.fail(ctx, "find user by screen name", err)
	}
	return a, nil
}

// CreateSuperUser stores a with the super-user flag and lists it in the
// super-user index. Super users sit outside the lifecycle populations, so an
// email that already belongs to a lifecycle record is common.ErrorAlreadyExists.
// An existing super user is updated in place.
func (s *AdminService) CreateSuperUser(ctx context.Context, a *models.Account) error {
	if err := required("email", a.Email); err != nil {
		return err
	}
	rec := *a
	rec.IsSuperUser = true

	err := s.store.Watch(ctx, func(ctx context.Context, tx kv.Tx) error {
		accts := s.repomanager.Accounts(tx)
		idx := s.repomanager.Indexes(tx)

		ok, err := accts.Exists(ctx, rec.Email)
		if err != nil {
			return err
		}
		if ok {
			flag, err := accts.GetField(ctx, rec.Email, accounts.FieldSuperUser)
			if err != nil && !errors.Is(err, common.ErrorNotFound) {
				return err
			}
			if flag != "true" {
				return fmt.Errorf("%w: %s belongs to a lifecycle account", common.ErrorAlreadyExists, keys.Normalize(rec.Email))
			}
		}

		return tx.Exec(ctx, func(b kv.Batch) error {
			accts.QueueSetFields(b, rec.Email, accounts.Encode(&rec))
			idx.QueueMapSet(b, keys.SuperUsers, keys.Normalize(rec.Email), "")
			return nil
		})
	}, s.repomanager.Keys().Account(rec.Email))
	if err != nil {
		return s.fail(ctx, "create super user", err)
	}

	s.logger.Info(ctx, "super user created", "email", keys.Normalize(rec.Email))
	return nil
}

// IsSuperUser reports whether email is listed in the super-user index.
func (s *AdminService) IsSuperUser(ctx context.Context, email string) (bool, error) {
	_, err := s.repomanager.Indexes(s.store).Lookup(ctx, keys.SuperUsers, keys.Normalize(email))
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, s.fail(ctx, "is super user", err)
	}
	return true, nil
}

// ChangeUserAttributes sets free-form fields on an existing record.
func (s *AdminService) ChangeUserAttributes(ctx context.Context, email string, attrs map[string]string) error {
	if err := required("email", email); err != nil {
		return err
	}
	if len(attrs) == 0 {
		return nil
	}

	fields := make(accounts.Fields, len(attrs))
	for k, v := range attrs {
		if k == "" || protectedFields[k] {
			return fmt.Errorf("%w: attribute %q cannot be changed", common.ErrorValidation, k)
		}
		if err := accounts.CheckValue(k, v); err != nil {
			return err
		}
		fields[k] = v
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
			accts.QueueSetFields(b, email, fields)
			return nil
		})
	}, s.repomanager.Keys().Account(email))
	if err != nil {
		return s.fail(ctx, "change user attributes", err)
	}
	return nil
}
