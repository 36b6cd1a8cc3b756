package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"filmbase.org/internal/account"
	"filmbase.org/internal/apperr"
	"filmbase.org/internal/ids"
)

const accountColumns = `a.id, a.username, a.email, a.first_name, a.last_name, a.image_url, a.lang_key,
	a.password_hash, a.activated, a.activation_key, a.reset_key, a.reset_date,
	a.created_by, a.created_at, a.modified_by, a.modified_at`

const selectAccount = `select ` + accountColumns + `, '' from accounts a where `

const selectAccountWithRoles = `select ` + accountColumns + `,
	coalesce(string_agg(ar.role_name, ',' order by ar.role_name), '')
	from accounts a
	left join account_roles ar on ar.account_id = a.id
	where %s
	group by a.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*account.Account, error) {
	var (
		acct                           account.Account
		email, activationKey, resetKey sql.NullString
		resetDate                      sql.NullTime
		roles                          string
	)
	err := row.Scan(
		&acct.ID, &acct.Username, &email, &acct.FirstName, &acct.LastName, &acct.ImageURL, &acct.LangKey,
		&acct.PasswordHash, &acct.Activated, &activationKey, &resetKey, &resetDate,
		&acct.CreatedBy, &acct.CreatedAt, &acct.ModifiedBy, &acct.ModifiedAt,
		&roles,
	)
	if err != nil {
		return nil, err
	}
	acct.Email = email.String
	acct.ActivationKey = activationKey.String
	acct.ResetKey = resetKey.String
	if resetDate.Valid {
		t := resetDate.Time.UTC()
		acct.ResetDate = &t
	}
	if roles != "" {
		acct.Roles = strings.Split(roles, ",")
	}
	return &acct, nil
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (*account.Account, error) {
	acct, err := scanAccount(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}
	return acct, nil
}

func (s *Store) queryMany(ctx context.Context, query string, args ...any) ([]account.Account, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []account.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *acct)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, acct *account.Account) error {
	if acct.ID == "" {
		acct.ID = ids.New()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into accounts (id, username, email, first_name, last_name, image_url, lang_key,
			password_hash, activated, activation_key, reset_key, reset_date,
			created_by, created_at, modified_by, modified_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, acct.ID, acct.Username, nullIfEmpty(acct.Email), acct.FirstName, acct.LastName, acct.ImageURL, acct.LangKey,
		acct.PasswordHash, acct.Activated, nullIfEmpty(acct.ActivationKey), nullIfEmpty(acct.ResetKey), nullTime(acct.ResetDate),
		acct.CreatedBy, acct.CreatedAt, acct.ModifiedBy, acct.ModifiedAt); err != nil {
		return mapWriteError(err)
	}

	assigned, err := assignRoles(ctx, tx, acct.ID, acct.Roles)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapWriteError(err)
	}
	acct.Roles = assigned
	return nil
}

// assignRoles links roles that exist in the roles table and returns the
// ones that were linked or already present.
func assignRoles(ctx context.Context, tx *sql.Tx, accountID string, roles []string) ([]string, error) {
	var assigned []string
	for _, role := range roles {
		res, err := tx.ExecContext(ctx, `
			insert into account_roles (account_id, role_name)
			select $1, name from roles where name = $2
			on conflict do nothing
		`, accountID, role)
		if err != nil {
			return nil, mapWriteError(err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			assigned = append(assigned, role)
		}
	}
	return assigned, nil
}

func (s *Store) Update(ctx context.Context, acct *account.Account) error {
	res, err := s.db.ExecContext(ctx, `
		update accounts set
			username = $2, email = $3, first_name = $4, last_name = $5, image_url = $6, lang_key = $7,
			password_hash = $8, activated = $9, activation_key = $10, reset_key = $11, reset_date = $12,
			modified_by = $13, modified_at = $14
		where id = $1
	`, acct.ID, acct.Username, nullIfEmpty(acct.Email), acct.FirstName, acct.LastName, acct.ImageURL, acct.LangKey,
		acct.PasswordHash, acct.Activated, nullIfEmpty(acct.ActivationKey), nullIfEmpty(acct.ResetKey), nullTime(acct.ResetDate),
		acct.ModifiedBy, acct.ModifiedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return expectOneRow(res)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from accounts where id = $1`, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *Store) DeleteUnactivated(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from accounts where id = $1 and not activated`, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*account.Account, error) {
	return s.queryOne(ctx, fmt.Sprintf(selectAccountWithRoles, `a.id = $1`), id)
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*account.Account, error) {
	return s.queryOne(ctx, selectAccount+`a.username = $1`, strings.ToLower(username))
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	if strings.TrimSpace(email) == "" {
		return nil, apperr.ErrNotFound
	}
	return s.queryOne(ctx, selectAccount+`lower(a.email) = lower($1)`, email)
}

func (s *Store) FindByActivationKey(ctx context.Context, key string) (*account.Account, error) {
	if key == "" {
		return nil, apperr.ErrNotFound
	}
	return s.queryOne(ctx, selectAccount+`a.activation_key = $1`, key)
}

func (s *Store) FindByResetKey(ctx context.Context, key string) (*account.Account, error) {
	if key == "" {
		return nil, apperr.ErrNotFound
	}
	return s.queryOne(ctx, selectAccount+`a.reset_key = $1`, key)
}

func (s *Store) FindWithRolesByUsername(ctx context.Context, username string) (*account.Account, error) {
	return s.queryOne(ctx, fmt.Sprintf(selectAccountWithRoles, `a.username = $1`), strings.ToLower(username))
}

func (s *Store) FindWithRolesByEmail(ctx context.Context, email string) (*account.Account, error) {
	if strings.TrimSpace(email) == "" {
		return nil, apperr.ErrNotFound
	}
	return s.queryOne(ctx, fmt.Sprintf(selectAccountWithRoles, `lower(a.email) = lower($1)`), email)
}

func (s *Store) FindStaleRegistrations(ctx context.Context, createdBefore time.Time) ([]account.Account, error) {
	return s.queryMany(ctx, selectAccount+`not a.activated and a.activation_key is not null and a.created_at < $1 order by a.id`,
		createdBefore.UTC())
}

func (s *Store) List(ctx context.Context, page account.Page) ([]account.Account, int, error) {
	return s.list(ctx, `true`, page)
}

func (s *Store) ListActivated(ctx context.Context, page account.Page) ([]account.Account, int, error) {
	return s.list(ctx, `a.activated`, page)
}

func (s *Store) list(ctx context.Context, where string, page account.Page) ([]account.Account, int, error) {
	page = page.Normalize()
	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from accounts a where `+where).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}
	items, err := s.queryMany(ctx,
		fmt.Sprintf(selectAccountWithRoles, where)+` order by a.id limit $1 offset $2`,
		page.Limit, page.Offset)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []account.Account{}
	}
	return items, total, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `select count(*) from accounts`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) EnsureRole(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperr.New(apperr.KindInvalidInput, "role name is required")
	}
	_, err := s.db.ExecContext(ctx, `insert into roles (name) values ($1) on conflict do nothing`, name)
	return err
}

func (s *Store) Roles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `select name from roles order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) AssignRoles(ctx context.Context, accountID string, roles []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, `select 1 from accounts where id = $1 for update`, accountID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	if err != nil {
		return err
	}
	if _, err := assignRoles(ctx, tx, accountID, roles); err != nil {
		return err
	}
	return tx.Commit()
}
