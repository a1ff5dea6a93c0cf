package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/nstogner/roster/pkg/domain"
	"github.com/nstogner/roster/pkg/store"
)

// Store implements store.UserStore using SQLite.
type Store struct {
	db *sql.DB
}

// Verify interface compliance at compile time.
var _ store.UserStore = (*Store)(nil)

// New opens (or creates) a SQLite database at the given path and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL COLLATE NOCASE UNIQUE,
		phone TEXT NOT NULL DEFAULT '',
		age INTEGER CHECK (age IS NULL OR age >= 0),
		address TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		department TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_users_name ON users(name COLLATE NOCASE);
	CREATE INDEX IF NOT EXISTS idx_users_role ON users(role COLLATE NOCASE);
	CREATE INDEX IF NOT EXISTS idx_users_department ON users(department COLLATE NOCASE);
	`
	_, err := s.db.Exec(schema)
	return err
}

const userColumns = `id, name, email, phone, age, address, role, department, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*domain.User, error) {
	u := &domain.User{}
	var age sql.NullInt64
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &age, &u.Address,
		&u.Role, &u.Department, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if age.Valid {
		a := int(age.Int64)
		u.Age = &a
	}
	return u, nil
}

func (s *Store) queryUsers(ctx context.Context, query string, args ...any) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *Store) Get(ctx context.Context, id string) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return u, err
}

func (s *Store) Find(ctx context.Context, p store.Predicate) ([]domain.User, error) {
	if email := strings.TrimSpace(p.Email); email != "" {
		return s.queryUsers(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE
			 ORDER BY name COLLATE NOCASE, id`, email)
	}
	return s.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(name) LIKE ? ESCAPE '\'
		 ORDER BY name COLLATE NOCASE, id`, containsPattern(p.NameContains))
}

var sortColumns = map[domain.SortField]string{
	domain.SortByName:       "name COLLATE NOCASE",
	domain.SortByEmail:      "email COLLATE NOCASE",
	domain.SortByAge:        "age",
	domain.SortByRole:       "role COLLATE NOCASE",
	domain.SortByDepartment: "department COLLATE NOCASE",
	domain.SortByCreatedAt:  "created_at",
}

func (s *Store) List(ctx context.Context, f domain.FilterSpec) ([]domain.User, error) {
	var where []string
	var args []any

	if f.Name != "" {
		where = append(where, `LOWER(name) LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(f.Name))
	}
	if f.Email != "" {
		where = append(where, `LOWER(email) LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(f.Email))
	}
	if f.Phone != "" {
		where = append(where, `REPLACE(REPLACE(REPLACE(REPLACE(phone, ' ', ''), '-', ''), '(', ''), ')', '') LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(phoneDigits(f.Phone)))
	}
	if clause, vals := inClause("role", f.Role); clause != "" {
		where = append(where, clause)
		args = append(args, vals...)
	}
	if clause, vals := inClause("department", f.Department); clause != "" {
		where = append(where, clause)
		args = append(args, vals...)
	}
	if n, err := strconv.Atoi(f.MinAge); err == nil {
		where = append(where, "age >= ?")
		args = append(args, n)
	}
	if n, err := strconv.Atoi(f.MaxAge); err == nil {
		where = append(where, "age <= ?")
		args = append(args, n)
	}

	query := `SELECT ` + userColumns + ` FROM users`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	sortBy := f.SortBy
	if !sortBy.Valid() {
		sortBy = domain.SortByCreatedAt
	}
	order := f.SortOrder
	if order != domain.SortAsc && order != domain.SortDesc {
		order = sortBy.DefaultOrder()
	}
	dir := strings.ToUpper(string(order))
	query += fmt.Sprintf(" ORDER BY %s %s, rowid %s", sortColumns[sortBy], dir, dir)

	return s.queryUsers(ctx, query, args...)
}

func (s *Store) Insert(ctx context.Context, fields domain.UserFields) (*domain.User, error) {
	if err := store.Validate(fields, true); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	u := &domain.User{
		ID:         uuid.New().String(),
		Name:       strings.TrimSpace(*fields.Name),
		Email:      strings.TrimSpace(*fields.Email),
		Phone:      deref(fields.Phone),
		Age:        fields.Age,
		Address:    deref(fields.Address),
		Role:       deref(fields.Role),
		Department: deref(fields.Department),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.Phone, nullAge(u.Age), u.Address, u.Role, u.Department,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return nil, mapWriteErr(err, u.Email)
	}
	return u, nil
}

func (s *Store) UpdateByID(ctx context.Context, id string, fields domain.UserFields) (*domain.User, error) {
	if err := store.Validate(fields, false); err != nil {
		return nil, err
	}

	var sets []string
	var args []any
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if fields.Name != nil {
		set("name", strings.TrimSpace(*fields.Name))
	}
	if fields.Email != nil {
		set("email", strings.TrimSpace(*fields.Email))
	}
	if fields.Phone != nil {
		set("phone", *fields.Phone)
	}
	if fields.Age != nil {
		set("age", *fields.Age)
	}
	if fields.Address != nil {
		set("address", *fields.Address)
	}
	if fields.Role != nil {
		set("role", *fields.Role)
	}
	if fields.Department != nil {
		set("department", *fields.Department)
	}
	set("updated_at", time.Now().UTC())
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, mapWriteErr(err, deref(fields.Email))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return s.Get(ctx, id)
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) Distinct(ctx context.Context, field store.Field) ([]string, error) {
	var col string
	switch field {
	case store.FieldRole:
		col = "role"
	case store.FieldDepartment:
		col = "department"
	default:
		return nil, fmt.Errorf("%w: cannot enumerate field %q", domain.ErrInvalidInput, field)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT MIN(%[1]s) FROM users WHERE TRIM(%[1]s) <> '' GROUP BY LOWER(%[1]s) ORDER BY LOWER(%[1]s)`, col))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func mapWriteErr(err error, email string) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("email %q already in use: %w", email, domain.ErrDuplicate)
	}
	return err
}

func inClause(col string, values domain.Set) (string, []any) {
	if len(values) == 0 {
		return "", nil
	}
	marks := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		marks[i] = "?"
		args[i] = strings.ToLower(v)
	}
	return fmt.Sprintf("LOWER(%s) IN (%s)", col, strings.Join(marks, ", ")), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(s))) + "%"
}

func phoneDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' || r == '+' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return s
	}
	return b.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullAge(age *int) any {
	if age == nil {
		return nil
	}
	return *age
}
