package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ayoubbns/vinscan/internal/domain"
)

// ErrSeedAdmin is returned when a caller tries to delete the seed
// administrator, which must always exist.
var ErrSeedAdmin = errors.New("the seed administrator cannot be deleted")

type OperatorStore struct {
	db *sql.DB
}

func NewOperatorStore(db *sql.DB) *OperatorStore {
	return &OperatorStore{db: db}
}

const operatorColumns = `id, username, secret, name, role, avatar,
	perm_dashboard, perm_scanner, perm_history, perm_chat,
	perm_config_global, perm_config_company, perm_config_locations, perm_config_users`

// Create inserts a new operator. The username is case-folded for lookup;
// the caller provides the already-encoded secret.
func (s *OperatorStore) Create(ctx context.Context, op *domain.Operator) (*domain.Operator, error) {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.Avatar == "" {
		op.Avatar = "default"
	}
	username := strings.ToLower(strings.TrimSpace(op.Username))
	p := op.Permissions

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operators (`+operatorColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		op.ID, username, op.Secret, op.Name, string(op.Role), op.Avatar,
		p.Dashboard, p.Scanner, p.History, p.Chat,
		p.ConfigGlobal, p.ConfigCompany, p.ConfigLocations, p.ConfigUsers,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operator: %w", err)
	}
	return s.GetByID(ctx, op.ID)
}

func (s *OperatorStore) GetByID(ctx context.Context, id string) (*domain.Operator, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+operatorColumns+` FROM operators WHERE id = ?`, id)
	return scanOperator(row)
}

// GetByUsername looks an operator up by case-folded username.
func (s *OperatorStore) GetByUsername(ctx context.Context, username string) (*domain.Operator, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+operatorColumns+` FROM operators WHERE username = ?
	`, strings.ToLower(strings.TrimSpace(username)))
	return scanOperator(row)
}

func (s *OperatorStore) List(ctx context.Context) ([]*domain.Operator, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+operatorColumns+` FROM operators ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list operators: %w", err)
	}
	defer rows.Close()

	var operators []*domain.Operator
	for rows.Next() {
		op, err := scanOperator(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operator: %w", err)
		}
		operators = append(operators, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operators: %w", err)
	}
	return operators, nil
}

// Delete removes an operator. Deleting the seed administrator is rejected
// regardless of who asks.
func (s *OperatorStore) Delete(ctx context.Context, id string) error {
	if id == domain.SeedAdminID {
		return ErrSeedAdmin
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM operators WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete operator: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanOperator(row rowScanner) (*domain.Operator, error) {
	op := &domain.Operator{}
	var role string
	p := &op.Permissions
	err := row.Scan(
		&op.ID, &op.Username, &op.Secret, &op.Name, &role, &op.Avatar,
		&p.Dashboard, &p.Scanner, &p.History, &p.Chat,
		&p.ConfigGlobal, &p.ConfigCompany, &p.ConfigLocations, &p.ConfigUsers,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operator: %w", err)
	}
	op.Role = domain.Role(role)
	return op, nil
}
