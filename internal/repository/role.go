package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// RoleRepository is the read-mostly view of role assignments consumed to
// populate the roles claim in full-access tokens.
type RoleRepository interface {
	AssignRole(ctx context.Context, userID int64, roleName string) error
	GetRolesByUserID(ctx context.Context, userID int64) ([]string, error)
}

type roleRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func NewRoleRepository(db *sqlx.DB, log *logrus.Logger) RoleRepository {
	return &roleRepository{db: db, log: log}
}

func (r *roleRepository) AssignRole(ctx context.Context, userID int64, roleName string) error {
	query := `
		INSERT INTO user_roles (user_id, role_id)
		SELECT $1, id FROM roles WHERE name = $2
		ON CONFLICT DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, userID, roleName)
	return err
}

func (r *roleRepository) GetRolesByUserID(ctx context.Context, userID int64) ([]string, error) {
	roles := []string{}
	query := `
		SELECT r.name FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.name`
	if err := r.db.SelectContext(ctx, &roles, query, userID); err != nil {
		return nil, err
	}
	return roles, nil
}
