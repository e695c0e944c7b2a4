package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/railyard/railyard-api/internal/models"
	"github.com/railyard/railyard-api/internal/utils"
)

// ErrConnectionInUse is returned when deleting a connection that a job still
// references.
var ErrConnectionInUse = errors.New("connection is referenced by a job")

const connectionColumns = "id, name, data_format, host, port, username, password_enc, db_name, path, record_count, status, created_at, updated_at"

// ConnectionRepository stores source and target connections. Passwords are
// encrypted at rest; Get decrypts them for callers that open the connection,
// List leaves them empty.
type ConnectionRepository interface {
	List(ctx context.Context) ([]*models.Connection, error)
	Get(ctx context.Context, id string) (*models.Connection, error)
	Create(ctx context.Context, conn *models.Connection) (*models.Connection, error)
	Update(ctx context.Context, conn *models.Connection) (*models.Connection, error)
	Delete(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id, status string) error
}

type connectionRepository struct {
	db *sql.DB
}

func NewConnectionRepository(db *sql.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

func (r *connectionRepository) List(ctx context.Context) ([]*models.Connection, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+connectionColumns+" FROM connections ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var connections []*models.Connection
	for rows.Next() {
		conn, _, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		connections = append(connections, conn)
	}
	return connections, rows.Err()
}

func (r *connectionRepository) Get(ctx context.Context, id string) (*models.Connection, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+connectionColumns+" FROM connections WHERE id = $1", id)
	conn, enc, err := scanConnection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	if len(enc) > 0 {
		plain, err := utils.DecryptSecret(enc)
		if err != nil {
			return nil, errors.Wrap(err, "decrypt connection password")
		}
		conn.Password = plain
	}
	return conn, nil
}

func (r *connectionRepository) Create(ctx context.Context, conn *models.Connection) (*models.Connection, error) {
	conn.DataFormat = models.NormalizeDataFormat(conn.DataFormat)
	if conn.Status == "" {
		conn.Status = models.ConnectionStatusUntested
	}
	enc, err := encryptIfSet(conn.Password)
	if err != nil {
		return nil, err
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO connections (name, data_format, host, port, username, password_enc, db_name, path, record_count, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`,
		conn.Name, conn.DataFormat, conn.Host, conn.Port, conn.Username, enc, conn.DBName, conn.Path, conn.RecordCount, conn.Status,
	).Scan(&conn.ID, &conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (r *connectionRepository) Update(ctx context.Context, conn *models.Connection) (*models.Connection, error) {
	conn.DataFormat = models.NormalizeDataFormat(conn.DataFormat)
	// An empty password keeps the stored one.
	enc, err := encryptIfSet(conn.Password)
	if err != nil {
		return nil, err
	}
	err = r.db.QueryRowContext(ctx, `
		UPDATE connections
		SET name = $1, data_format = $2, host = $3, port = $4, username = $5,
		    password_enc = COALESCE($6, password_enc), db_name = $7, path = $8,
		    record_count = $9, status = $10, updated_at = NOW()
		WHERE id = $11
		RETURNING created_at, updated_at`,
		conn.Name, conn.DataFormat, conn.Host, conn.Port, conn.Username, enc, conn.DBName, conn.Path, conn.RecordCount, conn.Status, conn.ID,
	).Scan(&conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return conn, nil
}

func (r *connectionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM connections WHERE id = $1", id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return ErrConnectionInUse
		}
		return err
	}
	return nil
}

func (r *connectionRepository) SetStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE connections SET status = $1, updated_at = NOW() WHERE id = $2", status, id)
	return err
}

func encryptIfSet(password string) ([]byte, error) {
	if password == "" {
		return nil, nil
	}
	enc, err := utils.EncryptSecret(password)
	if err != nil {
		return nil, errors.Wrap(err, "encrypt connection password")
	}
	return enc, nil
}

func scanConnection(s scanner) (*models.Connection, []byte, error) {
	conn := &models.Connection{}
	var enc []byte
	if err := s.Scan(
		&conn.ID,
		&conn.Name,
		&conn.DataFormat,
		&conn.Host,
		&conn.Port,
		&conn.Username,
		&enc,
		&conn.DBName,
		&conn.Path,
		&conn.RecordCount,
		&conn.Status,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	); err != nil {
		return nil, nil, err
	}
	return conn, enc, nil
}
