package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	ConnectionStatusUntested = "untested"
	ConnectionStatusValid    = "valid"
	ConnectionStatusInvalid  = "invalid"
)

type Connection struct {
	ID         string `json:"id" db:"id"`
	Name       string `json:"name" db:"name"`
	DataFormat string `json:"data_format" db:"data_format"` // enum: postgres, mysql, csv, sim
	Host       string `json:"host,omitempty" db:"host"`
	Port       int    `json:"port,omitempty" db:"port"`
	Username   string `json:"username,omitempty" db:"username"`
	Password   string `json:"password,omitempty" db:"-"` // plaintext on input, stored encrypted
	DBName     string `json:"db_name,omitempty" db:"db_name"`
	Path       string `json:"path,omitempty" db:"path"` // file-backed formats
	// RecordCount is the declared data volume of the source; it drives the
	// workload size when no native driver exists for the format.
	RecordCount int64     `json:"record_count" db:"record_count"`
	Status      string    `json:"status" db:"status"` // enum: valid, invalid, untested
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// NormalizeDataFormat folds common aliases onto the canonical format names.
func NormalizeDataFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "pg", "postgres", "postgresql":
		return "postgres"
	case "mysql", "maria", "mariadb":
		return "mysql"
	case "csv", "file":
		return "csv"
	case "sim", "simulated":
		return "sim"
	default:
		return strings.ToLower(strings.TrimSpace(format))
	}
}

func (c *Connection) GenerateConnString() string {
	switch NormalizeDataFormat(c.DataFormat) {
	case "postgres":
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
			c.Username, c.Password, c.Host, c.Port, c.DBName)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
			c.Username, c.Password, c.Host, c.Port, c.DBName)
	case "csv":
		return fmt.Sprintf("file://%s", c.Path)
	case "sim":
		return fmt.Sprintf("sim://%s", c.Name)
	default:
		return fmt.Sprintf("unknown format: %s", c.DataFormat)
	}
}
