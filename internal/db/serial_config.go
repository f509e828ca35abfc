package db

import (
	"database/sql"
	"fmt"
)

// SerialConfig is a stored CLI/data port pair for one sensor. Single-port
// devices leave DataPort empty.
type SerialConfig struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Device       string `json:"device"`
	CLIPort      string `json:"cli_port"`
	DataPort     string `json:"data_port"`
	CLIBaudRate  int    `json:"cli_baud_rate"`
	DataBaudRate int    `json:"data_baud_rate"`
	DataBits     int    `json:"data_bits"`
	StopBits     int    `json:"stop_bits"`
	Parity       string `json:"parity"`
	CfgPath      string `json:"cfg_path"`
	Enabled      bool   `json:"enabled"`
	Description  string `json:"description"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

const serialConfigColumns = `id, name, device, cli_port, data_port, cli_baud_rate, data_baud_rate,
	data_bits, stop_bits, parity, cfg_path, enabled, description, created_at, updated_at`

func scanSerialConfig(row rowScanner) (*SerialConfig, error) {
	var c SerialConfig
	var enabled int
	err := row.Scan(&c.ID, &c.Name, &c.Device, &c.CLIPort, &c.DataPort, &c.CLIBaudRate, &c.DataBaudRate,
		&c.DataBits, &c.StopBits, &c.Parity, &c.CfgPath, &enabled, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Enabled = enabled == 1
	return &c, nil
}

func (db *DB) querySerialConfigs(where string) ([]SerialConfig, error) {
	rows, err := db.Query(`SELECT ` + serialConfigColumns + ` FROM radar_serial_config ` + where + ` ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query serial configs: %w", err)
	}
	defer rows.Close()

	var configs []SerialConfig
	for rows.Next() {
		c, err := scanSerialConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan serial config: %w", err)
		}
		configs = append(configs, *c)
	}
	return configs, rows.Err()
}

// GetSerialConfigs returns all serial configurations
func (db *DB) GetSerialConfigs() ([]SerialConfig, error) {
	return db.querySerialConfigs("")
}

// GetEnabledSerialConfigs returns all enabled serial configurations
func (db *DB) GetEnabledSerialConfigs() ([]SerialConfig, error) {
	return db.querySerialConfigs("WHERE enabled = 1")
}

// GetSerialConfig returns a single serial configuration by ID, or nil.
func (db *DB) GetSerialConfig(id int) (*SerialConfig, error) {
	row := db.QueryRow(`SELECT `+serialConfigColumns+` FROM radar_serial_config WHERE id = ?`, id)
	c, err := scanSerialConfig(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get serial config: %w", err)
	}
	return c, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CreateSerialConfig creates a new serial configuration
func (db *DB) CreateSerialConfig(c *SerialConfig) (int64, error) {
	result, err := db.Exec(`INSERT INTO radar_serial_config (
			name, device, cli_port, data_port, cli_baud_rate, data_baud_rate,
			data_bits, stop_bits, parity, cfg_path, enabled, description
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.Device, c.CLIPort, c.DataPort, c.CLIBaudRate, c.DataBaudRate,
		c.DataBits, c.StopBits, c.Parity, c.CfgPath, boolInt(c.Enabled), c.Description)
	if err != nil {
		return 0, fmt.Errorf("failed to create serial config: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

// UpdateSerialConfig updates an existing serial configuration
func (db *DB) UpdateSerialConfig(c *SerialConfig) error {
	result, err := db.Exec(`UPDATE radar_serial_config
		SET name = ?, device = ?, cli_port = ?, data_port = ?, cli_baud_rate = ?, data_baud_rate = ?,
		    data_bits = ?, stop_bits = ?, parity = ?, cfg_path = ?, enabled = ?, description = ?
		WHERE id = ?`,
		c.Name, c.Device, c.CLIPort, c.DataPort, c.CLIBaudRate, c.DataBaudRate,
		c.DataBits, c.StopBits, c.Parity, c.CfgPath, boolInt(c.Enabled), c.Description, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update serial config: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("serial config with ID %d not found", c.ID)
	}
	return nil
}

// DeleteSerialConfig deletes a serial configuration
func (db *DB) DeleteSerialConfig(id int) error {
	result, err := db.Exec(`DELETE FROM radar_serial_config WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete serial config: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("serial config with ID %d not found", id)
	}
	return nil
}
