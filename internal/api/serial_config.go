package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/mmwave.report/internal/db"
	"github.com/banshee-data/mmwave.report/internal/httputil"
	"github.com/banshee-data/mmwave.report/internal/mmwave/cfg"
	"github.com/banshee-data/mmwave.report/internal/monitoring"
)

// SerialConfigRequest is the body for creating or updating a stored port pair.
type SerialConfigRequest struct {
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
}

// validate checks the request and fills defaults. It returns a message for
// the client on failure.
func (req *SerialConfigRequest) validate() string {
	if req.Name == "" {
		return "Name is required"
	}
	dev, err := cfg.LookupDevice(req.Device)
	if err != nil {
		return fmt.Sprintf("Unsupported device: %s", req.Device)
	}
	req.Device = dev.Name
	if req.CLIPort == "" {
		return "CLI port is required"
	}
	if !isValidPortPath(req.CLIPort) {
		return "Invalid CLI port. Must start with /dev/tty or /dev/serial"
	}
	if dev.SingleCOM {
		req.DataPort = ""
	} else {
		if req.DataPort == "" {
			return fmt.Sprintf("Data port is required for %s", dev.Name)
		}
		if !isValidPortPath(req.DataPort) {
			return "Invalid data port. Must start with /dev/tty or /dev/serial"
		}
	}
	if req.CfgPath != "" && !strings.HasSuffix(req.CfgPath, ".cfg") {
		return "cfg path must name a .cfg file"
	}

	if req.CLIBaudRate == 0 {
		req.CLIBaudRate = 115200
	}
	if req.DataBaudRate == 0 {
		req.DataBaudRate = 921600
		if dev.SingleCOM {
			req.DataBaudRate = req.CLIBaudRate
		}
	}
	if req.DataBits == 0 {
		req.DataBits = 8
	}
	if req.StopBits == 0 {
		req.StopBits = 1
	}
	if req.Parity == "" {
		req.Parity = "N"
	}
	return ""
}

func (req *SerialConfigRequest) record(id int) *db.SerialConfig {
	return &db.SerialConfig{
		ID:           id,
		Name:         req.Name,
		Device:       req.Device,
		CLIPort:      req.CLIPort,
		DataPort:     req.DataPort,
		CLIBaudRate:  req.CLIBaudRate,
		DataBaudRate: req.DataBaudRate,
		DataBits:     req.DataBits,
		StopBits:     req.StopBits,
		Parity:       req.Parity,
		CfgPath:      req.CfgPath,
		Enabled:      req.Enabled,
		Description:  req.Description,
	}
}

// handleSerialConfigsOrCreate handles GET and POST to /api/serial/configs
func (s *Server) handleSerialConfigsOrCreate(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.handleSerialConfigs(w, r)
	case http.MethodPost:
		s.handleCreateSerialConfig(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSerialConfigs(w http.ResponseWriter, r *http.Request) {
	var (
		configs []db.SerialConfig
		err     error
	)
	if r.URL.Query().Get("enabled") == "1" {
		configs, err = s.opts.DB.GetEnabledSerialConfigs()
	} else {
		configs, err = s.opts.DB.GetSerialConfigs()
	}
	if err != nil {
		monitoring.Logf("Error fetching serial configs: %v", err)
		http.Error(w, "Failed to fetch serial configurations", http.StatusInternalServerError)
		return
	}
	if configs == nil {
		configs = []db.SerialConfig{}
	}
	httputil.WriteJSON(w, http.StatusOK, configs)
}

// handleSerialConfigByID handles GET/PUT/DELETE /api/serial/configs/:id
func (s *Server) handleSerialConfigByID(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/serial/configs/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		http.Error(w, "Missing config ID", http.StatusBadRequest)
		return
	}
	id, err := strconv.Atoi(pathParts[0])
	if err != nil {
		http.Error(w, "Invalid config ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetSerialConfig(w, id)
	case http.MethodPut:
		s.handleUpdateSerialConfig(w, r, id)
	case http.MethodDelete:
		s.handleDeleteSerialConfig(w, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGetSerialConfig(w http.ResponseWriter, id int) {
	config, err := s.opts.DB.GetSerialConfig(id)
	if err != nil {
		monitoring.Logf("Error fetching serial config %d: %v", id, err)
		http.Error(w, "Failed to fetch serial configuration", http.StatusInternalServerError)
		return
	}
	if config == nil {
		http.Error(w, "Configuration not found", http.StatusNotFound)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, config)
}

func (s *Server) handleCreateSerialConfig(w http.ResponseWriter, r *http.Request) {
	var req SerialConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if msg := req.validate(); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	id, err := s.opts.DB.CreateSerialConfig(req.record(0))
	if err != nil {
		monitoring.Logf("Error creating serial config: %v", err)
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			http.Error(w, "Configuration with this name already exists", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to create serial configuration", http.StatusInternalServerError)
		return
	}

	created, err := s.opts.DB.GetSerialConfig(int(id))
	if err != nil {
		monitoring.Logf("Error fetching created config: %v", err)
		http.Error(w, "Configuration created but failed to fetch", http.StatusInternalServerError)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateSerialConfig(w http.ResponseWriter, r *http.Request, id int) {
	var req SerialConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if msg := req.validate(); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	if err := s.opts.DB.UpdateSerialConfig(req.record(id)); err != nil {
		monitoring.Logf("Error updating serial config %d: %v", id, err)
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, "Configuration not found", http.StatusNotFound)
			return
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			http.Error(w, "Configuration with this name already exists", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to update serial configuration", http.StatusInternalServerError)
		return
	}

	updated, err := s.opts.DB.GetSerialConfig(id)
	if err != nil {
		monitoring.Logf("Error fetching updated config: %v", err)
		http.Error(w, "Configuration updated but failed to fetch", http.StatusInternalServerError)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteSerialConfig(w http.ResponseWriter, id int) {
	if err := s.opts.DB.DeleteSerialConfig(id); err != nil {
		monitoring.Logf("Error deleting serial config %d: %v", id, err)
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, "Configuration not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to delete serial configuration", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// isValidPortPath accepts tty and by-id serial device paths.
func isValidPortPath(path string) bool {
	return strings.HasPrefix(path, "/dev/tty") || strings.HasPrefix(path, "/dev/serial") ||
		strings.HasPrefix(path, "/dev/cu.")
}
