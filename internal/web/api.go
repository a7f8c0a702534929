// Package web provides the HTTP server for the engine's inspection
// surface. This file contains the JSON API endpoints.
package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cabewaldrop/pagestore/internal/sql/lexer"
	"github.com/cabewaldrop/pagestore/internal/sql/parser"
)

// APIResponse wraps all API responses with success/error info.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// TableListResponse contains the list of tables.
type TableListResponse struct {
	Tables []string `json:"tables"`
}

// ColumnInfo describes a single column in a table.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableSchemaResponse describes a table's structure.
type TableSchemaResponse struct {
	Name       string       `json:"name"`
	Columns    []ColumnInfo `json:"columns"`
	PrimaryKey string       `json:"primary_key"`
}

// QueryRequest is the body for POST /exec.
type QueryRequest struct {
	SQL string `json:"sql"`
}

// MessageResponse is the non-SELECT /exec body.
type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	hint := GetErrorHint(message)
	if hint != "" {
		message = message + " (" + hint + ")"
	}
	writeJSON(w, status, APIResponse{Success: false, Error: message})
}

// handleHealthz reports liveness without touching the engine.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("OK"))
}

// handleTables lists every user-visible table.
// GET /tables
func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	exec := GetExecutor(r)
	if exec == nil {
		writeError(w, http.StatusServiceUnavailable, "database not initialized")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tables := exec.Catalog().ListTables()
	writeSuccess(w, TableListResponse{Tables: tables})
}

// handleTableSchema returns the schema for a specific table.
// GET /tables/{name}/schema
func (s *Server) handleTableSchema(w http.ResponseWriter, r *http.Request) {
	exec := GetExecutor(r)
	if exec == nil {
		writeError(w, http.StatusServiceUnavailable, "database not initialized")
		return
	}

	tableName := chi.URLParam(r, "name")

	s.mu.Lock()
	defer s.mu.Unlock()

	tbl, ok := exec.Catalog().Tables[tableName]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("table %q not found", tableName))
		return
	}

	columns := make([]ColumnInfo, len(tbl.Schema.Names))
	for i, name := range tbl.Schema.Names {
		columns[i] = ColumnInfo{Name: name, Type: tbl.Schema.Fields[i].String()}
	}

	writeSuccess(w, TableSchemaResponse{
		Name:       tableName,
		Columns:    columns,
		PrimaryKey: tbl.Schema.Names[0],
	})
}

// handleExec parses and runs one SQL statement.
// POST /exec {"sql": "..."}
func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	exec := GetExecutor(r)
	if exec == nil {
		writeError(w, http.StatusServiceUnavailable, "database not initialized")
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SQL == "" {
		writeError(w, http.StatusBadRequest, "sql field is required")
		return
	}

	l := lexer.New(req.SQL)
	p := parser.New(l)
	stmt, err := p.Parse()
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("parse error: %v", err))
		return
	}

	s.mu.Lock()
	result, err := exec.Execute(stmt)
	s.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("execution error: %v", err))
		return
	}

	// §4.10/§6: SELECT returns the bare JSON array-of-arrays shape;
	// every other statement returns a bare {"message": "..."} object.
	// Neither is wrapped in APIResponse's success envelope.
	w.Header().Set("Content-Type", "application/json")
	if result.Columns != nil {
		w.Write([]byte(result.JSONRows()))
		return
	}
	json.NewEncoder(w).Encode(MessageResponse{Message: result.Message})
}
