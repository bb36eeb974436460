// Copyright 2025 Certen Protocol
//
// capverifyd exposes bundle verification and registry lookup over HTTP.
// Per Whitepaper Section 3.4.1: a thin transport in front of the core
// verification kernel, carrying no policy or proof logic of its own.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/capengine/cap-core/internal/config"
	"github.com/capengine/cap-core/internal/pkgverifier"
	"github.com/capengine/cap-core/internal/registry"
)

func main() {
	logger := log.New(os.Stdout, "[capverifyd] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	backend, err := openRegistryBackend(cfg)
	if err != nil {
		logger.Fatalf("open registry backend: %v", err)
	}
	defer backend.Close()

	handlers := &VerifyHandlers{registry: backend, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/verify", handlers.HandleVerify)
	mux.HandleFunc("/api/v1/registry", handlers.HandleRegistryLookup)
	mux.HandleFunc("/healthz", handlers.HandleHealth)

	logger.Printf("listening on %s", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}

func openRegistryBackend(cfg *config.Config) (registry.Backend, error) {
	if cfg.RegistryBackend == "json" {
		return registry.NewJSONBackend("default", cfg.RegistryPath)
	}
	return registry.NewSQLiteBackend(cfg.RegistryPath)
}

// VerifyHandlers provides the HTTP handlers for bundle verification and
// registry lookup.
type VerifyHandlers struct {
	registry registry.Backend
	logger   *log.Logger
}

type verifyRequest struct {
	BundleDir      string `json:"bundle_dir"`
	PolicyHash     string `json:"policy_hash"`
	PolicyID       string `json:"policy_id"`
	Backend        string `json:"backend"`
	CheckSignature bool   `json:"check_signature"`
	CheckTimestamp bool   `json:"check_timestamp"`
	CheckRegistry  bool   `json:"check_registry"`
}

// HandleVerify handles POST /api/v1/verify.
func (h *VerifyHandlers) HandleVerify(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.BundleDir == "" {
		writeJSONError(w, "bundle_dir is required", http.StatusBadRequest)
		return
	}

	results, err := pkgverifier.VerifyBundle(req.BundleDir, pkgverifier.VerifyOptions{
		PolicyHash:     req.PolicyHash,
		PolicyID:       req.PolicyID,
		Backend:        req.Backend,
		CheckSignature: req.CheckSignature,
		CheckTimestamp: req.CheckTimestamp,
		CheckRegistry:  req.CheckRegistry,
	})
	if err != nil {
		h.logger.Printf("verify %s failed: %v", req.BundleDir, err)
		writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	json.NewEncoder(w).Encode(results)
}

// HandleRegistryLookup handles GET /api/v1/registry?manifest_hash=...&proof_hash=...
func (h *VerifyHandlers) HandleRegistryLookup(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	manifestHash := r.URL.Query().Get("manifest_hash")
	proofHash := r.URL.Query().Get("proof_hash")

	entries, err := h.registry.FindByHashes(manifestHash, proofHash)
	if err != nil {
		h.logger.Printf("registry lookup failed: %v", err)
		writeJSONError(w, "registry lookup failed", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(entries)
}

// HandleHealth handles GET /healthz.
func (h *VerifyHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
