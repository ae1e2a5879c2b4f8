/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"assetflow/internal/bootstrap"
	"assetflow/internal/bootstrap/logging"
	"assetflow/internal/domain/check"
	"assetflow/internal/errs"
	"assetflow/internal/ports"
	"assetflow/internal/usecase/orchestrate"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for event log and check queries",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *orchestrate.Service) error {
		ctx := cmd.Context()

		addr, _ := cmd.Flags().GetString("addr")
		addr = strings.TrimSpace(addr)
		if addr == "" {
			addr = app.Config.Server.Addr
		}

		server := &http.Server{
			Addr:    addr,
			Handler: newAPIHandler(svc),
		}

		logging.Info(ctx, "api server started", slog.String("addr", addr))

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(ctx, "api server failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "serve api")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (defaults to server.addr from config)")
}

type apiErrorResponse struct {
	Error string `json:"error"`
}

type apiEventResponse struct {
	StorageID uint64 `json:"storage_id"`
	RunID     string `json:"run_id"`
	Type      string `json:"type"`
	AssetKey  string `json:"asset_key"`
	CheckName string `json:"check_name,omitempty"`
	Passed    *bool  `json:"passed,omitempty"`
	Severity  string `json:"severity,omitempty"`
	Metadata  string `json:"metadata,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

type apiEvaluationResponse struct {
	Key       string         `json:"key"`
	Passed    bool           `json:"passed"`
	Severity  string         `json:"severity"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	TargetRun string         `json:"target_run,omitempty"`
}

func newAPIHandler(svc *orchestrate.Service) http.Handler {
	h := &apiHandler{svc: svc}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/api/events", h.handleEvents)
	r.Get("/api/checks/history", h.handleCheckHistory)
	r.Get("/api/checks/status", h.handleCheckStatus)
	return r
}

type apiHandler struct {
	svc *orchestrate.Service
}

func (h *apiHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 100
	}

	records, err := h.svc.ListEvents(r.Context(), ports.EventFilter{
		Type:      ports.EventType(query.Get("type")),
		AssetKey:  query.Get("asset"),
		CheckName: query.Get("check"),
		RunID:     query.Get("run"),
		Limit:     limit,
	})
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	items := make([]apiEventResponse, 0, len(records))
	for _, record := range records {
		items = append(items, apiEventResponse{
			StorageID: record.StorageID,
			RunID:     record.RunID,
			Type:      string(record.Type),
			AssetKey:  record.AssetKey,
			CheckName: record.CheckName,
			Passed:    record.Passed,
			Severity:  record.Severity,
			Metadata:  record.MetadataJSON,
			Message:   record.Message,
			Timestamp: record.Timestamp,
		})
	}
	writeAPIJSON(w, http.StatusOK, items)
}

func (h *apiHandler) handleCheckHistory(w http.ResponseWriter, r *http.Request) {
	key, ok := checkKeyFromQuery(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}

	evals, err := h.svc.CheckHistory(r.Context(), key, limit)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	items := make([]apiEvaluationResponse, 0, len(evals))
	for _, eval := range evals {
		item := apiEvaluationResponse{
			Key:      eval.Key.String(),
			Passed:   eval.Passed,
			Severity: string(eval.Severity),
			Metadata: eval.Metadata,
		}
		if eval.TargetMaterialization != nil {
			item.TargetRun = eval.TargetMaterialization.RunID
		}
		items = append(items, item)
	}
	writeAPIJSON(w, http.StatusOK, items)
}

func (h *apiHandler) handleCheckStatus(w http.ResponseWriter, r *http.Request) {
	key, ok := checkKeyFromQuery(w, r)
	if !ok {
		return
	}

	status, found, err := h.svc.CachedCheckStatus(r.Context(), key)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		status = "unknown"
	}

	writeAPIJSON(w, http.StatusOK, map[string]string{
		"key":    key.String(),
		"status": status,
	})
}

// checkKeyFromQuery parses the asset and name query parameters. Asset keys
// may contain "/" segments, so they travel as a query parameter instead of
// a path element.
func checkKeyFromQuery(w http.ResponseWriter, r *http.Request) (check.Key, bool) {
	query := r.URL.Query()

	asset, err := check.ParseAssetKey(query.Get("asset"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return check.Key{}, false
	}
	name := strings.TrimSpace(query.Get("name"))
	if name == "" {
		writeAPIError(w, http.StatusBadRequest, "name is required")
		return check.Key{}, false
	}
	return check.NewKey(asset, name), true
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	writeAPIJSON(w, status, apiErrorResponse{Error: message})
}

func writeAPIJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
