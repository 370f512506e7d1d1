package tracking

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/medtrack/adherence/pkg/types"
)

// setupRoutes configures HTTP routes for the tracking service
func (s *Service) setupRoutes(router *mux.Router) {
	if s.metrics != nil {
		router.Use(s.metrics.HTTPMiddleware)
		router.Handle(s.config.Monitoring.MetricsPath, s.metrics.Handler()).Methods("GET")
	}
	router.HandleFunc(s.config.Monitoring.HealthPath, s.health.HTTPHandler()).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	if s.config.Auth.Enabled {
		api.Use(s.authMiddleware)
	}

	// Schedule routes
	api.HandleFunc("/schedules", s.addScheduleHandler).Methods("POST")
	api.HandleFunc("/schedules", s.getSchedulesHandler).Methods("GET")
	api.HandleFunc("/schedules/{id}", s.updateScheduleHandler).Methods("PUT")
	api.HandleFunc("/schedules/{id}", s.deleteScheduleHandler).Methods("DELETE")
	api.HandleFunc("/schedules/{id}/next", s.nextOccurrenceHandler).Methods("GET")

	// Dose routes
	api.HandleFunc("/doses", s.recordDoseHandler).Methods("POST")
	api.HandleFunc("/doses", s.getDosesHandler).Methods("GET")
	api.HandleFunc("/doses/{id}", s.updateDoseHandler).Methods("PUT")
	api.HandleFunc("/doses/{id}", s.deleteDoseHandler).Methods("DELETE")

	// Projection routes
	api.HandleFunc("/today", s.todayHandler).Methods("GET")
	api.HandleFunc("/upcoming", s.upcomingHandler).Methods("GET")

	// Adherence routes
	api.HandleFunc("/medicines/{id}/adherence", s.adherenceHandler).Methods("GET")

	// State routes
	api.HandleFunc("/refresh", s.refreshHandler).Methods("POST")
	api.HandleFunc("/state", s.stateHandler).Methods("GET")

	s.logger.Info("Tracking service routes configured")
}

// addScheduleHandler handles schedule creation
func (s *Service) addScheduleHandler(w http.ResponseWriter, r *http.Request) {
	var schedule types.ScheduleDefinition
	if err := json.NewDecoder(r.Body).Decode(&schedule); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	created, err := s.AddSchedule(&schedule)
	if err != nil {
		s.writeErrorResponse(w, statusForError(err), "Failed to add schedule", err)
		return
	}

	s.writeJSONResponse(w, http.StatusCreated, created)
}

// getSchedulesHandler handles schedule listing
func (s *Service) getSchedulesHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, s.Schedules())
}

// updateScheduleHandler handles schedule updates
func (s *Service) updateScheduleHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var updates types.ScheduleUpdates
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	updated, err := s.UpdateSchedule(vars["id"], &updates)
	if err != nil {
		s.writeErrorResponse(w, statusForError(err), "Failed to update schedule", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, updated)
}

// deleteScheduleHandler handles schedule deletion with dose cascade
func (s *Service) deleteScheduleHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := s.DeleteSchedule(vars["id"]); err != nil {
		s.writeErrorResponse(w, statusForError(err), "Failed to delete schedule", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]string{"message": "Schedule deleted"})
}

// nextOccurrenceHandler returns a schedule's next due moment
func (s *Service) nextOccurrenceHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	next, err := s.NextOccurrence(vars["id"])
	if err != nil {
		s.writeErrorResponse(w, statusForError(err), "Failed to get next occurrence", err)
		return
	}
	if next == nil {
		s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"next": nil})
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"next": next})
}

// recordDoseHandler handles dose recording
func (s *Service) recordDoseHandler(w http.ResponseWriter, r *http.Request) {
	var dose types.DoseEvent
	if err := json.NewDecoder(r.Body).Decode(&dose); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	created, err := s.RecordDose(&dose)
	if err != nil {
		s.writeErrorResponse(w, statusForError(err), "Failed to record dose", err)
		return
	}

	s.writeJSONResponse(w, http.StatusCreated, created)
}

// getDosesHandler handles dose event listing
func (s *Service) getDosesHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, s.DoseEvents())
}

// updateDoseHandler handles dose event updates
func (s *Service) updateDoseHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var updates types.DoseUpdates
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	updated, err := s.UpdateDose(vars["id"], &updates)
	if err != nil {
		s.writeErrorResponse(w, statusForError(err), "Failed to update dose", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, updated)
}

// deleteDoseHandler handles dose event deletion
func (s *Service) deleteDoseHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := s.DeleteDose(vars["id"]); err != nil {
		s.writeErrorResponse(w, statusForError(err), "Failed to delete dose", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]string{"message": "Dose deleted"})
}

// todayHandler returns today's matched occurrences
func (s *Service) todayHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, s.TodayOccurrences())
}

// upcomingHandler returns the upcoming occurrences projection
func (s *Service) upcomingHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, s.UpcomingOccurrences())
}

// adherenceHandler computes an adherence report for a medicine
func (s *Service) adherenceHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, "Invalid days parameter", err)
			return
		}
		days = parsed
	}

	report, err := s.Adherence(vars["id"], days)
	if err != nil {
		s.writeErrorResponse(w, statusForError(err), "Failed to compute adherence", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, report)
}

// refreshHandler forces a full reload and recompute
func (s *Service) refreshHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.RefreshAll(); err != nil {
		s.writeErrorResponse(w, http.StatusServiceUnavailable, "Refresh failed", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]string{"message": "Refreshed"})
}

// stateHandler reports the coordinator's observable state
func (s *Service) stateHandler(w http.ResponseWriter, r *http.Request) {
	state := map[string]interface{}{
		"is_loading": s.IsLoading(),
		"schedules":  len(s.Schedules()),
		"doses":      len(s.DoseEvents()),
	}
	if err := s.LastError(); err != nil {
		state["last_error"] = err.Error()
	}

	s.writeJSONResponse(w, http.StatusOK, state)
}

// statusForError maps structured errors onto HTTP status codes
func statusForError(err error) int {
	var te *types.TrackError
	if errors.As(err, &te) {
		switch te.Type {
		case types.ErrorTypeValidation:
			return http.StatusBadRequest
		case types.ErrorTypeNotFound:
			return http.StatusNotFound
		case types.ErrorTypePersistence:
			return http.StatusServiceUnavailable
		}
	}
	return http.StatusInternalServerError
}

// writeJSONResponse writes a JSON response
func (s *Service) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (s *Service) writeErrorResponse(w http.ResponseWriter, statusCode int, message string, err error) {
	s.logger.WithError(err).Warn(message)

	response := map[string]interface{}{
		"error":  message,
		"status": statusCode,
	}
	if err != nil {
		response["details"] = err.Error()
	}

	s.writeJSONResponse(w, statusCode, response)
}
