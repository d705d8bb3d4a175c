package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"snackloader/internal/heatindex"
	"snackloader/internal/model"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type feedRequest struct {
	Amount int `json:"amount"`
}

type feedResponse struct {
	Outcome        model.OutcomeKind `json:"outcome"`
	Pet            model.Pet         `json:"pet"`
	AmountGrams    int               `json:"amountGrams"`
	RequestedGrams int               `json:"requestedGrams"`
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if vars["deviceID"] != s.deviceID {
		writeError(w, http.StatusNotFound, "unknown device")
		return
	}
	pet, err := model.ParsePet(vars["pet"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req feedRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := s.svc.Feeder.Execute(r.Context(), pet, req.Amount, model.SourceManual)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feedResponse{
		Outcome:        o.Kind,
		Pet:            o.Pet,
		AmountGrams:    o.AmountGrams,
		RequestedGrams: o.RequestedGrams,
	})
}

type petStatus struct {
	BowlWeightGrams float64    `json:"bowlWeightGrams"`
	DispatchStatus  string     `json:"dispatchStatus,omitempty"`
	LastFedAt       *time.Time `json:"lastFedAt,omitempty"`
	LastFed         string     `json:"lastFed,omitempty"`
	LastAmountGrams int        `json:"lastAmountGrams,omitempty"`
}

type statusResponse struct {
	DeviceID          string                  `json:"deviceId"`
	TemperatureC      *float64                `json:"temperature"`
	HumidityPct       *float64                `json:"humidity"`
	THI               *float64                `json:"thi"`
	Band              string                  `json:"band,omitempty"`
	AdaptationEnabled bool                    `json:"tempAdapt"`
	AutoFeedEnabled   *bool                   `json:"autoFeedEnabled"`
	Pets              map[model.Pet]petStatus `json:"pets"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if mux.Vars(r)["deviceID"] != s.deviceID {
		writeError(w, http.StatusNotFound, "unknown device")
		return
	}
	snap := s.svc.Live.Snapshot()
	now := time.Now()

	resp := statusResponse{
		DeviceID:          s.deviceID,
		TemperatureC:      snap.Environment.TemperatureC,
		HumidityPct:       snap.Environment.HumidityPct,
		AdaptationEnabled: snap.AdaptationEnabled,
		Pets:              make(map[model.Pet]petStatus, len(model.Pets)),
	}
	if thi, ok := heatindex.Index(snap.Environment); ok {
		resp.THI = &thi
		resp.Band = heatindex.Classify(thi).String()
	}
	if snap.Settings != nil {
		enabled := snap.Settings.AutoFeedEnabled
		resp.AutoFeedEnabled = &enabled
	}
	for _, pet := range model.Pets {
		d := snap.Dispatch[pet]
		ps := petStatus{
			BowlWeightGrams: snap.BowlWeights[pet],
			DispatchStatus:  d.Status,
		}
		if at := d.LastFedAt(); at != nil {
			ps.LastFedAt = at
			ps.LastFed = humanize.RelTime(*at, now, "ago", "from now")
			ps.LastAmountGrams = d.AmountGrams
		}
		resp.Pets[pet] = ps
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cur, err := s.svc.Settings.GetOrDefault(r.Context(), s.userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cur)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req model.FeederSettings
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.UserID = s.userID

	saved, err := s.svc.Settings.Save(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

type autoFeedRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleAutoFeed(w http.ResponseWriter, r *http.Request) {
	var req autoFeedRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	saved, err := s.svc.Settings.SetAutoFeed(r.Context(), s.userID, req.Enabled)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	pet, err := model.ParsePet(mux.Vars(r)["pet"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var entry model.ScheduleEntry
	if err := decodeBody(w, r, &entry); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	saved, err := s.svc.Settings.AddEntry(r.Context(), s.userID, pet, entry)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleRemoveEntry(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pet, err := model.ParsePet(vars["pet"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid index")
		return
	}
	saved, err := s.svc.Settings.RemoveEntry(r.Context(), s.userID, pet, index)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

type intakeRow struct {
	Pet                    model.Pet `json:"pet"`
	TotalDispensedGrams    int       `json:"totalDispensed"`
	CurrentBowlWeightGrams float64   `json:"currentBowlWeight"`
	CalculatedIntakeGrams  float64   `json:"calculatedIntake"`
	LastUpdated            time.Time `json:"lastUpdated"`
}

type intakeResponse struct {
	Date string      `json:"date"`
	Pets []intakeRow `json:"pets"`
}

func (s *Server) handleIntake(w http.ResponseWriter, r *http.Request) {
	date := mux.Vars(r)["date"]
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, use YYYY-MM-DD")
		return
	}
	rows, err := s.svc.Intake.Day(r.Context(), date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := intakeResponse{Date: date, Pets: make([]intakeRow, 0, len(rows))}
	for _, row := range rows {
		resp.Pets = append(resp.Pets, intakeRow{
			Pet:                    row.Pet,
			TotalDispensedGrams:    row.TotalDispensedGrams,
			CurrentBowlWeightGrams: row.CurrentBowlWeightGrams,
			CalculatedIntakeGrams:  row.CalculatedIntakeGrams,
			LastUpdated:            row.LastUpdated,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type historyItem struct {
	ID             string            `json:"id"`
	Pet            model.Pet         `json:"pet"`
	Source         model.Source      `json:"source"`
	Outcome        model.OutcomeKind `json:"outcome"`
	RequestedGrams int               `json:"requestedGrams"`
	DispensedGrams int               `json:"dispensedGrams"`
	CreatedAt      time.Time         `json:"createdAt"`
	Ago            string            `json:"ago"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}
	events, err := s.svc.History.ListFeedEvents(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	now := time.Now()
	items := make([]historyItem, 0, len(events))
	for _, e := range events {
		items = append(items, historyItem{
			ID:             e.ID,
			Pet:            e.Pet,
			Source:         e.Source,
			Outcome:        e.Outcome,
			RequestedGrams: e.RequestedGrams,
			DispensedGrams: e.DispensedGrams,
			CreatedAt:      e.CreatedAt,
			Ago:            humanize.RelTime(e.CreatedAt, now, "ago", "from now"),
		})
	}
	writeJSON(w, http.StatusOK, items)
}
