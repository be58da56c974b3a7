package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dbehnke/wlink-terminal/pkg/database"
	"github.com/dbehnke/wlink-terminal/pkg/logger"
	"github.com/dbehnke/wlink-terminal/pkg/protocol"
	"github.com/dbehnke/wlink-terminal/pkg/session"
)

// Controller is the radio surface the API drives. *session.Session
// implements it.
type Controller interface {
	Snapshot() session.Snapshot
	PowerOn()
	PowerOff()
	TogglePower()
	SetRID(rid string)
	SetModel(model string, flyingVehicle bool)
	SetRSSI(level int, site *protocol.Site, dbm float64)
	SetLocation(lat, long float64)
	PTTPress()
	PTTRelease()
	ChangeChannel(step int)
	ChangeZone(step int)
	ToggleScan()
	ActivateEmergency()
	SetSiteStatus(site protocol.Site, status int) error
	ResetBattery()
	VolumeUp()
	VolumeDown()
	CaptureAudio(samples []int16, rms float64)
}

var _ Controller = (*session.Session)(nil)

// Intent names accepted by POST /api/intent
const (
	IntentPowerOn     = "power_on"
	IntentPowerOff    = "power_off"
	IntentTogglePower = "toggle_power"
	IntentSetRID      = "set_rid"
	IntentSetModel    = "set_model"
	IntentSetRSSI     = "set_rssi"
	IntentSetLocation = "set_location"
	IntentPTTPress    = "ptt_press"
	IntentPTTRelease  = "ptt_release"
	IntentChannel     = "channel"
	IntentZone        = "zone"
	IntentScan        = "scan"
	IntentEmergency   = "emergency"
	IntentSiteStatus  = "site_status"
	IntentBattery     = "reset_battery"
	IntentVolumeUp    = "volume_up"
	IntentVolumeDown  = "volume_down"
)

// IntentRequest is the body of POST /api/intent. Only the fields the
// intent needs are read.
type IntentRequest struct {
	Intent        string         `json:"intent"`
	Step          int            `json:"step,omitempty"`
	RID           string         `json:"rid,omitempty"`
	Model         string         `json:"model,omitempty"`
	FlyingVehicle bool           `json:"flying_vehicle,omitempty"`
	Level         *int           `json:"level,omitempty"`
	DBM           float64        `json:"dbm,omitempty"`
	Site          *protocol.Site `json:"site,omitempty"`
	Lat           *float64       `json:"lat,omitempty"`
	Long          *float64       `json:"long,omitempty"`
	Status        int            `json:"status,omitempty"`
}

var errBadIntent = errors.New("bad intent")

// API handles REST API endpoints
type API struct {
	logger *logger.Logger
	radio  Controller
	calls  *database.CallRepository
	alerts *database.AlertRepository
}

// NewAPI creates a new API instance. The repositories may be nil when
// persistence is disabled.
func NewAPI(radio Controller, calls *database.CallRepository, alerts *database.AlertRepository, log *logger.Logger) *API {
	if log == nil {
		log = logger.Nop()
	}
	return &API{
		logger: log,
		radio:  radio,
		calls:  calls,
		alerts: alerts,
	}
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("Failed to encode response", logger.Error(err))
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, map[string]string{"error": msg})
}

func intParam(r *http.Request, name string, def, maxVal int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	if v > maxVal {
		return maxVal
	}
	return v
}

// HandleStatus handles the /api/status endpoint
func (a *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	info := GetVersionInfo()
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":  "wlink-terminal",
		"version":  info.Version,
		"commit":   info.Commit,
		"build":    info.Build,
		"terminal": a.radio.Snapshot(),
	})
}

// HandleCalls handles the /api/calls endpoint
func (a *API) HandleCalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.calls == nil {
		a.writeError(w, http.StatusServiceUnavailable, "call history is disabled")
		return
	}

	limit := intParam(r, "limit", 50, 500)
	var (
		calls []database.CallRecord
		total int64
		err   error
	)
	switch q := r.URL.Query(); {
	case q.Get("src") != "":
		calls, err = a.calls.GetBySource(q.Get("src"), limit)
		total = int64(len(calls))
	case q.Get("tg") != "":
		calls, err = a.calls.GetByTalkgroup(q.Get("tg"), limit)
		total = int64(len(calls))
	default:
		calls, total, err = a.calls.GetRecentPaginated(intParam(r, "page", 1, 1<<20), limit)
	}
	if err != nil {
		a.logger.Error("Failed to load calls", logger.Error(err))
		a.writeError(w, http.StatusInternalServerError, "failed to load calls")
		return
	}
	if calls == nil {
		calls = []database.CallRecord{}
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"calls": calls,
		"total": total,
	})
}

// HandleAlerts handles the /api/alerts endpoint
func (a *API) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.alerts == nil {
		a.writeError(w, http.StatusServiceUnavailable, "alert history is disabled")
		return
	}

	limit := intParam(r, "limit", 50, 500)
	var (
		alerts []database.AlertRecord
		err    error
	)
	if kind := r.URL.Query().Get("kind"); kind != "" {
		alerts, err = a.alerts.GetByKind(kind, limit)
	} else {
		alerts, err = a.alerts.GetRecent(limit)
	}
	if err != nil {
		a.logger.Error("Failed to load alerts", logger.Error(err))
		a.writeError(w, http.StatusInternalServerError, "failed to load alerts")
		return
	}
	if alerts == nil {
		alerts = []database.AlertRecord{}
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

// HandleIntent handles POST /api/intent and returns the resulting snapshot
func (a *API) HandleIntent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req IntentRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := a.apply(req); err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, errBadIntent) {
			status = http.StatusBadGateway
		}
		a.writeError(w, status, err.Error())
		return
	}

	a.logger.Debug("Applied intent", logger.String("intent", req.Intent))
	a.writeJSON(w, http.StatusOK, a.radio.Snapshot())
}

func (a *API) apply(req IntentRequest) error {
	switch req.Intent {
	case IntentPowerOn:
		a.radio.PowerOn()
	case IntentPowerOff:
		a.radio.PowerOff()
	case IntentTogglePower:
		a.radio.TogglePower()
	case IntentSetRID:
		a.radio.SetRID(req.RID)
	case IntentSetModel:
		if req.Model == "" {
			return fmt.Errorf("%w: model is required", errBadIntent)
		}
		a.radio.SetModel(req.Model, req.FlyingVehicle)
	case IntentSetRSSI:
		if req.Level == nil {
			return fmt.Errorf("%w: level is required", errBadIntent)
		}
		a.radio.SetRSSI(*req.Level, req.Site, req.DBM)
	case IntentSetLocation:
		if req.Lat == nil || req.Long == nil {
			return fmt.Errorf("%w: lat and long are required", errBadIntent)
		}
		a.radio.SetLocation(*req.Lat, *req.Long)
	case IntentPTTPress:
		a.radio.PTTPress()
	case IntentPTTRelease:
		a.radio.PTTRelease()
	case IntentChannel, IntentZone:
		if req.Step != 1 && req.Step != -1 {
			return fmt.Errorf("%w: step must be 1 or -1", errBadIntent)
		}
		if req.Intent == IntentChannel {
			a.radio.ChangeChannel(req.Step)
		} else {
			a.radio.ChangeZone(req.Step)
		}
	case IntentScan:
		a.radio.ToggleScan()
	case IntentEmergency:
		a.radio.ActivateEmergency()
	case IntentSiteStatus:
		if req.Site == nil {
			return fmt.Errorf("%w: site is required", errBadIntent)
		}
		return a.radio.SetSiteStatus(*req.Site, req.Status)
	case IntentBattery:
		a.radio.ResetBattery()
	case IntentVolumeUp:
		a.radio.VolumeUp()
	case IntentVolumeDown:
		a.radio.VolumeDown()
	default:
		return fmt.Errorf("%w: unknown intent %q", errBadIntent, req.Intent)
	}
	return nil
}
