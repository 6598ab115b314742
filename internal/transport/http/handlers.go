package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"fleet-monitor/tracking/internal/domain"
	"fleet-monitor/tracking/internal/notify"
)

const maxBodyBytes = 1 << 20

type Submitter interface {
	Submit(pos *domain.Position) bool
}

type PositionProcessor interface {
	ProcessPosition(ctx context.Context, pos *domain.Position) (*domain.Position, bool)
}

type Notifications interface {
	Types() []string
	Test(ctx context.Context, notificatorType string, userID int64) error
	TestAll(ctx context.Context, userID int64) error
}

// SMSSender is satisfied by notify.SMSApp.
type SMSSender interface {
	SendDeviceMessage(ctx context.Context, deviceIDs []int64, text string) []int64
	SendDirect(ctx context.Context, phone, text string) error
}

type Handlers struct {
	dispatcher    Submitter
	processor     PositionProcessor
	notifications Notifications
	sms           SMSSender
	log           logrus.FieldLogger
}

type errorBody struct {
	Error string `json:"error"`
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail})
}

// userID identifies the acting user for notification tests.
func userID(r *http.Request) int64 {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		raw = r.URL.Query().Get("user")
	}
	id, _ := strconv.ParseInt(raw, 10, 64)
	return id
}

// decodePositions accepts one position object or an array of them.
func decodePositions(r io.Reader) ([]*domain.Position, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}

	var out []*domain.Position
	if body[0] == '[' {
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, errors.Wrap(err, "decode positions")
		}
	} else {
		var p domain.Position
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, errors.Wrap(err, "decode position")
		}
		out = append(out, &p)
	}

	for i, p := range out {
		if p == nil || p.DeviceID == 0 {
			return nil, errors.Errorf("position %d: deviceId is required", i)
		}
	}
	return out, nil
}

type ingestResult struct {
	Accepted int `json:"accepted"`
	Dropped  int `json:"dropped"`
}

// HandlePositions queues decoded positions for processing. With sync=true a
// single position is processed inline and the stored result returned.
func (h *Handlers) HandlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := decodePositions(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	if r.URL.Query().Get("sync") == "true" {
		if len(positions) != 1 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "sync mode takes exactly one position"})
			return
		}
		out, ok := h.processor.ProcessPosition(r.Context(), positions[0])
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	var res ingestResult
	for _, p := range positions {
		if h.dispatcher.Submit(p) {
			res.Accepted++
		} else {
			res.Dropped++
		}
	}
	writeJSON(w, http.StatusAccepted, res)
}

type notificatorType struct {
	Type string `json:"type"`
}

func (h *Handlers) HandleNotificators(w http.ResponseWriter, r *http.Request) {
	types := h.notifications.Types()
	out := make([]notificatorType, len(types))
	for i, t := range types {
		out[i] = notificatorType{Type: t}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) HandleTestAll(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.TestAll(r.Context(), userID(r)); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Test interrupted", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) HandleTest(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("notificator")
	err := h.notifications.Test(r.Context(), name, userID(r))
	switch {
	case errors.Is(err, notify.ErrUnknownNotificator):
		writeProblem(w, http.StatusNotFound, "Notificator not found", err.Error())
	case err != nil:
		h.log.WithError(err).WithField("notificator", name).Error("notificator test failed")
		writeProblem(w, http.StatusInternalServerError, "Test failed", err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type sendSMSRequest struct {
	DeviceIDs []int64 `json:"deviceIds"`
	Phone     string  `json:"phone"`
	Msg       string  `json:"msg"`
}

type sendSMSResponse struct {
	Status string  `json:"status"`
	Failed []int64 `json:"failed,omitempty"`
}

// HandleSendSMS queues a free-text SMS to devices, or to one phone number
// when no devices are given.
func (h *Handlers) HandleSendSMS(w http.ResponseWriter, r *http.Request) {
	if h.sms == nil {
		writeProblem(w, http.StatusNotFound, "Notificator not found", "smsApp is not enabled")
		return
	}

	var req sendSMSRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	if req.Msg == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "msg is required"})
		return
	}

	if len(req.DeviceIDs) > 0 {
		failed := h.sms.SendDeviceMessage(r.Context(), req.DeviceIDs, req.Msg)
		writeJSON(w, http.StatusOK, sendSMSResponse{Status: "Message Queued", Failed: failed})
		return
	}
	if err := h.sms.SendDirect(r.Context(), req.Phone, req.Msg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sendSMSResponse{Status: "Message Queued"})
}

func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
