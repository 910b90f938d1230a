// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/NYTimes/gziphandler"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/rs/cors"

	"github.com/hashicorp/opd/helper/uuid"
	"github.com/hashicorp/opd/opd/structs"
)

const (
	// ErrInvalidMethod is used if the HTTP method is not supported
	ErrInvalidMethod = "Invalid method"
)

// allowCORS sets permissive CORS headers for read handlers.
var allowCORS = cors.New(cors.Options{
	AllowedOrigins: []string{"*"},
	AllowedMethods: []string{"HEAD", "GET"},
	AllowedHeaders: []string{"*"},
})

// HTTPServer is used to wrap an Agent and expose it over an HTTP interface
type HTTPServer struct {
	agent    *Agent
	mux      *http.ServeMux
	listener net.Listener
	logger   hclog.Logger
	Addr     string
}

// NewHTTPServer starts a new HTTP server over the agent.
func NewHTTPServer(agent *Agent, config *Config) (*HTTPServer, error) {
	ln, err := net.Listen("tcp", config.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to start HTTP listener: %v", err)
	}

	mux := http.NewServeMux()
	srv := &HTTPServer{
		agent:    agent,
		mux:      mux,
		listener: ln,
		logger:   agent.logger.Named("http"),
		Addr:     ln.Addr().String(),
	}
	srv.registerHandlers()

	go http.Serve(ln, gziphandler.GzipHandler(mux))

	srv.logger.Info("http server started", "address", srv.Addr)
	return srv, nil
}

// Shutdown is used to shutdown the HTTP server.
func (s *HTTPServer) Shutdown() {
	if s != nil {
		s.logger.Debug("shutting down http server")
		s.listener.Close()
	}
}

func (s *HTTPServer) registerHandlers() {
	s.mux.HandleFunc("/v1/token", s.wrap(s.tokenCreateRequest))
	s.mux.HandleFunc("/v1/token/", s.wrap(s.tokenSpecificRequest))
	s.mux.HandleFunc("/v1/tokens/expire", s.wrap(s.tokenExpireRequest))
	s.mux.Handle("/v1/tokens/waiting", allowCORS.Handler(http.HandlerFunc(s.wrap(s.waitingListRequest))))
	s.mux.Handle("/v1/slots", allowCORS.Handler(http.HandlerFunc(s.wrap(s.slotAvailabilityRequest))))
	s.mux.HandleFunc("/v1/slot", s.wrap(s.slotUpsertRequest))
	s.mux.HandleFunc("/v1/doctor", s.wrap(s.doctorUpsertRequest))
	s.mux.Handle("/v1/doctors", allowCORS.Handler(http.HandlerFunc(s.wrap(s.doctorListRequest))))
}

// HTTPCodedError is used to provide the HTTP error code along with an error
type HTTPCodedError interface {
	error
	Code() int
}

// CodedError returns an HTTPCodedError.
func CodedError(c int, m string) HTTPCodedError {
	return &codedError{m, c}
}

type codedError struct {
	s    string
	code int
}

func (e *codedError) Error() string { return e.s }
func (e *codedError) Code() int     { return e.code }

// errCode maps engine error kinds onto HTTP status codes.
func errCode(err error) int {
	if coded, ok := err.(HTTPCodedError); ok {
		return coded.Code()
	}
	switch {
	case structs.IsErrTokenNotFound(err),
		structs.IsErrDoctorNotFound(err),
		structs.IsErrSlotNotFound(err):
		return http.StatusNotFound
	case structs.IsErrInvalidInput(err):
		return http.StatusBadRequest
	case structs.IsErrInvalidStatus(err),
		structs.IsErrAlreadyCancelled(err),
		structs.IsErrCannotCancelCompleted(err):
		return http.StatusConflict
	case structs.IsErrStorageConflict(err),
		structs.IsErrStorageUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// wrap is used to wrap functions to make them more convenient
func (s *HTTPServer) wrap(handler func(resp http.ResponseWriter, req *http.Request) (interface{}, error)) func(resp http.ResponseWriter, req *http.Request) {
	return func(resp http.ResponseWriter, req *http.Request) {
		obj, err := handler(resp, req)
		if err != nil {
			code := errCode(err)
			resp.WriteHeader(code)
			resp.Write([]byte(err.Error()))
			if code >= 500 {
				s.logger.Error("request failed", "method", req.Method, "path", req.URL.Path, "error", err, "code", code)
			} else {
				s.logger.Debug("request failed", "method", req.Method, "path", req.URL.Path, "error", err, "code", code)
			}
			return
		}

		if obj != nil {
			buf, err := json.Marshal(obj)
			if err != nil {
				resp.WriteHeader(http.StatusInternalServerError)
				resp.Write([]byte(err.Error()))
				return
			}
			resp.Header().Set("Content-Type", "application/json")
			resp.Write(buf)
		}
	}
}

func decodeBody(req *http.Request, out interface{}) error {
	dec := json.NewDecoder(req.Body)
	if err := dec.Decode(out); err != nil {
		return CodedError(http.StatusBadRequest, err.Error())
	}
	return nil
}

type tokenCreateWire struct {
	IdempotencyKey string `json:"idempotency_key"`
	DoctorID       string `json:"doctor_id"`
	Date           string `json:"date"`
	PatientName    string `json:"patient_name"`
	Phone          string `json:"phone"`
	Age            int    `json:"age"`
	Notes          string `json:"notes"`
	Source         string `json:"source"`
	Priority       string `json:"priority"`
}

func (s *HTTPServer) tokenCreateRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost && req.Method != http.MethodPut {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}

	var wire tokenCreateWire
	if err := decodeBody(req, &wire); err != nil {
		return nil, err
	}

	priority, err := structs.ParsePriority(wire.Priority)
	if err != nil {
		return nil, err
	}
	source, err := structs.ParseSource(wire.Source)
	if err != nil {
		return nil, err
	}

	args := structs.TokenCreateRequest{
		IdempotencyKey: wire.IdempotencyKey,
		DoctorID:       wire.DoctorID,
		Date:           wire.Date,
		PatientName:    wire.PatientName,
		Phone:          wire.Phone,
		Age:            wire.Age,
		Notes:          wire.Notes,
		Source:         source,
		Priority:       priority,
	}

	var out structs.TokenCreateResponse
	if err := s.agent.engine.Tokens().Create(req.Context(), &args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// tokenSpecificRequest routes /v1/token/<id>/<action>.
func (s *HTTPServer) tokenSpecificRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	path := strings.TrimPrefix(req.URL.Path, "/v1/token/")
	tokenID, action, ok := strings.Cut(path, "/")
	if !ok || tokenID == "" {
		return nil, CodedError(http.StatusBadRequest, "missing token id or action")
	}
	if req.Method != http.MethodPut && req.Method != http.MethodPost {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}

	switch action {
	case "cancel":
		var out structs.TokenCancelResponse
		args := structs.TokenCancelRequest{TokenID: tokenID}
		if err := s.agent.engine.Tokens().Cancel(req.Context(), &args, &out); err != nil {
			return nil, err
		}
		return &out, nil
	case "no-show":
		var out structs.TokenNoShowResponse
		args := structs.TokenNoShowRequest{TokenID: tokenID}
		if err := s.agent.engine.Tokens().MarkNoShow(req.Context(), &args, &out); err != nil {
			return nil, err
		}
		return &out, nil
	case "complete":
		var out structs.TokenCompleteResponse
		args := structs.TokenCompleteRequest{TokenID: tokenID}
		if err := s.agent.engine.Tokens().Complete(req.Context(), &args, &out); err != nil {
			return nil, err
		}
		return &out, nil
	default:
		return nil, CodedError(http.StatusNotFound, "unknown token action")
	}
}

func (s *HTTPServer) tokenExpireRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPut && req.Method != http.MethodPost {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}

	args := structs.TokenExpireRequest{
		DoctorID: req.URL.Query().Get("doctor_id"),
		Date:     req.URL.Query().Get("date"),
	}

	var out structs.TokenExpireResponse
	if err := s.agent.engine.Tokens().ExpireWaiting(req.Context(), &args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *HTTPServer) waitingListRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}

	args := structs.WaitingListRequest{
		DoctorID: req.URL.Query().Get("doctor_id"),
		Date:     req.URL.Query().Get("date"),
	}

	var out structs.WaitingListResponse
	if err := s.agent.engine.Tokens().WaitingList(&args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *HTTPServer) slotAvailabilityRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}

	args := structs.SlotAvailabilityRequest{
		DoctorID: req.URL.Query().Get("doctor_id"),
		Date:     req.URL.Query().Get("date"),
	}

	var out structs.SlotAvailabilityResponse
	if err := s.agent.engine.Slots().Availability(&args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type slotUpsertWire struct {
	ID          string `json:"id"`
	DoctorID    string `json:"doctor_id"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Capacity    int    `json:"capacity"`
	PaidCap     *int   `json:"paid_cap"`
	FollowUpCap *int   `json:"followup_cap"`
	IsActive    *bool  `json:"is_active"`
}

func (s *HTTPServer) slotUpsertRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost && req.Method != http.MethodPut {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}

	var wire slotUpsertWire
	if err := decodeBody(req, &wire); err != nil {
		return nil, err
	}

	slot := &structs.Slot{
		ID:        wire.ID,
		DoctorID:  wire.DoctorID,
		Date:      wire.Date,
		StartTime: wire.StartTime,
		EndTime:   wire.EndTime,
		Capacity:  wire.Capacity,
		IsActive:  true,
	}
	if slot.ID == "" {
		slot.ID = uuid.Generate()
	}
	if wire.PaidCap != nil {
		slot.PaidCap = structs.CapOf(*wire.PaidCap)
	}
	if wire.FollowUpCap != nil {
		slot.FollowUpCap = structs.CapOf(*wire.FollowUpCap)
	}
	if wire.IsActive != nil {
		slot.IsActive = *wire.IsActive
	}

	var out structs.SlotUpsertResponse
	if err := s.agent.engine.Slots().Upsert(&structs.SlotUpsertRequest{Slot: slot}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type doctorUpsertWire struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Speciality string `json:"speciality"`
	IsActive   *bool  `json:"is_active"`
}

func (s *HTTPServer) doctorUpsertRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost && req.Method != http.MethodPut {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}

	var wire doctorUpsertWire
	if err := decodeBody(req, &wire); err != nil {
		return nil, err
	}

	doctor := &structs.Doctor{
		ID:         wire.ID,
		Name:       wire.Name,
		Speciality: wire.Speciality,
		IsActive:   true,
	}
	if doctor.ID == "" {
		doctor.ID = uuid.Generate()
	}
	if wire.IsActive != nil {
		doctor.IsActive = *wire.IsActive
	}

	var out structs.DoctorUpsertResponse
	if err := s.agent.engine.Doctors().Upsert(&structs.DoctorUpsertRequest{Doctor: doctor}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *HTTPServer) doctorListRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}

	var out []*structs.Doctor
	if err := s.agent.engine.Doctors().List(&out); err != nil {
		return nil, err
	}
	return out, nil
}
