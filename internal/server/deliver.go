package server

import (
	"bytes"
	"context"
	"crypto/subtle"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/buildtall-systems/storebridge/internal/config"
	"github.com/buildtall-systems/storebridge/internal/db"
	"github.com/buildtall-systems/storebridge/internal/delivery"
	"github.com/buildtall-systems/storebridge/internal/host"
)

//go:embed schema/deliver.schema.json
var deliverSchema []byte

const (
	msgMethodNotAllowed = "Method not allowed"
	msgUnauthorized     = "Unauthorized"
	msgInvalidJSON      = "Invalid JSON format"
	msgMissingFields    = "Missing required fields: orderId, minecraftUsername, commands"
	msgUnavailable      = "Server is shutting down"
)

func compileDeliverSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("deliver.schema.json", bytes.NewReader(deliverSchema)); err != nil {
		return nil, fmt.Errorf("loading deliver schema: %w", err)
	}
	schema, err := c.Compile("deliver.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compiling deliver schema: %w", err)
	}
	return schema, nil
}

func (s *Server) handleDeliver(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.log.Warn("invalid request method", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		return
	}

	policy := s.policy.Current()
	if !authorized(r.Header.Get("Authorization"), policy.Secret) {
		s.log.Warn("unauthorized delivery request", "remote", remoteHost(r))
		writeError(w, http.StatusForbidden, msgUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.log.Warn("reading delivery request", "error", err)
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	req, err := s.decodeRequest(body)
	if err != nil {
		if errors.Is(err, delivery.ErrInvalidRequest) {
			s.log.Warn("missing required fields in delivery request", "error", err)
			writeError(w, http.StatusBadRequest, msgMissingFields)
			return
		}
		s.log.Warn("invalid JSON in delivery request", "error", err)
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	requestID := uuid.NewString()
	log := s.log.With("request_id", requestID, "order_id", req.OrderID.String(), "recipient", req.Recipient)
	log.Info("processing delivery", "commands", len(req.Commands))

	resCh := make(chan delivery.Result, 1)
	err = s.host.Do(r.Context(), func(ctx context.Context) {
		result := s.orchestrator.Deliver(ctx, req, delivery.Policy{
			Whitelist:         policy.Whitelist,
			QueueOfflineItems: policy.QueueOfflineItems,
		})
		s.record(ctx, requestID, result)
		resCh <- result
	})
	if err != nil {
		if errors.Is(err, host.ErrStopped) {
			log.Warn("delivery refused, host stopped")
			writeError(w, http.StatusServiceUnavailable, msgUnavailable)
			return
		}
		// The caller went away; the delivery itself still completes.
		log.Warn("caller left before delivery finished", "error", err)
		return
	}

	result := <-resCh
	if !result.Success {
		log.Warn("delivery failed", "error", result.Error)
		writeJSON(w, http.StatusInternalServerError, result)
		return
	}
	log.Info("delivery completed")
	writeJSON(w, http.StatusOK, result)
}

// decodeRequest checks syntax, then field types, then required fields.
func (s *Server) decodeRequest(body []byte) (delivery.Request, error) {
	var req delivery.Request

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return req, fmt.Errorf("parsing body: %w", err)
	}
	if dec.More() {
		return req, errors.New("parsing body: trailing data")
	}
	if err := s.schema.Validate(doc); err != nil {
		return req, fmt.Errorf("validating body: %w", err)
	}

	if err := json.Unmarshal(body, &req); err != nil {
		return req, fmt.Errorf("decoding body: %w", err)
	}
	if err := delivery.ValidateRequest(&req); err != nil {
		return req, err
	}
	return req, nil
}

func (s *Server) record(ctx context.Context, requestID string, result delivery.Result) {
	if s.ledger == nil {
		return
	}
	_, err := s.ledger.RecordDelivery(ctx, db.Delivery{
		RequestID: requestID,
		OrderID:   result.OrderID.String(),
		Recipient: result.Recipient,
		Success:   result.Success,
		Error:     result.Error,
		Executed:  result.ExecutedCommands,
		Failed:    result.FailedCommands,
		Queued:    result.QueuedCommands,
	})
	if err != nil {
		s.log.Error("recording delivery", "request_id", requestID, "error", err)
	}
}

func authorized(header, secret string) bool {
	want := "Bearer " + secret
	return subtle.ConstantTimeCompare([]byte(header), []byte(want)) == 1
}

func remoteHost(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	h, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return h
}

var _ PolicySource = (*config.Watcher)(nil)
