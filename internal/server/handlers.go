package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/LiEnby/eCDP-Serial-Code/internal/ecdp"
)

// EncodeRequest is the body of POST /v1/encode.
type EncodeRequest struct {
	MAC        string `json:"mac" binding:"required"`
	Store      string `json:"store" binding:"required"`
	Management string `json:"management" binding:"required"`
}

// CodeResponse carries one password.
type CodeResponse struct {
	Code string `json:"code"`
}

// ReverseRequest is the body of POST /v1/reverse.
type ReverseRequest struct {
	MAC  string `json:"mac" binding:"required"`
	Code string `json:"code" binding:"required"`
	// Max defaults to 1 and is clamped to the server limit.
	Max int64 `json:"max" binding:"gte=0"`
	// Table is 0 for all tables or 1 to 7.
	Table int `json:"table" binding:"gte=0,lte=7"`
}

// ReverseResponse lists the matches of a search.
type ReverseResponse struct {
	Matches []MatchResponse `json:"matches"`
	Found   int64           `json:"found"`
	Checked int64           `json:"checked"`
}

// MatchResponse is one match. Table is one-indexed.
type MatchResponse struct {
	Store      string `json:"store"`
	Management string `json:"management"`
	Table      int    `json:"table"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func handleMaster(c *gin.Context) {
	c.JSON(http.StatusOK, CodeResponse{Code: ecdp.MasterCode})
}

func (s *Server) handleEncode(c *gin.Context) {
	_, span := tracer.Start(c.Request.Context(), "HandleEncode")
	defer span.End()

	var req EncodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad request body")
		s.metrics.ObserveEncode(&ecdp.InvalidInputError{Field: "body", Reason: err.Error()})
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	span.SetAttributes(attribute.String("mac", req.MAC))

	code, err := ecdp.Encode(req.MAC, req.Store, req.Management)
	s.metrics.ObserveEncode(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, CodeResponse{Code: string(code)})
}

func (s *Server) handleReverse(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleReverse")
	defer span.End()

	var req ReverseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad request body")
		s.metrics.ObserveReverse(ecdp.Result{}, &ecdp.InvalidInputError{Field: "body", Reason: err.Error()})
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	limit := req.Max
	if limit == 0 {
		limit = 1
	}
	if limit > s.cfg.MaxResults {
		limit = s.cfg.MaxResults
	}
	span.SetAttributes(
		attribute.String("mac", req.MAC),
		attribute.String("code", req.Code),
		attribute.Int64("max", limit),
		attribute.Int("table", req.Table))

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReverseTimeout)
	defer cancel()

	var col ecdp.Collector
	solver := ecdp.NewSolver(ecdp.Options{Max: limit, Table: req.Table, Workers: s.workers})
	res, err := solver.Reverse(ctx, req.MAC, req.Code, &col)
	s.metrics.ObserveReverse(res, err)
	span.SetAttributes(
		attribute.Int64("found", res.Found),
		attribute.Int64("checked", res.Stats.Checked))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.writeError(c, err)
		return
	}

	out := ReverseResponse{
		Matches: make([]MatchResponse, len(col.Matches)),
		Found:   res.Found,
		Checked: res.Stats.Checked,
	}
	for i, m := range col.Matches {
		out.Matches[i] = MatchResponse{Store: m.Store, Management: m.Management, Table: m.Table + 1}
	}
	s.logger.Debug("Reverse search done",
		zap.String("request_id", c.GetString(requestIDKey)),
		zap.Int64("found", res.Found),
		zap.Int64("checked", res.Stats.Checked),
		zap.Duration("elapsed", res.Elapsed))
	c.JSON(http.StatusOK, out)
}

func (s *Server) writeError(c *gin.Context, err error) {
	var ie *ecdp.InvalidInputError
	switch {
	case errors.As(err, &ie):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ie.Error(), Field: ie.Field})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: "search timed out"})
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the body.
		c.Status(499)
	default:
		s.logger.Error("Request failed",
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
