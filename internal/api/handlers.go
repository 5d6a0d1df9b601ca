package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/goodtune/gamehall/internal/apperr"
	"github.com/goodtune/gamehall/internal/report"
	"github.com/goodtune/gamehall/internal/wire"
)

func (s *Server) handleHealth(ctx *gin.Context) {
	if err := s.svc.Health(ctx.Request.Context()); err != nil {
		s.logger.Error().Err(err).Msg("Health check failed")
		ctx.JSON(http.StatusServiceUnavailable, wire.HealthResponse{Status: "unavailable", Time: s.svc.Now()})
		return
	}
	ctx.JSON(http.StatusOK, wire.HealthResponse{Status: "ok", Time: s.svc.Now()})
}

func (s *Server) handleLogin(ctx *gin.Context) {
	var req wire.LoginRequest
	if !s.bind(ctx, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(ctx, err)
		return
	}

	token, expires, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		s.logger.Warn().Str("username", req.Username).Str("remote_addr", ctx.ClientIP()).Msg("Login failed")
		abortWithError(ctx, http.StatusUnauthorized, apperr.KindUnauthorized, err.Error())
		return
	}
	ctx.JSON(http.StatusOK, wire.LoginResponse{Token: token, ExpiresAt: expires})
}

func (s *Server) handleListStations(ctx *gin.Context) {
	stations, err := s.svc.Stations(ctx.Request.Context())
	if err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.StationsResponse{Stations: stations})
}

func (s *Server) handleAddStation(ctx *gin.Context) {
	var req wire.AddStationRequest
	if !s.bind(ctx, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(ctx, err)
		return
	}
	st, err := s.svc.AddStation(ctx.Request.Context(), req.Name)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, wire.StationResponse{Station: *st})
}

func (s *Server) handleRemoveStation(ctx *gin.Context) {
	if err := s.svc.RemoveStation(ctx.Request.Context(), ctx.Param("id")); err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (s *Server) handleActiveSessions(ctx *gin.Context) {
	sessions, err := s.svc.ActiveSessions(ctx.Request.Context())
	if err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.SessionsResponse{Sessions: sessions})
}

func (s *Server) handleStartSession(ctx *gin.Context) {
	var req wire.StartSessionRequest
	if !s.bind(ctx, &req) {
		return
	}
	sess, err := s.svc.StartSession(ctx.Request.Context(), req)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, wire.SessionResponse{Session: *sess})
}

func (s *Server) handleSyncSession(ctx *gin.Context) {
	var req wire.SyncSessionRequest
	if !s.bind(ctx, &req) {
		return
	}
	sess, err := s.svc.SyncSession(ctx.Request.Context(), req.Session)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.SessionResponse{Session: *sess})
}

func (s *Server) handleEndSession(ctx *gin.Context) {
	resp, err := s.svc.EndSession(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

func (s *Server) handleExtendSession(ctx *gin.Context) {
	var req wire.ExtendSessionRequest
	if !s.bind(ctx, &req) {
		return
	}
	sess, err := s.svc.ExtendSession(ctx.Request.Context(), ctx.Param("id"), req.Minutes)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.SessionResponse{Session: *sess})
}

func (s *Server) handleConvertSession(ctx *gin.Context) {
	sess, err := s.svc.ConvertSession(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.SessionResponse{Session: *sess})
}

func (s *Server) handleSettings(ctx *gin.Context) {
	rates, err := s.svc.Rates(ctx.Request.Context())
	if err != nil {
		s.fail(ctx, err)
		return
	}
	lo, hi := s.svc.RateTable().Bounds()
	ctx.JSON(http.StatusOK, wire.SettingsResponse{Rates: rates, MinRate: lo, MaxRate: hi})
}

func (s *Server) handleUpdateRate(ctx *gin.Context) {
	var req wire.UpdateRateRequest
	if !s.bind(ctx, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(ctx, err)
		return
	}
	rates, err := s.svc.UpdateRate(ctx.Request.Context(), req.Mode, req.Rate)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	lo, hi := s.svc.RateTable().Bounds()
	ctx.JSON(http.StatusOK, wire.SettingsResponse{Rates: rates, MinRate: lo, MaxRate: hi})
}

func (s *Server) handleStats(ctx *gin.Context) {
	stats, err := s.svc.Stats(ctx.Request.Context())
	if err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, stats)
}

func (s *Server) handleDailyReport(ctx *gin.Context) {
	rep, ok := s.loadReport(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, rep)
}

func (s *Server) handleExportReport(ctx *gin.Context) {
	rep, ok := s.loadReport(ctx)
	if !ok {
		return
	}

	var (
		buf         bytes.Buffer
		err         error
		contentType string
		ext         string
	)
	switch format := strings.ToLower(ctx.DefaultQuery("format", "html")); format {
	case "html":
		err = report.WriteHTML(&buf, *rep, s.config.Export)
		contentType, ext = "text/html; charset=utf-8", "html"
	case "markdown", "md":
		err = report.WriteMarkdown(&buf, *rep, s.config.Export)
		contentType, ext = "text/markdown; charset=utf-8", "md"
	default:
		s.fail(ctx, apperr.Validation("format", "unknown export format %q", format))
		return
	}
	if err != nil {
		s.fail(ctx, err)
		return
	}

	ctx.Header("Content-Disposition", `attachment; filename="report-`+rep.Date+`.`+ext+`"`)
	ctx.Data(http.StatusOK, contentType, buf.Bytes())
}

func (s *Server) handleClearReports(ctx *gin.Context) {
	deleted, err := s.svc.ClearReports(ctx.Request.Context())
	if err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, wire.ClearReportsResponse{Deleted: deleted})
}

// loadReport resolves ?date= (today when absent) and builds the report.
func (s *Server) loadReport(ctx *gin.Context) (*report.DailyReport, bool) {
	date := s.svc.Now()
	if value := ctx.Query("date"); value != "" {
		parsed, err := report.ParseDate(value, s.svc.Location())
		if err != nil {
			s.fail(ctx, apperr.Validation("date", "expected %s", report.DateLayout))
			return nil, false
		}
		date = parsed
	}

	rep, err := s.svc.DailyReport(ctx.Request.Context(), date)
	if err != nil {
		s.fail(ctx, err)
		return nil, false
	}
	return rep, true
}

// bind decodes a JSON body, answering 400 on malformed input.
func (s *Server) bind(ctx *gin.Context, dst any) bool {
	if err := ctx.ShouldBindJSON(dst); err != nil {
		s.fail(ctx, apperr.Validation("", "malformed request body: %v", err))
		return false
	}
	return true
}

func (s *Server) fail(ctx *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", ctx.Request.URL.Path).Msg("Request failed")
	}
	ctx.AbortWithStatusJSON(status, wire.NewError(err))
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindTransport:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
