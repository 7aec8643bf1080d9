package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/contest-wager-ledger/internal/wager-service/domain"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/dto"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/engine"
)

// Engine é o que a API precisa do BetEngine
type Engine interface {
	Participants() []domain.Participant
	CreateIntent(ctx context.Context, participantID int, walletAddress string, amount decimal.Decimal) (domain.Intent, error)
	SubmitSignature(ctx context.Context, intentID, signature string) (engine.Result, error)
	GetIntent(ctx context.Context, id string) (domain.Intent, error)
	GetAccount(ctx context.Context, walletAddress string) (domain.Account, error)
}

type Server struct {
	log    *zap.Logger
	engine Engine
	ws     http.HandlerFunc // opcional: push de liquidações

	// OnRequest recebe rota, status e duração de cada requisição (métricas no main)
	OnRequest func(route string, status int, d time.Duration)
}

func NewServer(log *zap.Logger, e Engine, wsHandler http.HandlerFunc) *Server {
	return &Server{log: log, engine: e, ws: wsHandler}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	r.Use(withCORS)

	r.Get("/participants", s.listParticipants)
	r.Post("/bets", s.placeBet)
	r.Get("/bets/{intentId}", s.getIntent)
	r.Post("/bets/{intentId}/confirm", s.confirmBet)
	r.Get("/accounts/{walletAddress}", s.getAccount)
	if s.ws != nil {
		r.Get("/ws", s.ws)
	}
	return r
}

func (s *Server) listParticipants(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Participants())
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "BAD_JSON", Message: err.Error()})
		return
	}

	in, err := s.engine.CreateIntent(r.Context(), req.ParticipantID, req.WalletAddress, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.PlaceBetResponse{
		IntentID:       in.ID,
		Status:         string(in.State),
		Amount:         domain.FormatSOL(in.AmountLamports),
		AmountLamports: in.AmountLamports,
		ExpiresAt:      in.ExpiresAt,
	})
}

func (s *Server) confirmBet(w http.ResponseWriter, r *http.Request) {
	var req dto.ConfirmBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "BAD_JSON", Message: err.Error()})
		return
	}

	res, err := s.engine.SubmitSignature(r.Context(), chi.URLParam(r, "intentId"), req.Signature)
	if err == nil {
		out := dto.ConfirmBetResponse{Status: string(res.Intent.State), Duplicate: res.Duplicate}
		if res.Bet != nil {
			v := dto.NewBetView(*res.Bet)
			out.Bet = &v
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	// falha final de verificação: a intenção foi (ou já estava) rejeitada
	if res.Intent.State == domain.StateRejected {
		writeJSON(w, http.StatusUnprocessableEntity, dto.ConfirmBetResponse{
			Status: string(domain.StateRejected),
			Reason: res.Intent.Reason,
		})
		return
	}
	s.writeError(w, r, err)
}

func (s *Server) getIntent(w http.ResponseWriter, r *http.Request) {
	in, err := s.engine.GetIntent(r.Context(), chi.URLParam(r, "intentId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewIntentResponse(in))
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.engine.GetAccount(r.Context(), chi.URLParam(r, "walletAddress"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewAccountResponse(acc))
}

// statusFor mapeia os erros de domínio para status HTTP
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidWallet),
		errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownParticipant),
		errors.Is(err, domain.ErrIntentRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnknownIntent):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrIntentClosed),
		errors.Is(err, domain.ErrSignatureReused):
		return http.StatusConflict
	case errors.Is(err, domain.ErrVerifierTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, status, dto.ErrorResponse{Error: domain.Kind(err), Message: err.Error()})
}

// observe registra status e latência usando o padrão de rota do chi (não o path com ids)
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.Method + " " + chi.RouteContext(r.Context()).RoutePattern()
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.log.Debug("http request",
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
		if s.OnRequest != nil {
			s.OnRequest(route, status, time.Since(start))
		}
	})
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
