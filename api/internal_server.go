package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/roamstake/staking-engine/common/logging"
	"github.com/roamstake/staking-engine/sweeper"
)

// InternalServer is the operator-facing surface. It is expected to listen on
// an address unreachable from the public network.
type InternalServer struct {
	ctx     context.Context
	logger  logging.Logger
	sweeper *sweeper.Sweeper
	server  *http.Server
}

func NewInternalServer(ctx context.Context, logger logging.Logger,
	swp *sweeper.Sweeper, addr string) *InternalServer {
	s := &InternalServer{
		ctx:     ctx,
		logger:  logger,
		sweeper: swp,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthCheckup", s.OnQueryHealthCheckup)
	mux.HandleFunc("/setSweeperPause", s.OnSetSweeperPause)
	s.server = &http.Server{
		Addr:         addr,
		WriteTimeout: time.Second * 25,
		Handler:      mux,
	}
	return s
}

func (s *InternalServer) Shutdown() error {
	return s.server.Shutdown(s.ctx)
}

func (s *InternalServer) Run() error {
	s.logger.Info("Starting staking internal httpserver on %s", s.server.Addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		s.logger.Info("Internal server closed under request")
		return nil
	}
	return err
}

func (s *InternalServer) OnQueryHealthCheckup(w http.ResponseWriter, r *http.Request) {
	s.writeMessage(w, "alive")
}

// OnSetSweeperPause pauses or resumes the cooldown sweeper, for maintenance
// windows where finalization must hold still.
func (s *InternalServer) OnSetSweeperPause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeInternalError(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return
	}
	var paused bool
	switch r.URL.Query().Get("paused") {
	case "true":
		paused = true
	case "false":
		paused = false
	default:
		s.writeInternalError(w, http.StatusBadRequest,
			errors.New("paused must be true or false"))
		return
	}
	s.sweeper.Pause(paused)
	s.logger.Info("sweeper paused=%v", paused)
	s.writeMessage(w, "Success")
}

func (s *InternalServer) writeMessage(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	resp := map[string]string{"message": msg}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("fail to encode response: %s", err)
	}
}

func (s *InternalServer) writeInternalError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(errorResp{Error: err.Error()}); encErr != nil {
		s.logger.Error("fail to encode response: %s", encErr)
	}
}
