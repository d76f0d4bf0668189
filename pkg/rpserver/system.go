package rpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/reportportal/service-api/pkg/analyzer"
	"github.com/reportportal/service-api/pkg/api"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/version"
)

// Health is the body of /health.
type Health struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// Info is the body of /info.
type Info struct {
	Build        version.Info    `json:"build"`
	Capabilities []string        `json:"capabilities"`
	Analyzers    []analyzer.Info `json:"analyzers"`
}

func (s *Server) jsonHealth(w http.ResponseWriter, req *http.Request) {
	health := Health{Status: "UP", Database: "UP"}
	ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
	defer cancel()
	if err := s.pingDB(ctx); err != nil {
		health.Status, health.Database = "DOWN", err.Error()
		api.RespondWithJSON(http.StatusServiceUnavailable, w, health)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, health)
}

func (s *Server) pingDB(ctx context.Context) error {
	if s.db == nil || s.db.DB == nil {
		return nil
	}
	sqlDB, err := s.db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Server) jsonInfo(w http.ResponseWriter, req *http.Request) {
	info := Info{
		Build:        version.Get(),
		Capabilities: s.capabilities,
		Analyzers:    s.Analyzers.Info(),
	}
	if info.Capabilities == nil {
		info.Capabilities = []string{}
	}
	if info.Analyzers == nil {
		info.Analyzers = []analyzer.Info{}
	}
	api.RespondWithJSON(http.StatusOK, w, info)
}

func (s *Server) jsonLogin(w http.ResponseWriter, req *http.Request) {
	var rq apitype.LoginRQ
	if err := api.DecodeJSON(req, &rq); err != nil {
		failureResponse(w, err)
		return
	}
	rs, err := s.Users.Login(req.Context(), s.authenticator, rq, s.tokenTTL)
	if err != nil {
		failureResponse(w, err)
		return
	}
	api.RespondWithJSON(http.StatusOK, w, rs)
}
