package jsonrpc

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	holograph "github.com/holographxyz/holograph-sub000"
	"github.com/holographxyz/holograph-sub000/builder"
	"github.com/holographxyz/holograph-sub000/internal/audit"
)

// ServerConfig holds the configuration for the JSON-RPC server.
type ServerConfig struct {
	Builder          *builder.Builder
	Factory          common.Address
	EnforcerBytecode []byte
	SigningMode      holograph.SigningMode
	Logger           *slog.Logger

	// Auditor is optional; without it holo_auditInput is not registered.
	Auditor *audit.Auditor
}

// Server is the JSON-RPC server with all methods registered.
type Server struct {
	handler *Handler
	config  ServerConfig
}

// NewServer creates a new JSON-RPC server with the holo_* methods registered.
func NewServer(cfg ServerConfig) *Server {
	handler := NewHandler(cfg.Logger)
	holo := NewHoloHandler(cfg.Builder, cfg.Factory, cfg.EnforcerBytecode, cfg.Auditor, cfg.SigningMode)

	handler.RegisterMethod("health_status", HandleHealthStatus)
	handler.RegisterMethod("holo_buildConfig", holo.HandleBuildConfig)
	handler.RegisterMethod("holo_computeConfigHash", holo.HandleComputeConfigHash)
	handler.RegisterMethod("holo_predictAddress", holo.HandlePredictAddress)
	handler.RegisterMethod("holo_decodeDeployment", holo.HandleDecodeDeployment)
	handler.RegisterMethod("holo_verifySignature", holo.HandleVerifySignature)
	if cfg.Auditor != nil {
		handler.RegisterMethod("holo_auditInput", holo.HandleAuditInput)
		handler.RegisterMethod("holo_getAuditReport", holo.HandleGetAuditReport)
		handler.RegisterMethod("holo_listAuditReports", holo.HandleListAuditReports)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("Registered JSON-RPC methods",
			slog.Any("methods", handler.RegisteredMethods()),
		)
	}

	return &Server{
		handler: handler,
		config:  cfg,
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Handler returns the underlying JSON-RPC handler.
func (s *Server) Handler() *Handler {
	return s.handler
}

// RegisterMethod registers an additional method handler.
func (s *Server) RegisterMethod(name string, handler MethodHandler) {
	s.handler.RegisterMethod(name, handler)
}

// RegisteredMethods returns the registered method names.
func (s *Server) RegisteredMethods() []string {
	return s.handler.RegisteredMethods()
}
