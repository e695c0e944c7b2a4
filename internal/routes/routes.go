package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/railyard/railyard-api/internal/authz"
	"github.com/railyard/railyard-api/internal/handlers"
	"github.com/railyard/railyard-api/internal/models"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Health       *handlers.HealthHandler
	Auth         *handlers.AuthHandler
	Job          *handlers.JobHandler
	Execution    *handlers.ExecutionHandler
	Log          *handlers.LogHandler
	Connection   *handlers.ConnectionHandler
	Stats        *handlers.StatsHandler
	Notification *handlers.NotificationHandler
	User         *handlers.UserHandler
}

// NewRouter sets up the API routes. Reads need viewer, mutations operator,
// account management admin.
func NewRouter(h Handlers) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.Health.Check).Methods(http.MethodGet)

	// Public auth endpoints
	router.HandleFunc("/api/signup", h.Auth.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/api/login", h.Auth.Login).Methods(http.MethodPost)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(h.Auth.JWTMiddleware)

	viewer := func(fn http.HandlerFunc) http.Handler {
		return authz.RequireRoleHandler(models.RoleViewer, fn)
	}
	operator := func(fn http.HandlerFunc) http.Handler {
		return authz.RequireRoleHandler(models.RoleOperator, fn)
	}
	admin := func(fn http.HandlerFunc) http.Handler {
		return authz.RequireRoleHandler(models.RoleAdmin, fn)
	}

	// Jobs
	api.Handle("/jobs", viewer(h.Job.List)).Methods(http.MethodGet)
	api.Handle("/jobs", operator(h.Job.Create)).Methods(http.MethodPost)
	api.Handle("/jobs/{jobID}", viewer(h.Job.Get)).Methods(http.MethodGet)
	api.Handle("/jobs/{jobID}", operator(h.Job.Update)).Methods(http.MethodPut)
	api.Handle("/jobs/{jobID}", operator(h.Job.Delete)).Methods(http.MethodDelete)
	api.Handle("/jobs/{jobID}/run", operator(h.Job.Run)).Methods(http.MethodPost)

	// Executions
	api.Handle("/executions", viewer(h.Execution.List)).Methods(http.MethodGet)
	api.Handle("/executions/{executionID}", viewer(h.Execution.Get)).Methods(http.MethodGet)
	api.Handle("/executions/{executionID}/logs", viewer(h.Execution.Logs)).Methods(http.MethodGet)

	// Audit log feed
	api.Handle("/logs", viewer(h.Log.List)).Methods(http.MethodGet)

	// Connections
	api.Handle("/connections", viewer(h.Connection.List)).Methods(http.MethodGet)
	api.Handle("/connections", operator(h.Connection.Create)).Methods(http.MethodPost)
	api.Handle("/connections/{id}", viewer(h.Connection.Get)).Methods(http.MethodGet)
	api.Handle("/connections/{id}", operator(h.Connection.Update)).Methods(http.MethodPut)
	api.Handle("/connections/{id}", operator(h.Connection.Delete)).Methods(http.MethodDelete)
	api.Handle("/connections/{id}/test", operator(h.Connection.Test)).Methods(http.MethodPost)
	api.Handle("/connectors", viewer(h.Connection.Formats)).Methods(http.MethodGet)

	// Stats
	api.Handle("/stats/executions", viewer(h.Stats.ExecutionStats)).Methods(http.MethodGet)
	api.Handle("/stats/jobs", viewer(h.Stats.JobStats)).Methods(http.MethodGet)

	// Notifications
	api.Handle("/notifications", viewer(h.Notification.List)).Methods(http.MethodGet)
	api.Handle("/notifications/{notificationID}/read", viewer(h.Notification.MarkRead)).Methods(http.MethodPost)

	// Users
	api.Handle("/users", admin(h.User.List)).Methods(http.MethodGet)
	api.Handle("/users/{userID}/roles", admin(h.User.UpdateRoles)).Methods(http.MethodPut)
	api.Handle("/users/{userID}", admin(h.User.Delete)).Methods(http.MethodDelete)

	return router
}
