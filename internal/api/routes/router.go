package routes

import (
	"net/http"

	"github.com/smartcare-health/smartqueue/internal/api/handlers"
	"github.com/smartcare-health/smartqueue/internal/api/middleware"
	"github.com/smartcare-health/smartqueue/internal/infrastructure/observability"
)

// Router holds the HTTP mux and the handlers it dispatches to.
type Router struct {
	mux               *http.ServeMux
	queueHandler      *handlers.QueueHandler
	allocationHandler *handlers.AllocationHandler
	dashboardHandler  *handlers.DashboardHandler
	metrics           *observability.Metrics
}

// NewRouter creates a new router with all handlers wired in.
func NewRouter(
	queueHandler *handlers.QueueHandler,
	allocationHandler *handlers.AllocationHandler,
	dashboardHandler *handlers.DashboardHandler,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:               http.NewServeMux(),
		queueHandler:      queueHandler,
		allocationHandler: allocationHandler,
		dashboardHandler:  dashboardHandler,
		metrics:           metrics,
	}
}

// SetupRoutes registers every route and wraps the mux in the middleware
// chain.
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Patient queue
	r.mux.HandleFunc("POST /api/queue/check-in", r.queueHandler.CheckIn)
	r.mux.HandleFunc("GET /api/queue/{department}", r.queueHandler.GetQueue)
	r.mux.HandleFunc("POST /api/queue/{department}/call-next", r.queueHandler.CallNext)
	r.mux.HandleFunc("POST /api/queue/{department}/complete", r.queueHandler.Complete)
	r.mux.HandleFunc("GET /api/queue/{department}/stats", r.queueHandler.GetStats)
	r.mux.HandleFunc("POST /api/queue/entries/{id}/override", r.queueHandler.EmergencyOverride)
	r.mux.HandleFunc("GET /api/queue/entries/{id}/estimate", r.queueHandler.GetEstimate)

	// Spare-doctor allocation
	r.mux.HandleFunc("POST /api/allocator/run", r.allocationHandler.RunAllocation)
	r.mux.HandleFunc("POST /api/allocator/protect", r.allocationHandler.ProtectWaitTimes)
	r.mux.HandleFunc("GET /api/allocator/decisions", r.allocationHandler.ListDecisions)
	r.mux.HandleFunc("GET /api/allocator/insights", r.allocationHandler.GetInsights)
	r.mux.HandleFunc("GET /api/allocator/impact/{department}", r.allocationHandler.GetWaitImpact)
	r.mux.HandleFunc("GET /api/pool", r.allocationHandler.GetPool)
	r.mux.HandleFunc("POST /api/pool/doctors", r.allocationHandler.RegisterDoctor)
	r.mux.HandleFunc("POST /api/pool/doctors/{id}/release", r.allocationHandler.ReleaseDoctor)

	// Departments and dashboard
	r.mux.HandleFunc("POST /api/departments", r.dashboardHandler.RegisterDepartment)
	r.mux.HandleFunc("GET /api/departments", r.dashboardHandler.ListDepartments)
	r.mux.HandleFunc("GET /api/departments/{department}/status", r.dashboardHandler.GetDepartmentStatus)
	r.mux.HandleFunc("GET /api/dashboard/crowd", r.dashboardHandler.GetCrowdStatus)

	// Audit trail
	r.mux.HandleFunc("GET /api/activity", r.dashboardHandler.ListActivity)
	r.mux.HandleFunc("GET /api/activity/stats", r.dashboardHandler.GetActivityStats)
	r.mux.HandleFunc("GET /api/overrides", r.dashboardHandler.ListOverrides)

	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	if r.metrics != nil {
		handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	}
	handler = middleware.CORSMiddleware(handler)

	return handler
}
