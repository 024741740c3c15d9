package server

// Route path constants
// All console routes are defined here to ensure consistency and prevent typos
const (
	RouteRoot = "/"

	// Auth Routes
	RouteAuthLogin       = "/auth/login"
	RouteAuthDirectLogin = "/auth/direct-login"
	RouteAuthLogout      = "/auth/logout"
	RouteAuthSession     = "/auth/session"

	// Super admin API Routes, gated by RequireSession
	RouteAPIDashboard       = "/api/dashboard"
	RouteAPIStats           = "/api/stats"
	RouteAPISyndicates      = "/api/syndicates"
	RouteAPISyndicateAction = "/api/syndicates/{id}/{action}"
	RouteAPIProfile         = "/api/profile"
	RouteAPIChangePassword  = "/api/change-password"
)
