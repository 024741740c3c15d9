package server

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteRoot+"{$}", ChainMiddleware(s.IndexHandler(), s.APIMiddleware()...))

	// AUTH
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthDirectLogin, ChainMiddleware(s.DirectLoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthSession, ChainMiddleware(s.SessionHandler(), s.APIMiddleware()...))

	// Super admin routes (require an authenticated session)
	s.RegisterRouteHandler("GET "+RouteAPIDashboard, ChainMiddleware(s.DashboardHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("GET "+RouteAPIStats, ChainMiddleware(s.GlobalStatsHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("GET "+RouteAPISyndicates, ChainMiddleware(s.SyndicatesHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("PATCH "+RouteAPISyndicateAction, ChainMiddleware(s.SyndicateActionHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("PUT "+RouteAPIProfile, ChainMiddleware(s.UpdateProfileHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteAPIChangePassword, ChainMiddleware(s.ChangePasswordHandler(), s.APIMiddleware(s.RequireSession())...))

	// CORS preflight for every route
	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(s.preflightHandler(), s.APIMiddleware()...))
}
