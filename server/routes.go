package server

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealthz, s.HealthzHandler())

	// Session approval API
	s.RegisterRouteFunc("GET "+RouteSessionStatus, ChainMiddleware(s.SessionStatusHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteSessionAction, ChainMiddleware(s.SessionActionHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("OPTIONS "+RouteSessionStatus, ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("OPTIONS "+RouteSessionAction, ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))
}
