// Package server runs the admin HTTP API of the listener manager.
//
// Architecture:
//   - RouteProvider: contributes routes to the admin router
//   - Manager: owns the admin http.Server and the shared middleware
//     (recovery, request logging, CORS)
//   - AdminProvider: /health and /status in the clear, /api behind the
//     admin bearer token and optionally rate limited per client IP
//
// Routes:
//
//	GET    /status
//	GET    /api/servers
//	POST   /api/servers
//	GET    /api/servers/:port
//	DELETE /api/servers/:port
//	GET    /api/servers/:port/logs?q=
//	DELETE /api/servers/:port/logs?confirm=true
//	POST   /api/servers/:port/logs/export
//	POST   /api/servers/:port/logs/import
//	POST   /api/config/save
//	GET    /api/events?port=          (WebSocket, also accepts ?token=)
//
// Usage:
//
//	token, _ := server.ResolveAdminToken(cfg.Server.AdminToken, logger)
//	mgr := server.NewManager(server.ServerConfigFrom(cfg), logger)
//	mgr.AddProvider(server.NewAdminProvider(handlers, token, cfg.RateLimit, logger))
//	mgr.Start(ctx)
package server
