package server

const (
	RouteSessionStatus = "/auth/session-status"
	RouteSessionAction = "/auth/session"
	RouteHealthz       = "/healthz"
)
