package http_api

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	v1 := s.router.Group("/api/v1")
	v1.GET("/subscriptions", s.listSubscriptions)
	v1.POST("/subscriptions", s.createSubscription)
	v1.POST("/subscriptions/:id/cancel", s.cancelSubscription)
	v1.GET("/activity", s.activity)
	v1.GET("/tokens", s.listTokens)
	v1.POST("/tokens", s.importToken)
	v1.POST("/send", s.send)

	s.router.GET("/metrics", metricsHandler())
}
