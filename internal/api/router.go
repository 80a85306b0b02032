package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (s *Server) setupRoutes() {
	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))

		r.Post("/predict/upcoming", s.handlePredictUpcoming)

		r.Route("/forecasts", func(r chi.Router) {
			r.Post("/", s.handleIngestForecasts)
			r.Get("/", s.handleListForecasts)
			r.Get("/{matchID}", s.handleGetForecast)
		})

		r.Get("/metrics", s.handleScore)
		r.Get("/metrics/calibration", s.handleCalibration)

		r.Post("/reconcile", s.handleReconcile)
		r.Post("/results", s.handleSubmitResult)

		if s.ratings != nil {
			r.Get("/rankings/model", s.handleModelRankings)
		}
		if s.sports != nil {
			r.Get("/sports", s.handleListSports)
		}
	})

	if s.hub != nil {
		s.router.Get("/ws", s.hub.ServeWS)
	}
}
