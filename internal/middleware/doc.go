// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

/*
Package middleware provides HTTP middleware shared by the API router.

Key Components:

  - RequestID: UUID request ids propagated to the response header, the
    request context and the logging context
  - PrometheusMetrics: request counts, latency and in-flight gauge, labeled
    by the chi route pattern so that path parameters do not explode label
    cardinality

Both are plain func(http.Handler) http.Handler values and compose with chi:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware
