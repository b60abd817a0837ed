// Package zoraprofiles serves a batch lookup of Zora creator profiles and
// their latest coins over HTTP.
//
// A [Server] is assembled from functional [Option] values and owns one
// process-wide aggregation service (cache, inflight table, upstream client):
//
//	srv := zoraprofiles.NewServer(
//		zoraprofiles.WithAPIKey(os.Getenv("ZORA_API_KEY")),
//		zoraprofiles.WithLogger(logger),
//		zoraprofiles.WithMetrics(prometheus.NewRegistry()),
//	)
//	http.ListenAndServe(":8080", srv.Handler())
package zoraprofiles
