package gateway

import "net/http"

// routes builds the route table.
//
//	POST   /api/analyze       rank phrase candidates
//	POST   /api/prune         phrase pruning, creates or continues a run
//	GET    /api/prune/stream  websocket: prune with live iterations
//	POST   /api/hybrid        phrase + word pruning
//	POST   /api/generate      completion for original, pruned or hybrid
//	POST   /api/validate      similarity of two texts
//	POST   /api/compare       completions of every variant of a run
//	POST   /api/sections      per-section summarize or prune of "## " prompts
//	GET    /api/runs/{id}     stored run
//	DELETE /api/runs/{id}     evict a run
//	GET    /health
//	GET    /metrics           when monitoring.metrics_enabled
func (g *Gateway) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/analyze", g.handleAnalyze)
	mux.HandleFunc("POST /api/prune", g.handlePrune)
	mux.HandleFunc("GET /api/prune/stream", g.handlePruneStream)
	mux.HandleFunc("POST /api/hybrid", g.handleHybrid)
	mux.HandleFunc("POST /api/generate", g.handleGenerate)
	mux.HandleFunc("POST /api/validate", g.handleValidate)
	mux.HandleFunc("POST /api/compare", g.handleCompare)
	mux.HandleFunc("POST /api/sections", g.handleSections)
	mux.HandleFunc("GET /api/runs/{id}", g.handleGetRun)
	mux.HandleFunc("DELETE /api/runs/{id}", g.handleDeleteRun)

	mux.HandleFunc("GET /health", g.handleHealth)
	if g.config.Monitoring.MetricsEnabled && g.metrics != nil {
		mux.Handle("GET /metrics", g.metrics.Handler())
	}
	return mux
}
