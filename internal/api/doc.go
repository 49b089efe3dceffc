// Package api serves retrieval, indexing and status over HTTP using a chi
// router.
//
//	POST /api/v1/retrieve  {"query": "...", "directory": "..."}  -> {"items": [...]}
//	POST /api/v1/index     {"path": "...", "include_tests": true}
//	GET  /api/v1/status?path=...
//	GET  /healthz
//
// Errors are JSON bodies of the form {"error": "...", "request_id": "..."}.
// A missing workspace is 404 and an empty result is 422.
package api
