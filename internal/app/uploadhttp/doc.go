// Package uploadhttp exposes the upload core over HTTP.
//
// Routes, relative to the configured prefix:
//
//	POST /init                 start or resume a session (JSON or form body)
//	POST /chunk                multipart upload of one chunk (session_id, chunk_index, chunk)
//	GET  /status/{sessionId}   session snapshot
//	POST /admin/clean          run the maintenance sweep, ?dry_run=true only counts
//
// GET /health is served outside the prefix and caller middleware.
package uploadhttp
