// Package tracking records the operations of a db.KVDB as VictoriaMetrics
// metrics. For every store and operation it keeps
//
//	evkv_store_requests_total{store="...",op="..."}
//	evkv_store_errors_total{store="...",op="..."}
//	evkv_store_request_duration_seconds{store="...",op="..."}
//
// plus the number of keys written and of Get calls that found nothing. The
// metrics live in a *metrics.Set owned by the caller; evkv serve exposes it on
// /metrics. GetInfo wraps the engine metadata with the request and error counts.
package tracking
