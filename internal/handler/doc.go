// Package handler implements the HTTP API.
//
// Routes use Go 1.22 ServeMux patterns. Devices are addressed by MAC in any
// accepted spelling (aa:bb:..., AA-BB-...).
//
// Errors are returned as JSON {error, details}. Domain error kinds map to
// status codes: unknown device 404, unknown type or command 400, unavailable
// device 409, device transport or protocol failure 502.
//
// The /events SSE stream is served by the hub package.
package handler
