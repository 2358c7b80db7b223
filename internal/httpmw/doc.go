// Package httpmw holds the HTTP middleware shared by the public API and
// admin listeners: request IDs, client IP resolution, panic recovery,
// security headers, CORS, body limits, and request logging.
package httpmw
