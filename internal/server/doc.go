// Package server hosts the Fiber HTTP service that fronts the static menu
// site. It owns the request middleware chain (recover, request IDs, scope
// check) and forwards every in-scope request to a FetchHandler, normally the
// worker registration. Diagnostics under /-/ bypass the scope check and are
// registered by the routes subpackage. The shared upstream http.Client also
// lives here so the worker, probe and connectivity monitor reuse one transport.
package server
