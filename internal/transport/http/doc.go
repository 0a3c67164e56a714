// Package http implements the HTTP request handlers for the Dhandha
// license surface. Handlers stay thin: parse the request, call the
// service layer, and translate service errors into structured API
// responses.
//
// A typical request flows through these layers:
//
//	HTTP Request → Chi Router → Middleware → Handler → Service → License Engine
//	                                              ↓
//	HTTP Response ← Handler ← Service Response ←─┘
//
// Handlers are tested with httptest against stubbed services.
package http
