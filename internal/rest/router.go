package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// AttachRoutes mounts the authenticated messaging surface on the router.
// The cleanup endpoint is mounted separately because it authenticates
// with the cron secret instead of a user JWT.
func AttachRoutes(handler *Handler, router chi.Router) {
	router.Post("/api/messaging/conversations", handler.CreateConversation)
	router.Get("/api/messaging/conversations", handler.GetConversations)

	router.Post("/api/messaging/conversations/{conversationID}/messages", withConversationID(handler.SendMessage))
	router.Get("/api/messaging/conversations/{conversationID}/messages", withConversationID(handler.GetMessages))
	router.Post("/api/messaging/conversations/{conversationID}/read", withConversationID(handler.MarkRead))
	router.Get("/api/messaging/conversations/{conversationID}/stream", withConversationID(handler.StreamConversation))
	router.Get("/api/messaging/conversations/{conversationID}/subscribe-token", withConversationID(handler.GetSubscribeToken))

	router.Get("/api/messaging/connect-token", handler.GetConnectToken)

	router.Post("/api/calls/request", handler.RequestCall)
	router.Post("/api/calls/end", handler.EndCall)
}

func withConversationID(fn func(w http.ResponseWriter, r *http.Request, conversationID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, chi.URLParam(r, "conversationID"))
	}
}
