package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/omnivibe/go-chatserver/internal/messagestore"
)

func (s *ChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

// getMessages returns a page of a conversation's history, newest first.
// An optional before parameter (RFC 3339) pages further back.
func (s *ChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	conversationId := r.URL.Query().Get("conversation_id")
	if conversationId == "" {
		errResp := NewValidationError("conversation_id is required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var before *time.Time
	if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
		t, err := time.Parse(time.RFC3339, beforeStr)
		if err != nil {
			errResp := NewValidationError("before must be an RFC 3339 timestamp")
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		before = &t
	}

	var limit int
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	messages, err := s.store.ConversationMessages(conversationId, before, limit)
	if err != nil {
		s.log.Println("get messages:", err)
		errResp := storeError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, messages)
}

// getConversations returns the per-thread view for a user: each
// conversation with its newest message and unread count.
func (s *ChatApp) getConversations(w http.ResponseWriter, r *http.Request) {
	userId := r.URL.Query().Get("user_id")
	if userId == "" {
		errResp := NewValidationError("user_id is required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conversations, err := s.store.Conversations(userId)
	if err != nil {
		s.log.Println("get conversations:", err)
		errResp := storeError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, conversations)
}

// searchMessages runs a paged, case-insensitive content search scoped
// to a conversation or to all of a user's conversations.
func (s *ChatApp) searchMessages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	scope := messagestore.Scope{
		ConversationId: r.URL.Query().Get("conversation_id"),
		UserId:         r.URL.Query().Get("user_id"),
	}

	var page, pageSize int
	var err error
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		page, err = strconv.Atoi(pageStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}
	if sizeStr := r.URL.Query().Get("page_size"); sizeStr != "" {
		pageSize, err = strconv.Atoi(sizeStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	result, err := s.store.Search(scope, query, page, pageSize)
	if err != nil {
		s.log.Println("search messages:", err)
		errResp := storeError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, result)
}

func (s *ChatApp) health(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health:", err)
		errResp := NewServiceUnavailableError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}
