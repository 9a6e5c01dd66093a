package api

import (
	"database/sql"
	"errors"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/omnivibe/go-chatserver/internal/server"
	"github.com/omnivibe/go-chatserver/internal/types"
)

// serveWs upgrades the connection and hands it to the chat server. The
// handshake must name the connecting user; a bearer token, when
// presented, must agree with it. The connection stays invisible to
// presence until it sends an identify message.
func (s *ChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	userId := r.URL.Query().Get("user_id")
	if userId == "" {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if token := bearerToken(r); token != "" {
		parsed, err := s.verifyToken(token)
		if err != nil {
			s.log.Println("verify token:", err)
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		claimedId, err := userIdFromClaims(parsed)
		if err != nil || claimedId != userId {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	user := types.User{
		Id:       userId,
		Username: r.URL.Query().Get("username"),
	}

	dbUser, err := s.db.GetUserById(userId)
	switch {
	case err == nil:
		user = types.User{
			Id:          dbUser.Id,
			Username:    dbUser.Username,
			DisplayName: dbUser.DisplayName,
			AvatarUrl:   dbUser.AvatarUrl,
		}
	case errors.Is(err, sql.ErrNoRows):
		// unknown users keep the handshake values
	default:
		s.log.Println("get user:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(user, conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
