package server

import (
	"context"
	"log"
	"sync"

	"github.com/omnivibe/go-chatserver/internal/messagestore"
	"github.com/omnivibe/go-chatserver/internal/presence"
	"github.com/omnivibe/go-chatserver/internal/stats"
	"github.com/omnivibe/go-chatserver/internal/types"
)

const (
	statNumActiveClients       = "NumActiveClients"
	statNumOnlineUsers         = "NumOnlineUsers"
	statNumActiveConversations = "NumActiveConversations"
	statMessagesSent           = "MessagesSent"
	statMessagesDelivered      = "MessagesDelivered"
	statMessagesRead           = "MessagesRead"
	statDeliveryMisses         = "DeliveryMisses"
)

type stopReq struct {
	done chan struct{}
}

// ChatServer coordinates live connections: it tracks who is online,
// pushes stored messages to their receivers, and fans notifications
// out to conversations.
type ChatServer struct {
	log           *log.Logger
	store         *messagestore.Store
	presence      *presence.Registry
	stats         stats.StatsProvider
	clients       map[*Client]struct{}
	userMap       map[string]map[*Client]struct{}
	clientsLock   sync.RWMutex
	conversations map[string]*Conversation
	convsLock     sync.Mutex
	broadcastChan chan *ServerMessage
	stop          chan stopReq
}

func NewChatServer(logger *log.Logger, store *messagestore.Store, registry *presence.Registry, su stats.StatsProvider) (*ChatServer, error) {
	cs := &ChatServer{
		log:           logger,
		store:         store,
		presence:      registry,
		stats:         su,
		clients:       make(map[*Client]struct{}),
		userMap:       make(map[string]map[*Client]struct{}),
		conversations: make(map[string]*Conversation),
		broadcastChan: make(chan *ServerMessage, 256),
		stop:          make(chan stopReq),
	}

	su.RegisterMetric(statNumActiveClients)
	su.RegisterMetric(statNumOnlineUsers)
	su.RegisterMetric(statNumActiveConversations)
	su.RegisterCounter(statMessagesSent)
	su.RegisterCounter(statMessagesDelivered)
	su.RegisterCounter(statMessagesRead)
	su.RegisterCounter(statDeliveryMisses)

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case msg := <-cs.broadcastChan:
			cs.routeMessage(msg)
		case req := <-cs.stop:
			cs.log.Println("stopping chat server")
			cs.clientsLock.Lock()
			for c := range cs.clients {
				c.stopClient()
			}
			cs.clientsLock.Unlock()

			close(req.done)
			return
		}
	}
}

// routeMessage delivers a broadcast to its audience: one user's
// connections when UserId is set, every connection otherwise.
func (cs *ChatServer) routeMessage(msg *ServerMessage) {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	if msg.UserId != "" {
		for c := range cs.userMap[msg.UserId] {
			if c == msg.SkipClient {
				continue
			}
			c.queueMessage(msg)
		}
		return
	}

	for c := range cs.clients {
		if c == msg.SkipClient {
			continue
		}
		c.queueMessage(msg)
	}
}

// broadcast queues a message on the run loop without blocking the
// caller. Drops the message if the channel is full.
func (cs *ChatServer) broadcast(msg *ServerMessage) {
	select {
	case cs.broadcastChan <- msg:
	default:
		cs.log.Println("broadcast channel full, dropping message")
	}
}

// Push queues msg on every live connection of userId. Reports whether
// at least one connection accepted it.
func (cs *ChatServer) Push(userId string, msg *ServerMessage) bool {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	var accepted bool
	for c := range cs.userMap[userId] {
		if c == msg.SkipClient {
			continue
		}
		if c.queueMessage(msg) {
			accepted = true
		}
	}

	return accepted
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	cs.clients[c] = struct{}{}
	cs.stats.Incr(statNumActiveClients)
}

// DeRegisterClient removes a connection. If it was the user's last one
// the user goes offline: their idle conversations unload and the rest
// of the server is notified.
func (cs *ChatServer) DeRegisterClient(c *Client) {
	cs.clientsLock.Lock()
	if _, ok := cs.clients[c]; !ok {
		cs.clientsLock.Unlock()
		return
	}
	delete(cs.clients, c)

	if userClients, ok := cs.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(cs.userMap, c.user.Id)
		}
	}
	cs.clientsLock.Unlock()

	cs.stats.Decr(statNumActiveClients)

	if !c.identified {
		return
	}

	entry, ok, lastForUser := cs.presence.Remove(c.connId)
	if !ok || !lastForUser {
		return
	}

	cs.log.Printf("user %q went offline", entry.UserId)
	cs.stats.Decr(statNumOnlineUsers)
	cs.unloadIdleConversations()

	cs.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Presence: &Presence{
				UserId:   entry.UserId,
				Username: entry.Username,
				Online:   false,
				Status:   types.PresenceOffline,
				LastSeen: entry.LastSeen,
			},
		},
		SkipClient: c,
	})
}

func (cs *ChatServer) addUserClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if cs.userMap[c.user.Id] == nil {
		cs.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	cs.userMap[c.user.Id][c] = struct{}{}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	req := stopReq{done: make(chan struct{})}
	cs.stop <- req

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
