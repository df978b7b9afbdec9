// Package sse pushes in-app notifications to connected agents over
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"net/http"
	"sync"

	"leaddesk_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventType represents different types of SSE events
type EventType string

const (
	EventNotification EventType = "in_app_notification"
)

// Event represents an SSE event payload
type Event struct {
	Type    EventType   `json:"type"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type client struct {
	agentID uuid.UUID
	events  chan Event
}

// Service manages SSE connections and event broadcasting
type Service struct {
	mu      sync.RWMutex
	clients map[uuid.UUID][]*client
	log     *logger.Logger
}

func New(log *logger.Logger) *Service {
	return &Service{
		clients: make(map[uuid.UUID][]*client),
		log:     log,
	}
}

func (s *Service) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.agentID] = append(s.clients[c.agentID], c)
}

func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clients := s.clients[c.agentID]
	for i, cl := range clients {
		if cl == c {
			s.clients[c.agentID] = append(clients[:i], clients[i+1:]...)
			close(c.events)
			break
		}
	}
	if len(s.clients[c.agentID]) == 0 {
		delete(s.clients, c.agentID)
	}
}

// Publish sends an event to every open connection of agentID. Slow clients
// drop events instead of blocking the publisher.
func (s *Service) Publish(agentID uuid.UUID, event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.clients[agentID] {
		select {
		case c.events <- event:
		default:
			if s.log != nil {
				s.log.Warn("sse buffer full", "agentId", agentID, "type", event.Type)
			}
		}
	}
}

// Connected returns the number of open connections for agentID.
func (s *Service) Connected(agentID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[agentID])
}

// Handler returns a Gin handler for SSE connections
func (s *Service) Handler(getAgentID func(*gin.Context) (uuid.UUID, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		agentID, ok := getAgentID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		cl := &client{agentID: agentID, events: make(chan Event, 32)}
		s.addClient(cl)
		defer s.removeClient(cl)

		c.SSEvent("connected", gin.H{"agentId": agentID})
		c.Writer.Flush()

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				return
			case event, ok := <-cl.events:
				if !ok {
					return
				}
				data, _ := json.Marshal(event)
				c.SSEvent(string(event.Type), string(data))
				c.Writer.Flush()
			}
		}
	}
}

// Close shuts down the SSE service
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, clients := range s.clients {
		for _, c := range clients {
			close(c.events)
		}
	}
	s.clients = make(map[uuid.UUID][]*client)
}
