// Package api is the thin HTTP front end translating client requests
// into raftnode.Node.ClientRequest calls, the same "adapter struct
// wrapping *Node" idiom as the teacher's internal/raftserver/rpc.go,
// generalized from gRPC/protobuf wire types (dropped — see DESIGN.md)
// to a small JSON surface served by gin.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/quorumkit/raftcore/internal/raft"
	"github.com/quorumkit/raftcore/internal/raftnode"
)

// Server wraps a *raftnode.Node with HTTP handlers. It is the client-
// facing surface only — peer-to-peer replication traffic goes over
// whatever raftbus.Transport the deployment supplies, not this API
// (spec.md §1 scopes "the message-bus transport" out of core).
type Server struct {
	Node *raftnode.Node
}

// submitRequest is the JSON body for POST /commands.
type submitRequest struct {
	Payload string `json:"payload" binding:"required"`
}

type submitResponse struct {
	LeaderID   string `json:"leaderId"`
	EntryTerm  uint64 `json:"entryTerm,omitempty"`
	EntryIndex uint64 `json:"entryIndex,omitempty"`
	Success    bool   `json:"success"`
}

type statusResponse struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	Term     uint64 `json:"term"`
	LeaderID string `json:"leaderId"`
}

// Routes registers this server's handlers on engine.
func (s *Server) Routes(engine *gin.Engine) {
	engine.POST("/commands", s.submit)
	engine.GET("/status", s.status)
}

func (s *Server) submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.Node.ClientRequest(raft.Command{
		Kind:    raft.CommandUser,
		Payload: []byte(req.Payload),
	})
	if err != nil {
		if errors.Is(err, raft.ErrNotLeader) {
			c.JSON(http.StatusMisdirectedRequest, submitResponse{LeaderID: result.LeaderID})
			return
		}
		log.Error().Err(err).Msg("api: command submission failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, submitResponse{
		LeaderID:   result.LeaderID,
		EntryTerm:  uint64(result.EntryTerm),
		EntryIndex: uint64(result.EntryIndex),
		Success:    result.Success,
	})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{
		ID:       s.Node.ID(),
		Role:     string(s.Node.Role()),
		Term:     uint64(s.Node.Term()),
		LeaderID: s.Node.LeaderHint(),
	})
}

// NewEngine builds a gin.Engine with this server's routes and the
// teacher's CORS middleware (rs/cors, permissive defaults suitable for
// local/dev use), grounded on the teacher's cmd/leifdb main wiring
// gin + cors.AllowAll around internal/raftserver.
func NewEngine(s *Server) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(func(c *gin.Context) {
		cors.AllowAll().HandlerFunc(c.Writer, c.Request)
		c.Next()
	})
	s.Routes(engine)
	return engine
}
