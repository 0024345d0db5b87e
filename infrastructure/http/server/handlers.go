package server

import (
	"chat-core/auth"
	"chat-core/domain/chat"
	"chat-core/errors"
	"chat-core/protocol"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// user is always set: every handler here sits behind auth.Middleware.
func user(c *gin.Context) chat.User {
	u, _ := auth.UserFrom(c)
	return u
}

func bind(c *gin.Context, body any) bool {
	if err := c.ShouldBindJSON(body); err != nil {
		fail(c, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err))
		return false
	}
	return true
}

func (s *Server) me(c *gin.Context) {
	c.JSON(http.StatusOK, protocol.FromUser(user(c)))
}

func (s *Server) getUser(c *gin.Context) {
	found, err := s.chat.GetUser(c.Request.Context(), chat.UserID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, protocol.FromUser(found))
}

func (s *Server) listChannels(c *gin.Context) {
	channels, err := s.chat.ListChannels(c.Request.Context(), user(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(protocol.FromChannels(channels)))
}

func (s *Server) createChannel(c *gin.Context) {
	var body protocol.CreateChannelRequest
	if !bind(c, &body) {
		return
	}
	channel, err := s.chat.CreateChannel(c.Request.Context(), chat.CreateChannelCommand{
		Name:        body.Name,
		Description: body.Description,
		Visibility:  chat.Visibility(body.Visibility),
		CreatorID:   user(c).ID,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, protocol.FromChannel(channel))
}

func (s *Server) addMember(c *gin.Context) {
	var body protocol.AddMemberRequest
	if !bind(c, &body) {
		return
	}
	channel, err := s.chat.AddMember(c.Request.Context(), chat.MembershipCommand{
		ChannelID: chat.ChannelID(c.Param("id")),
		ActorID:   user(c).ID,
		MemberID:  chat.UserID(body.UserID),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, protocol.FromChannel(channel))
}

func (s *Server) removeMember(c *gin.Context) {
	channel, err := s.chat.RemoveMember(c.Request.Context(), chat.MembershipCommand{
		ChannelID: chat.ChannelID(c.Param("id")),
		ActorID:   user(c).ID,
		MemberID:  chat.UserID(c.Param("user")),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, protocol.FromChannel(channel))
}

func (s *Server) listConversations(c *gin.Context) {
	conversations, err := s.chat.ListConversations(c.Request.Context(), user(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(protocol.FromConversations(conversations)))
}

func (s *Server) createConversation(c *gin.Context) {
	var body protocol.CreateConversationRequest
	if !bind(c, &body) {
		return
	}
	conversation, err := s.chat.CreateConversation(c.Request.Context(), chat.CreateConversationCommand{
		UserID: user(c).ID,
		PeerID: chat.UserID(body.PeerID),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, protocol.FromConversation(conversation))
}

func (s *Server) getMessages(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		fail(c, err)
		return
	}
	var before uint64
	if raw := c.Query("before"); raw != "" {
		if before, err = strconv.ParseUint(raw, 10, 64); err != nil {
			fail(c, fmt.Errorf("%w: before must be a position", errors.ErrInvalidPayload))
			return
		}
	}
	messages, err := s.chat.GetMessages(c.Request.Context(), user(c).ID, c.Param("scope"), before, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(protocol.FromMessages(messages)))
}

func (s *Server) postMessage(c *gin.Context) {
	var body protocol.PostMessageRequest
	if !bind(c, &body) {
		return
	}
	message, err := s.chat.PostMessage(c.Request.Context(), user(c).ID, c.Param("scope"), body.Text)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, protocol.FromMessage(message))
}

func (s *Server) search(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		fail(c, err)
		return
	}
	hits, err := s.chat.Search(c.Request.Context(), user(c).ID, c.Query("field"), c.Query("prefix"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, protocol.FromHits(hits))
}
