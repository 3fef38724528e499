package controllers

import (
	"helpnet/utils"
	"helpnet/websocket"

	"github.com/gin-gonic/gin"
)

type WebSocketController struct {
	hub *websocket.Hub
}

func NewWebSocketController(hub *websocket.Hub) *WebSocketController {
	return &WebSocketController{
		hub: hub,
	}
}

// HandleConnection upgrades the request to a websocket. Authentication
// happens in-band on the first auth frame.
func (wc *WebSocketController) HandleConnection(c *gin.Context) {
	websocket.ServeWS(wc.hub, c.Writer, c.Request)
}

// GetStats reports hub counters.
func (wc *WebSocketController) GetStats(c *gin.Context) {
	utils.SuccessResponse(c, "WebSocket stats retrieved successfully", wc.hub.GetStats())
}
