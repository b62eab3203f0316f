package api

import (
	"encoding/json"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/seedbridge/seedbridge/internal/event"
)

// SSEHandler 处理 Server-Sent Events 连接，把总线事件推给扩展 UI
func SSEHandler(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Transfer-Encoding", "chunked")

	clientChan := make(chan event.Event, 10)

	// 闭包 Handler 把事件转发进客户端 channel
	bridgeHandler := func(e event.Event) {
		// 非阻塞发送，避免慢客户端阻塞总线
		select {
		case clientChan <- e:
		default:
		}
	}

	topics := []event.EventType{
		event.EventNotification,
		event.EventDaemonStatus,
		event.EventTorrentAdded,
	}

	var subIDs = make(map[event.EventType]string)
	for _, t := range topics {
		id := event.GlobalBus.Subscribe(t, bridgeHandler)
		subIDs[t] = id
	}

	defer func() {
		for t, id := range subIDs {
			event.GlobalBus.Unsubscribe(t, id)
		}
		log.Println("SSE Client disconnected")
	}()

	c.SSEvent("message", "connected")
	c.Writer.Flush()

	for {
		select {
		case evt := <-clientChan:
			data, err := json.Marshal(evt.Payload)
			if err != nil {
				continue
			}
			c.SSEvent(string(evt.Type), string(data))
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}
