package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/owlnotes/meeting-pipeline/internal/jobs"
	"github.com/owlnotes/meeting-pipeline/internal/storage"
)

// StreamHandler ingests a live recording over one WebSocket connection.
// The client opens with a JSON text frame naming the session, then sends
// each recorded chunk as a binary frame; "END" finalizes the session into
// a pending job. Chunks land under the same key space as HTTP uploads, so
// a dropped socket can be resumed over POST /upload-chunk.
type StreamHandler struct {
	blobs storage.BlobStore
	queue *jobs.Store
}

// NewStreamHandler creates a stream handler.
func NewStreamHandler(blobs storage.BlobStore, queue *jobs.Store) *StreamHandler {
	return &StreamHandler{blobs: blobs, queue: queue}
}

type streamHello struct {
	SessionID   string          `json:"sessionId"`
	MeetingMeta json.RawMessage `json:"meetingMeta"`
}

// Handle processes one streaming connection.
func (h *StreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	ctx := context.Background()
	var (
		hello     streamHello
		chunkKeys []string
		index     int
		finished  bool
	)

	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			log.Printf("StreamHandler: read: %v", err)
			break
		}

		if messageType == websocket.TextMessage {
			msg := string(message)
			if msg == "END" {
				finished = true
				break
			}
			if err := json.Unmarshal(message, &hello); err != nil {
				log.Printf("StreamHandler: bad hello frame: %v", err)
				c.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid hello frame"}`))
				return
			}
			continue
		}

		if messageType == websocket.BinaryMessage {
			if hello.SessionID == "" {
				hello.SessionID = uuid.New().String()
				log.Printf("StreamHandler: no session named, generated %s", hello.SessionID)
			}
			key := ChunkKey(hello.SessionID, index)
			if err := h.blobs.Upload(ctx, key, bytes.NewReader(message), "audio/webm"); err != nil {
				log.Printf("StreamHandler: store chunk %s: %v", key, err)
				c.WriteMessage(websocket.TextMessage, []byte(`{"error":"failed to store chunk"}`))
				return
			}
			chunkKeys = append(chunkKeys, key)
			index++
		}
	}

	if !finished || len(chunkKeys) == 0 {
		log.Printf("StreamHandler: session %s ended without finalize (%d chunks)", hello.SessionID, len(chunkKeys))
		return
	}

	job, err := h.queue.Enqueue(ctx, hello.SessionID, chunkKeys, hello.MeetingMeta)
	if err != nil {
		log.Printf("StreamHandler: enqueue session %s: %v", hello.SessionID, err)
		c.WriteMessage(websocket.TextMessage, []byte(`{"error":"failed to enqueue job"}`))
		return
	}

	log.Printf("StreamHandler: session %s finalized into job %s (%d chunks)", hello.SessionID, job.ID, len(chunkKeys))
	c.WriteMessage(websocket.TextMessage,
		[]byte(fmt.Sprintf(`{"job_id":%q,"session_id":%q,"chunks":%d,"status":%q}`,
			job.ID, hello.SessionID, len(chunkKeys), job.Status)))
}
