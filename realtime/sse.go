package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const keepAliveInterval = 15 * time.Second

// Stream writes events for the filter as Server-Sent Events until the client goes
// away. After every event the folded badge is written as a "badge" event.
func Stream(c *fiber.Ctx, reg *Registry, owner string, f Filter, initial Badge, logger *zap.Logger) error {
	sub, err := reg.Subscribe(context.Background(), owner, f)
	if err != nil {
		return err
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer sub.Close()

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		badge := initial
		if err := writeEvent(w, "badge", badge); err != nil {
			return
		}

		for {
			select {
			case e, ok := <-sub.Events():
				if !ok {
					return
				}
				badge = badge.Apply(e)
				if err := writeEvent(w, string(e.Channel), e); err != nil {
					logger.Debug("[SSE] client went away", zap.String("user_id", f.UserID), zap.Error(err))
					return
				}
				if err := writeEvent(w, "badge", badge); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(":\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-sub.Done():
				return
			}
		}
	})
	return nil
}

func writeEvent(w *bufio.Writer, name string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	return w.Flush()
}
