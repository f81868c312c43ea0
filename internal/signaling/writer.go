package signaling

import "github.com/wilsonzlin/aero/proxy/webrtc-signaling-client/internal/taskqueue"

type outbound struct {
	typ   messageType
	text  string
	close bool
}

// writer performs transport writes on one goroutine, in the order they were
// issued by the loop. A close request is ordered after every pending write.
type writer struct {
	queue *taskqueue.Queue[outbound]
}

func (c *Client) startWriter(t Transport) *writer {
	w := &writer{queue: taskqueue.New[outbound]()}
	go func() {
		for {
			item, ok := w.queue.Dequeue()
			if !ok {
				return
			}
			if item.close {
				err := t.Close()
				c.post(func() { c.onTransportClosed(err) })
				w.queue.Close()
				return
			}
			err := t.WriteText(item.text)
			typ := item.typ
			c.post(func() { c.onWritten(typ, err) })
		}
	}()
	return w
}

func (w *writer) write(typ messageType, text string) bool {
	return w.queue.Enqueue(outbound{typ: typ, text: text})
}

func (w *writer) close() {
	w.queue.Enqueue(outbound{close: true})
}
