package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"

	"footage-browser/internal/logging"
	"footage-browser/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// progressSession 一条进度推送连接
type progressSession struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (s *progressSession) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.ws.WriteJSON(v)
}

// HandleProgressWS 扫描进度的 WebSocket 推送
// GET /ws/progress
func (h *Handlers) HandleProgressWS(ctx iris.Context) {
	ws, err := upgrader.Upgrade(ctx.ResponseWriter(), ctx.Request(), nil)
	if err != nil {
		logging.Warn("WS 升级失败", "error", err)
		return
	}
	defer ws.Close()

	session := &progressSession{ws: ws}
	logging.Debug("WS 进度连接建立", "remote", ws.RemoteAddr().String())

	// 连接即下发当前状态
	progress, scanning := h.orch.Progress()
	session.send(iris.Map{"type": "status", "scanning": scanning, "progress": progress})

	done := make(chan struct{})
	var once sync.Once

	unsubscribe := h.orch.Subscribe(func(p models.ScanProgress) {
		if err := session.send(iris.Map{"type": "progress", "progress": p}); err != nil {
			once.Do(func() { close(done) })
		}
	})
	defer unsubscribe()

	// 读循环只用于感知客户端断开
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				once.Do(func() { close(done) })
				return
			}
		}
	}()

	<-done
	logging.Debug("WS 进度连接断开", "remote", ws.RemoteAddr().String())
}
