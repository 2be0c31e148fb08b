package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"mt5_backoffice/internal/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Доступ уже проверен JWT middleware
	CheckOrigin: func(r *http.Request) bool { return true },
}

const writeTimeout = 10 * time.Second

// HandleAccountWS транслирует состояние одного аккаунта.
// Новое подключение к тому же логину вытесняет предыдущее.
func (h *Handler) HandleAccountWS(w http.ResponseWriter, r *http.Request) {
	login, ok := h.loginVar(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	sub := h.streamer.SubscribeAccount(r.Context(), login)

	h.logger.Info("🚀 Account stream opened", "login", login)

	h.pump(conn, sub)

	h.logger.Info("🛑 Account stream closed", "login", login)
}

// HandleDashboardWS транслирует сводку по всем аккаунтам.
// Параллельных подключений может быть несколько.
func (h *Handler) HandleDashboardWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	sub := h.streamer.SubscribeDashboard(r.Context())

	h.logger.Info("🚀 Dashboard stream opened")

	h.pump(conn, sub)

	h.logger.Info("🛑 Dashboard stream closed")
}

// pump гонит сообщения подписки в сокет, пока одна из сторон не закроется
func (h *Handler) pump(conn *websocket.Conn, sub *stream.Stream) {
	defer conn.Close()
	defer sub.Close()

	// Читатель нужен только чтобы заметить закрытие сокета клиентом
	closed := make(chan struct{})

	go func() {
		defer close(closed)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-sub.C:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream closed"),
					time.Now().Add(writeTimeout))

				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeTimeout))

			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
