package ws

import (
	"context"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"clobex.com/pkg/logger"
	"clobex.com/pkg/metrics"
	"clobex.com/pkg/safe"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
)

const maxFlush = 256 // 单次最多写多少条

type Config struct {
	PongWait   time.Duration `mapstructure:"pongWait"`
	PingPeriod time.Duration `mapstructure:"pingPeriod"`
	PingJitter time.Duration `mapstructure:"pingJitter"`
	WriteWait  time.Duration `mapstructure:"writeWait"`
	ReadLimit  int64         `mapstructure:"readLimit"`
	MaxQueue   int           `mapstructure:"maxQueue"`
	MaxTopics  int           `mapstructure:"maxTopics"`
}

type Server struct {
	ctx      context.Context
	hub      *Hub
	cfg      Config
	upgrader websocket.Upgrader
}

func NewServer(ctx context.Context, h *Hub, cfg Config) *Server {
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 5 * time.Second
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 4 << 10
	}
	if cfg.MaxTopics <= 0 {
		cfg.MaxTopics = 64
	}
	return &Server{
		ctx: ctx,
		hub: h,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// 行情是公开数据，不校验 Origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle GET /ws?topics=a,b
func (s *Server) Handle(c *gin.Context) {
	s.ServeWS(c.Writer, c.Request)
}

func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经回过错误响应
		logger.Debug(r.Context(), "ws upgrade failed", zap.Error(err))
		return
	}
	c := newConn(s.hub, wsConn, s.cfg.MaxQueue)
	metrics.WSConns.Inc()
	if topics := splitTopics(r.URL.Query().Get("topics")); len(topics) > 0 {
		s.hub.Subscribe(c, s.limit(topics))
	}
	safe.Go("ws-write", func() { s.writePump(c) })
	safe.Go("ws-read", func() { s.readPump(c) })
}

func (s *Server) limit(topics []string) []string {
	if len(topics) > s.cfg.MaxTopics {
		metrics.WSDropped.WithLabelValues("topics").Add(float64(len(topics) - s.cfg.MaxTopics))
		return topics[:s.cfg.MaxTopics]
	}
	return topics
}

func splitTopics(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (s *Server) readPump(c *Conn) {
	defer func() {
		c.hub.RemoveConn(c)
		c.close()
		_ = c.ws.Close()
		metrics.WSConns.Dec()
	}()

	c.ws.SetReadLimit(s.cfg.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug(s.ctx, "ws read failed", zap.Error(err))
			}
			return
		}
		var msg ClientMsg
		if json.Unmarshal(b, &msg) != nil {
			continue
		}
		topics := s.limit(msg.Topics)
		switch msg.Type {
		case "sub":
			c.hub.Subscribe(c, topics)
		case "unsub":
			c.hub.Unsubscribe(c, topics)
		}
	}
}

func (s *Server) writePump(c *Conn) {
	// ping 打散，避免所有连接同一时刻发
	if s.cfg.PingJitter > 0 {
		t := time.NewTimer(time.Duration(rand.Int63n(int64(s.cfg.PingJitter))))
		select {
		case <-t.C:
		case <-c.done:
			t.Stop()
			return
		case <-s.ctx.Done():
			t.Stop()
			_ = c.ws.Close()
			return
		}
	}

	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.notify:
			batch := c.drain(maxFlush)
			if len(batch) == 0 {
				continue
			}
			if err := s.writeBatch(c, batch); err != nil {
				logger.Debug(s.ctx, "ws write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteWait)); err != nil {
				return
			}
		case <-c.done:
			return
		case <-s.ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				time.Now().Add(s.cfg.WriteWait))
			return
		}
	}
}

// writeBatch 一帧写完一批，多条之间用换行分隔
func (s *Server) writeBatch(c *Conn, batch [][]byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
	w, err := c.ws.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	for i, frame := range batch {
		if i > 0 {
			if _, err := w.Write([]byte{'\n'}); err != nil {
				_ = w.Close()
				return err
			}
		}
		if _, err := w.Write(frame); err != nil {
			_ = w.Close()
			return err
		}
	}
	metrics.WSMessagesOut.Add(float64(len(batch)))
	return w.Close()
}
