package chat

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"PPCollab/middleware"
	midsec "PPCollab/middleware/security"
	"PPCollab/service/auth"
	"PPCollab/tools/errs"
	"PPCollab/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func (g *Gateway) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: g.conf.HandshakeTimeout,
		CheckOrigin: func(r *http.Request) bool {
			return middleware.AllowOrigin(g.conf.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
}

// HandleWS 握手前鉴权，失败直接 401，不创建任何连接对象
func (g *Gateway) HandleWS(c *gin.Context) {
	identity, err := g.authenticate(c.Request.Context(), midsec.Credential(c.Request, nil))
	if err != nil {
		g.metrics.Rejected()
		g.log.Info("handshake rejected", zap.String("ip", c.ClientIP()), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": errs.Code(err), "msg": errs.Message(err)})
		return
	}

	ws, err := g.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败，Upgrade 已经写回了 HTTP 错误
		g.log.Info("upgrade websocket failed", zap.String("userId", identity.ID), zap.Error(err))
		return
	}

	conn := NewConn(ids.GenerateString(), identity, c.ClientIP(), g.conf.SendQueueSize)
	ctx := context.WithoutCancel(c.Request.Context())
	if err := g.Register(ctx, conn); err != nil {
		g.log.Warn("register connection failed", zap.String("userId", identity.ID), zap.Error(err))
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, errs.Message(err)),
			time.Now().Add(g.conf.WriteWait))
		_ = ws.Close()
		return
	}

	go g.writePump(conn, ws)
	g.readLoop(ctx, conn, ws)
}

func (g *Gateway) authenticate(ctx context.Context, credential string) (auth.Identity, error) {
	if g.authn == nil {
		return auth.Identity{}, errs.ErrUnauthenticated.WrapMsg("no authenticator configured")
	}
	return g.authn.Authenticate(ctx, credential)
}

// readLoop 只读不写；出错即退出并进入 Disconnected
func (g *Gateway) readLoop(ctx context.Context, c *Conn, ws *websocket.Conn) {
	defer g.Disconnect(c.ID(), websocket.CloseNormalClosure, "read loop ended")

	ws.SetReadLimit(g.conf.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(g.conf.PongWait))
	ws.SetPongHandler(func(string) error {
		_ = ws.SetReadDeadline(time.Now().Add(g.conf.PongWait))
		g.Heartbeat(ctx, c)
		return nil
	})

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			var ne net.Error
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				g.log.Debug("peer closed", zap.String("connId", c.ID()), zap.Error(err))
			case errors.As(err, &ne) && ne.Timeout():
				g.log.Info("read timeout", zap.String("connId", c.ID()), zap.Error(err))
			default:
				g.log.Debug("read error", zap.String("connId", c.ID()), zap.Error(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(g.conf.PongWait))
		g.conns.Heartbeat(c.ID())
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		g.Dispatch(ctx, c, data)
	}
}

// writePump 单写协程：发送队列、ping、关闭帧
func (g *Gateway) writePump(c *Conn, ws *websocket.Conn) {
	ticker := time.NewTicker(g.conf.PingInterval)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case frame := <-c.Outbox():
			_ = ws.SetWriteDeadline(time.Now().Add(g.conf.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				g.log.Debug("write failed", zap.String("connId", c.ID()), zap.Error(err))
				g.metrics.DeliveryFailed()
				go g.Disconnect(c.ID(), websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(g.conf.WriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				go g.Disconnect(c.ID(), websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		case <-c.Done():
			g.drain(c, ws)
			code, text := c.CloseInfo()
			_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(g.conf.WriteWait))
			return
		}
	}
}

// drain 关闭前把已入队的帧尽量写完（比如最后的 error / ack）
func (g *Gateway) drain(c *Conn, ws *websocket.Conn) {
	for {
		select {
		case frame := <-c.Outbox():
			_ = ws.SetWriteDeadline(time.Now().Add(g.conf.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
