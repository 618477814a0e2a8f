package chat

import (
	"context"
	"time"

	"PPCollab/service/auth"
	"PPCollab/service/authz"
	"PPCollab/service/metrics"
	"PPCollab/service/ratelimit"
	"PPCollab/tools/errs"
	"PPCollab/tools/safe"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config 网关参数，零值字段取默认
type Config struct {
	InstanceID       string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PongWait         time.Duration
	WriteWait        time.Duration
	SendQueueSize    int
	MaxMessageSize   int64
	MaxPerUser       int
	AllowedOrigins   []string
}

func (c *Config) setDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 4 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 << 10
	}
}

// 服务端主动断开时的 close code
const (
	CloseReplaced = 4001 // 超出单用户连接数被挤下线
	CloseIdle     = 4002
)

// Authorizer 加入房间前的授权；*authz.Gatekeeper 实现它
type Authorizer interface {
	Check(ctx context.Context, identity auth.Identity, room authz.Room) error
}

// PresenceMirror 跨实例的在线提示（Redis），可为空
type PresenceMirror interface {
	Online(ctx context.Context, userID, connID string) error
	Offline(ctx context.Context, userID, connID string) error
	Touch(ctx context.Context, userID, connID string) error
}

type Deps struct {
	Authenticator auth.Authenticator
	Authorizer    Authorizer
	Limiter       *ratelimit.Limiter
	Router        *Router
	Metrics       *metrics.Collectors
	Mirror        PresenceMirror
	Log           *zap.Logger
}

// Gateway 显式构造的网关实例，持有自己的连接与房间表，测试里可以并存多个
type Gateway struct {
	conf Config

	conns    *ConnManager
	rooms    *Rooms
	presence *Presence
	local    *Broadcaster
	fanout   *Fanout

	authn   auth.Authenticator
	authz   Authorizer
	limiter *ratelimit.Limiter
	router  *Router
	metrics *metrics.Collectors
	mirror  PresenceMirror
	log     *zap.Logger
}

func NewGateway(conf Config, d Deps) *Gateway {
	conf.setDefaults()
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Router == nil {
		d.Router = NewRouter()
	}
	g := &Gateway{
		conf:    conf,
		rooms:   NewRooms(),
		authn:   d.Authenticator,
		authz:   d.Authorizer,
		limiter: d.Limiter,
		router:  d.Router,
		metrics: d.Metrics,
		mirror:  d.Mirror,
		log:     d.Log.With(zap.String("instance", conf.InstanceID)),
	}
	if g.authn != nil {
		g.authn = auth.WithTimeout(g.authn, conf.HandshakeTimeout)
	}
	g.conns = NewConnManager(ManagerConf{
		IdleTTL:     conf.PongWait,
		MaxPerUser:  conf.MaxPerUser,
		EvictOldest: true,
	})
	g.presence = NewPresence(g.onPresence)
	g.presence.log = g.log.Named("presence")
	g.local = NewBroadcaster(g.rooms, g.log.Named("broadcast"), g.metrics, func(connID string) {
		g.Disconnect(connID, websocket.CloseGoingAway, "delivery failed")
	})
	g.fanout = NewFanout(g.local, conf.InstanceID, g.log.Named("fanout"), g.metrics)
	return g
}

func (g *Gateway) Config() Config { return g.conf }
func (g *Gateway) Conns() *ConnManager { return g.conns }
func (g *Gateway) Presence() *Presence { return g.presence }
func (g *Gateway) Fanout() *Fanout { return g.fanout }
func (g *Gateway) Router() *Router { return g.router }
func (g *Gateway) Rooms() *Rooms { return g.rooms }
func (g *Gateway) Metrics() *metrics.Collectors { return g.metrics }

// StartFanout 接入 backbone；nil 或不可用时单实例运行
func (g *Gateway) StartFanout(ctx context.Context, bb Backbone) {
	g.fanout.Start(ctx, bb)
}

// Run 运行连接清理，直到 ctx 结束
func (g *Gateway) Run(ctx context.Context) error {
	return g.conns.Run(ctx, func(c *Conn) {
		g.log.Info("connection idle, closing", zap.String("connId", c.ID()), zap.String("userId", c.IdentityID()))
		g.disconnect(c, CloseIdle, "idle timeout")
	})
}

// Shutdown 关闭全部连接并断开 backbone
func (g *Gateway) Shutdown() {
	for _, c := range g.conns.All() {
		g.disconnect(c, websocket.CloseGoingAway, "server shutting down")
	}
	if err := g.fanout.Close(); err != nil {
		g.log.Warn("close backbone", zap.Error(err))
	}
}

// ===== 连接生命周期 =====

// Register Authenticated 状态的连接登记；超额时挤掉最老的连接
func (g *Gateway) Register(ctx context.Context, c *Conn) error {
	evicted, err := g.conns.Add(c)
	if err != nil {
		return err
	}
	for _, old := range evicted {
		g.log.Info("evict oldest connection", zap.String("userId", old.IdentityID()), zap.String("connId", old.ID()))
		g.disconnect(old, CloseReplaced, "replaced by newer connection")
	}
	g.metrics.ConnOpened()
	if g.mirror != nil {
		if err := g.mirror.Online(ctx, c.IdentityID(), c.ID()); err != nil {
			g.log.Warn("presence mirror online", zap.String("userId", c.IdentityID()), zap.Error(err))
		}
	}
	g.log.Info("connected", zap.String("connId", c.ID()), zap.String("userId", c.IdentityID()), zap.String("remote", c.Remote()))
	return nil
}

// Heartbeat pong 或上行帧时刷新
func (g *Gateway) Heartbeat(ctx context.Context, c *Conn) {
	g.conns.Heartbeat(c.ID())
	if g.mirror != nil {
		if err := g.mirror.Touch(ctx, c.IdentityID(), c.ID()); err != nil {
			g.log.Debug("presence mirror touch", zap.String("connId", c.ID()), zap.Error(err))
		}
	}
}

// Disconnect 终态：清理全部房间和在场记录。重复调用无副作用
func (g *Gateway) Disconnect(connID string, code int, reason string) {
	c, ok := g.conns.Get(connID)
	if !ok {
		return
	}
	g.disconnect(c, code, reason)
}

func (g *Gateway) disconnect(c *Conn, code int, reason string) {
	g.conns.Remove(c.ID())
	rooms, first := c.shutdown(code, reason)
	if !first {
		return
	}
	for _, key := range rooms {
		g.rooms.Leave(key, c.ID())
		g.presence.RecordLeave(c.Identity(), c.ID(), key)
	}
	g.syncRoomGauge()
	g.metrics.ConnClosed()
	if g.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := g.mirror.Offline(ctx, c.IdentityID(), c.ID()); err != nil {
			g.log.Warn("presence mirror offline", zap.String("userId", c.IdentityID()), zap.Error(err))
		}
		cancel()
	}
	g.log.Info("disconnected",
		zap.String("connId", c.ID()),
		zap.String("userId", c.IdentityID()),
		zap.String("reason", reason),
		zap.Int("rooms", len(rooms)),
	)
}

// ===== 上行帧处理 =====

// Dispatch 处理一帧。任何错误都转成发起连接上的 error 事件，不会结束连接
func (g *Gateway) Dispatch(ctx context.Context, c *Conn, raw []byte) {
	f, err := ParseFrame(raw)
	if err != nil {
		g.fail(c, &Frame{}, false, err)
		return
	}
	h, err := g.router.Get(f.Event)
	if err != nil {
		g.fail(c, f, false, err)
		return
	}
	always := false
	if a, ok := h.(AlwaysAcker); ok {
		always = a.AlwaysAck()
	}

	effects, err := g.runHandler(ctx, h, &Context{conn: c, gw: g}, f)
	if err == nil {
		err = g.apply(ctx, c, effects)
	}
	if err != nil {
		g.fail(c, f, always, err)
		return
	}
	if f.AckID != nil || always {
		g.reply(c, f.Event, func() ([]byte, error) { return BuildAck(f.Event, f.AckID, nil) })
	}
}

func (g *Gateway) runHandler(ctx context.Context, h Handler, hc *Context, f *Frame) (effects []Effect, err error) {
	defer safe.Recover(g.log, string(f.Event), func(perr error) {
		g.metrics.Panicked()
		effects, err = nil, errs.ErrInternal.WrapMsg("handler panic", "event", f.Event, "err", perr)
	})
	return h.Handle(ctx, hc, f)
}

func (g *Gateway) apply(ctx context.Context, c *Conn, effects []Effect) error {
	for _, e := range effects {
		var err error
		switch v := e.(type) {
		case JoinRoom:
			err = g.join(c, v.Room)
		case LeaveRoom:
			g.leave(c, v.Room)
		case Broadcast:
			err = g.fanout.Publish(ctx, v.Event)
		default:
			err = errs.ErrInternal.WrapMsg("unknown effect")
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) fail(c *Conn, f *Frame, always bool, err error) {
	code := errs.Code(err)
	fields := []zap.Field{
		zap.String("connId", c.ID()),
		zap.String("userId", c.IdentityID()),
		zap.String("event", string(f.Event)),
		zap.Int("code", code),
		zap.Error(err),
	}
	if code >= errs.ServerInternalError && code < 1000 {
		g.log.Warn("event failed", fields...)
	} else {
		g.log.Info("event rejected", fields...)
	}
	g.reply(c, f.Event, func() ([]byte, error) { return BuildError(f.Event, err) })
	if f.AckID != nil || always {
		g.reply(c, f.Event, func() ([]byte, error) { return BuildAck(f.Event, f.AckID, err) })
	}
}

func (g *Gateway) reply(c *Conn, event EventType, build func() ([]byte, error)) {
	b, err := build()
	if err != nil {
		g.log.Error("encode reply", zap.String("event", string(event)), zap.Error(err))
		return
	}
	if err := c.Deliver(b); err != nil {
		g.log.Warn("reply dropped", zap.String("connId", c.ID()), zap.String("event", string(event)), zap.Error(err))
		g.metrics.DeliveryFailed()
		go g.Disconnect(c.ID(), websocket.CloseGoingAway, "delivery failed")
	}
}

// ===== 房间 =====

type roomUsers struct {
	RoomID string          `json:"roomId"`
	Users  []auth.Identity `json:"users"`
}

// join 持有连接锁完成登记 + presence + 快照，与 disconnect 互斥；
// 在场通知要经过 backbone，放锁之后再发
func (g *Gateway) join(c *Conn, room authz.Room) error {
	key := room.Key()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errs.ErrDeliveryFailure.WrapMsg("connection closed", "connId", c.ID())
	}
	if _, ok := c.rooms[key]; !ok {
		c.rooms[key] = struct{}{}
		g.rooms.Join(key, c)
	}
	snap := g.presence.recordJoin(c.Identity(), c.ID(), key)
	c.mu.Unlock()

	g.presence.Flush(key)
	g.syncRoomGauge()

	others := make([]auth.Identity, 0, len(snap))
	for _, e := range snap {
		if e.Identity.ID != c.IdentityID() {
			others = append(others, e.Identity)
		}
	}
	g.reply(c, EventRoomUsers, func() ([]byte, error) {
		return EncodeFrame(EventRoomUsers, roomUsers{RoomID: key, Users: others}, nil)
	})
	return nil
}

// leave 未加入时为空操作
func (g *Gateway) leave(c *Conn, room authz.Room) {
	key := room.Key()

	c.mu.Lock()
	if _, ok := c.rooms[key]; !ok || c.closed {
		c.mu.Unlock()
		return
	}
	delete(c.rooms, key)
	g.rooms.Leave(key, c.ID())
	g.presence.recordLeave(c.Identity(), c.ID(), key)
	c.mu.Unlock()

	g.presence.Flush(key)
	g.syncRoomGauge()
}

func (g *Gateway) authorize(ctx context.Context, c *Conn, room authz.Room) error {
	if g.authz == nil {
		return errs.ErrUnauthorized.WrapMsg("no authorizer configured")
	}
	err := g.authz.Check(ctx, c.Identity(), room)
	if err == nil {
		return nil
	}
	switch errs.Code(err) {
	case errs.RoomNotFoundError:
		g.metrics.JoinDenied(string(authz.ReasonNotFound))
	case errs.NotMemberError:
		g.metrics.JoinDenied(string(authz.ReasonNotMember))
	}
	return err
}

func (g *Gateway) shouldEmit(c *Conn, room authz.Room) bool {
	if g.limiter == nil {
		return true
	}
	if g.limiter.ShouldEmit(c.IdentityID(), room.Key()) {
		return true
	}
	g.metrics.Suppressed()
	return false
}

func (g *Gateway) syncRoomGauge() {
	if g.metrics == nil {
		return
	}
	n, _ := g.rooms.Stats()
	g.metrics.SetRooms(n)
}

// onPresence presence 变化转成房间事件，经 fanout 同步给其他实例
func (g *Gateway) onPresence(n PresenceNotice) {
	room, err := authz.ParseRoom(n.RoomID)
	if err != nil {
		return
	}
	// 项目房间沿用 channel:userJoined / channel:userLeft
	t := EventChannelUserLeft
	if n.Joined {
		t = EventChannelUserJoined
	}
	payload := map[string]string{
		"userId":      n.Identity.ID,
		"displayName": n.Identity.DisplayName,
		"avatar":      n.Identity.AvatarRef,
		"roomId":      room.Key(),
	}
	if room.Kind == authz.KindChannel {
		payload["channelId"] = room.ID
	} else {
		payload["projectId"] = room.ID
	}
	ev, err := NewSocketEvent(t, room, n.Identity.ID, n.ConnID, payload)
	if err != nil {
		g.log.Error("presence event", zap.Error(err))
		return
	}
	if err := g.fanout.Publish(context.Background(), ev); err != nil {
		g.log.Warn("presence publish", zap.String("room", n.RoomID), zap.Error(err))
	}
}

// ===== REST 入口 =====

// PublishFromREST REST 层已完成写入后的权威广播，包含操作者自己的连接
func (g *Gateway) PublishFromREST(ctx context.Context, ev DomainEvent) error {
	ev.Origin = OriginREST
	ev.OriginConnID = ""
	return g.fanout.Publish(ctx, ev)
}

// RoomStats 本实例的房间快照
type RoomStats struct {
	RoomID      string          `json:"roomId"`
	Connections int             `json:"connections"`
	Users       []PresenceEntry `json:"users"`
	Instance    string          `json:"instance"`
}

func (g *Gateway) RoomSnapshot(room authz.Room) RoomStats {
	return RoomStats{
		RoomID:      room.Key(),
		Connections: len(g.rooms.Members(room.Key())),
		Users:       g.presence.Snapshot(room.Key()),
		Instance:    g.conf.InstanceID,
	}
}
