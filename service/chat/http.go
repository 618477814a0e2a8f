package chat

import (
	"context"
	"io"
	"net/http"

	"PPCollab/middleware"
	"PPCollab/service/authz"
	"PPCollab/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PresenceLookup 跨实例在线查询（Redis 镜像），connID -> instanceID
type PresenceLookup interface {
	Lookup(ctx context.Context, userID string) (map[string]string, error)
}

type RouteConf struct {
	InternalKey string
	Lookup      PresenceLookup
}

// RegisterRoutes /ws 以及 /internal/* 运维和 REST 事件入口
func (g *Gateway) RegisterRoutes(r gin.IRouter, rc RouteConf) {
	r.GET("/ws", middleware.Origin(g.conf.AllowedOrigins), g.HandleWS)

	if rc.InternalKey == "" {
		g.log.Warn("internal key not set, /internal routes disabled")
		return
	}
	opt := middleware.RouteOpt{InternalKey: rc.InternalKey}
	middleware.POST(r, "/internal/events", g.handleIngest, opt)
	middleware.GET(r, "/internal/rooms/:roomId", g.handleRoom, opt)
	middleware.GET(r, "/internal/presence/:userId", func(c *gin.Context) { g.handlePresence(c, rc.Lookup) }, opt)
}

func writeErr(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch errs.Code(err) {
	case errs.MalformedRequestError:
		status = http.StatusBadRequest
	case errs.UnauthenticatedError:
		status = http.StatusUnauthorized
	case errs.RecordNotFound:
		status = http.StatusNotFound
	case errs.BackboneUnavailableError:
		status = http.StatusServiceUnavailable
	}
	c.AbortWithStatusJSON(status, gin.H{"code": errs.Code(err), "msg": errs.Message(err)})
}

// handleIngest REST 层写库成功后调用；对房间内所有人广播（包括操作者）
func (g *Gateway) handleIngest(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, g.conf.MaxMessageSize))
	if err != nil {
		writeErr(c, errs.ErrMalformedRequest.WrapMsg("read body", "err", err))
		return
	}
	ev, err := ParseIngest(body)
	if err != nil {
		writeErr(c, err)
		return
	}
	if err := g.PublishFromREST(c.Request.Context(), ev); err != nil {
		g.log.Warn("ingest publish failed", zap.String("room", ev.RoomID), zap.Error(err))
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": ev.ID, "roomId": ev.RoomID})
}

func (g *Gateway) handleRoom(c *gin.Context) {
	room, err := authz.ParseRoom(c.Param("roomId"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, g.RoomSnapshot(room))
}

func (g *Gateway) handlePresence(c *gin.Context, lookup PresenceLookup) {
	userID := c.Param("userId")
	local := g.conns.ListUser(userID)
	connIDs := make([]string, 0, len(local))
	for _, conn := range local {
		connIDs = append(connIDs, conn.ID())
	}
	resp := gin.H{
		"userId":   userID,
		"instance": g.conf.InstanceID,
		"local":    connIDs,
	}
	if lookup != nil {
		all, err := lookup.Lookup(c.Request.Context(), userID)
		if err != nil {
			g.log.Warn("presence lookup failed", zap.String("userId", userID), zap.Error(err))
		} else {
			resp["cluster"] = all
		}
	}
	resp["online"] = len(connIDs) > 0 || len(asMap(resp["cluster"])) > 0
	c.JSON(http.StatusOK, resp)
}

func asMap(v any) map[string]string {
	m, _ := v.(map[string]string)
	return m
}
