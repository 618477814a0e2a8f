package handlers

import "PPCollab/service/chat"

// All 全部上行事件的处理器
func All() []chat.Handler {
	return []chat.Handler{
		NewChannelJoinHandler(),
		NewChannelLeaveHandler(),
		NewProjectJoinHandler(),
		NewProjectLeaveHandler(),
		NewMessageSendHandler(),
		NewMessageEditHandler(),
		NewMessageDeleteHandler(),
		NewMessageReadHandler(),
		NewTypingStartHandler(),
		NewTypingStopHandler(),
		NewTaskCreateHandler(),
		NewTaskUpdateHandler(),
	}
}

// Register 注册到 router
func Register(r *chat.Router) *chat.Router {
	return r.Register(All()...)
}
