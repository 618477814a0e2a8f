package errs

const (
	MalformedRequestError    = 400
	UnauthenticatedError     = 401
	UnauthorizedError        = 403
	ServerInternalError      = 500
	DeliveryFailureError     = 502
	BackboneUnavailableError = 503

	RoomNotFoundError = 4031
	NotMemberError    = 4032
	RecordNotFound    = 4040
)

var (
	ErrMalformedRequest    = NewCodeError(MalformedRequestError, "malformed request")
	ErrUnauthenticated     = NewCodeError(UnauthenticatedError, "unauthenticated")
	ErrUnauthorized        = NewCodeError(UnauthorizedError, "not authorized")
	ErrInternal            = NewCodeError(ServerInternalError, "internal error")
	ErrDeliveryFailure     = NewCodeError(DeliveryFailureError, "delivery failed")
	ErrBackboneUnavailable = NewCodeError(BackboneUnavailableError, "backbone unavailable")

	// 两者对客户端都表现为 not authorized，避免泄漏私有房间是否存在
	ErrRoomNotFound = NewCodeError(RoomNotFoundError, ErrUnauthorized.Msg)
	ErrNotMember    = NewCodeError(NotMemberError, ErrUnauthorized.Msg)

	ErrRecordNotFound = NewCodeError(RecordNotFound, "record not found")
)

func init() {
	_ = DefaultCodeRelation.Add(UnauthorizedError, RoomNotFoundError)
	_ = DefaultCodeRelation.Add(UnauthorizedError, NotMemberError)
}
