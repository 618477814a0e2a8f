package authz

// Visibility 频道可见性
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilityDirect  Visibility = "direct"
)

type Channel struct {
	ID          string
	WorkspaceID string
	Visibility  Visibility
	Members     []string
}

type Project struct {
	ID          string
	WorkspaceID string
	Members     []string
}

// Reason 拒绝原因，只用于日志和调用方决策，客户端看到的都是 not authorized
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonNotFound  Reason = "not_found"
	ReasonNotMember Reason = "not_member"
)

type Decision struct {
	Allowed bool
	Reason  Reason
}

var (
	Allow         = Decision{Allowed: true}
	DenyNotFound  = Decision{Reason: ReasonNotFound}
	DenyNotMember = Decision{Reason: ReasonNotMember}
)

// CanAccessChannel public 频道要求工作区成员；private/direct 要求在成员列表里
func CanAccessChannel(ch *Channel, identityID string, isWorkspaceMember bool) Decision {
	if ch == nil {
		return DenyNotFound
	}
	switch ch.Visibility {
	case VisibilityPublic:
		if isWorkspaceMember || contains(ch.Members, identityID) {
			return Allow
		}
	case VisibilityPrivate, VisibilityDirect:
		if contains(ch.Members, identityID) {
			return Allow
		}
	}
	return DenyNotMember
}

// CanAccessProject 项目成员或所在工作区成员
func CanAccessProject(p *Project, identityID string, isWorkspaceMember bool) Decision {
	if p == nil {
		return DenyNotFound
	}
	if isWorkspaceMember || contains(p.Members, identityID) {
		return Allow
	}
	return DenyNotMember
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
