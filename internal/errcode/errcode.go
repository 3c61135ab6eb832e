package errcode

// 错误码约定：
// - 0：无错误
// - 4xxx：请求方可处理的错误（参数、鉴权、状态冲突）
// - 5xxx：系统错误（存储、身份服务不可用）
const (
	OK                  = 0
	InvalidRequest      = 4000
	Unauthorized        = 4001
	EntryRequired       = 4003
	ResourceMissing     = 4004
	NotAwaitingInput    = 4009
	RateLimited         = 4029
	SystemError         = 5000
	ProfileSaveFailed   = 5001
	IdentityUnavailable = 5003
)
