package middlewares

type ctxKey string

const (
	CtxRole      ctxKey = "role"
	CtxRequestID ctxKey = "request_id"
	CtxJobID     ctxKey = "job_id"
	KeyActor     ctxKey = "actor"
)
