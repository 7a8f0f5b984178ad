package nlu

import "context"

// Request sources recorded in the audit log.
const (
	SourceHTTP   = "http"
	SourceWorker = "worker"
	SourceCLI    = "cli"
	SourceGRPC   = "grpc"
)

// RequestMeta identifies the caller of an operation for audit and events.
type RequestMeta struct {
	RequestID string
	Source    string
}

type requestMetaKey struct{}

// WithRequestMeta attaches meta to ctx.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom returns the attached meta, defaulting Source to http.
func RequestMetaFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	if meta.Source == "" {
		meta.Source = SourceHTTP
	}
	return meta
}

//Personal.AI order the ending
