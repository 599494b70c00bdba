package llm

import "context"

type ctxKeyStage struct{}

// WithStage tags the context with the name of the pipeline stage issuing
// the oracle call. Used by the logging middleware.
func WithStage(ctx context.Context, stage string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKeyStage{}, stage)
}

// StageFrom returns the stage tag, or "" when absent.
func StageFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(ctxKeyStage{}).(string); ok {
		return s
	}
	return ""
}
