package domain

import "context"

type attemptKey struct{}

// WithAttempt кладёт номер попытки в ctx тела task.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey{}, attempt)
}

// AttemptFromContext возвращает номер текущей попытки или 0,
// если тело вызвано вне пула.
func AttemptFromContext(ctx context.Context) int {
	if attempt, ok := ctx.Value(attemptKey{}).(int); ok {
		return attempt
	}
	return 0
}
