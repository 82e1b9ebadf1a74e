package executor

import (
	"errors"

	"github.com/shaiso/Conveyor/internal/registry"
)

// Ошибки, видимые вызывающей стороне.
var (
	ErrDuplicateTask    = registry.ErrDuplicateTask
	ErrNotFound         = registry.ErrNotFound
	ErrAlreadyTerminal  = registry.ErrAlreadyTerminal
	ErrNotTerminal      = registry.ErrNotTerminal
	ErrCyclicDependency = registry.ErrCyclicDependency

	// ErrAlreadyStarted — фоновый цикл уже запущен.
	ErrAlreadyStarted = errors.New("executor already started")
)
