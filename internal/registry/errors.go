package registry

import (
	"errors"

	"github.com/shaiso/Conveyor/internal/engine"
)

// Ошибки реестра.
var (
	// ErrDuplicateTask — task с таким ID уже зарегистрирован.
	ErrDuplicateTask = errors.New("task already registered")

	// ErrNotFound — task не найден.
	ErrNotFound = errors.New("task not found")

	// ErrAlreadyTerminal — task уже в финальном статусе.
	ErrAlreadyTerminal = errors.New("task already in terminal state")

	// ErrNotTerminal — результат ещё недоступен.
	ErrNotTerminal = errors.New("task has not finished yet")

	// ErrInvalidTransition — переход не разрешён машиной состояний.
	ErrInvalidTransition = errors.New("invalid task state transition")

	// ErrEmptyTaskID — пустой ID.
	ErrEmptyTaskID = errors.New("task has empty ID")

	// ErrNilBody — у task нет тела.
	ErrNilBody = errors.New("task has nil body")

	// ErrSelfDependency — task зависит от самого себя.
	ErrSelfDependency = engine.ErrSelfDependency

	// ErrCyclicDependency — регистрация замкнула бы цикл.
	ErrCyclicDependency = engine.ErrCyclicDependency
)
