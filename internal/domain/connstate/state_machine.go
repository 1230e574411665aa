// Пакет connstate — конечный автомат состояния подключения к удалённой шаре.
//
// Жизненный цикл:
//   - unconfigured — конфигурация отсутствует
//   - disconnected — конфигурация сохранена, подключение не активно
//   - connected — конфигурация сохранена, подключение работает
//
// Сбой пробы или синхронизации переводит connected → disconnected,
// НЕ сбрасывая конфигурацию: временный сбой сети не требует повторной
// настройки. Сброс в unconfigured — только явный disconnect.
//
// Потокобезопасен через sync.RWMutex.
package connstate

import (
	"fmt"
	"sync"
	"time"
)

// State — состояние подключения.
type State string

const (
	// StateUnconfigured — конфигурация не задана
	StateUnconfigured State = "unconfigured"
	// StateDisconnected — конфигурация есть, подключение не активно
	StateDisconnected State = "disconnected"
	// StateConnected — подключение активно
	StateConnected State = "connected"
)

// TransitionRecord — запись о переходе между состояниями.
type TransitionRecord struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Machine — конечный автомат состояния подключения.
type Machine struct {
	mu      sync.RWMutex
	current State
	history []TransitionRecord
}

// validTransitions — матрица допустимых переходов.
// Ключ — текущее состояние, значение — набор допустимых целевых состояний.
var validTransitions = map[State]map[State]bool{
	StateUnconfigured: {StateConnected: true, StateDisconnected: true},
	StateDisconnected: {StateConnected: true, StateUnconfigured: true},
	StateConnected:    {StateDisconnected: true, StateUnconfigured: true},
}

// New создаёт автомат с начальным состоянием.
// Возвращает ошибку, если состояние невалидное.
func New(initial State) (*Machine, error) {
	if !isValidState(initial) {
		return nil, fmt.Errorf("недопустимое начальное состояние: %q", initial)
	}

	return &Machine{
		current: initial,
		history: make([]TransitionRecord, 0),
	}, nil
}

// Current возвращает текущее состояние.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// CanTransitionTo проверяет, допустим ли переход в указанное состояние.
func (m *Machine) CanTransitionTo(target State) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	transitions, ok := validTransitions[m.current]
	if !ok {
		return false
	}
	return transitions[target]
}

// TransitionTo выполняет переход в указанное состояние.
// reason — причина перехода (для истории и логов).
// Переход в текущее состояние — no-op без записи в историю.
func (m *Machine) TransitionTo(target State, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !isValidState(target) {
		return &TransitionError{
			Code:    "INVALID_TRANSITION",
			Message: fmt.Sprintf("недопустимое целевое состояние: %q", target),
		}
	}

	if target == m.current {
		return nil
	}

	transitions, ok := validTransitions[m.current]
	if !ok || !transitions[target] {
		return &TransitionError{
			Code: "INVALID_TRANSITION",
			Message: fmt.Sprintf("переход %s → %s недопустим",
				m.current, target),
		}
	}

	m.history = append(m.history, TransitionRecord{
		From:      m.current,
		To:        target,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
	m.current = target

	return nil
}

// History возвращает историю переходов (копия).
func (m *Machine) History() []TransitionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]TransitionRecord, len(m.history))
	copy(result, m.history)
	return result
}

// TransitionError — ошибка перехода между состояниями.
type TransitionError struct {
	Code    string // Машиночитаемый код
	Message string // Человекочитаемое описание
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// isValidState проверяет, является ли строка допустимым состоянием.
func isValidState(s State) bool {
	switch s {
	case StateUnconfigured, StateDisconnected, StateConnected:
		return true
	default:
		return false
	}
}
