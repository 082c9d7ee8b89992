package models

import "errors"

// Ошибки доменного уровня. Проверяются через errors.Is на всех слоях выше.
var (
	// ErrInvalidAmount — сумма операции не положительная.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInsufficientFunds — свободного баланса не хватает на операцию.
	ErrInsufficientFunds = errors.New("insufficient free balance")
	// ErrIntegrity — нарушен инвариант кошелька (total == free + locked, все >= 0).
	// Такая ошибка означает баг, а не ожидаемый сценарий: операция обязана
	// прерваться, состояние не исправляется молча.
	ErrIntegrity = errors.New("wallet ledger integrity violation")
)
