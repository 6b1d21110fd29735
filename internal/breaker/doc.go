// Package breaker реализует circuit breaker для внешних зависимостей
// (WhatsApp-gateway и любые другие HTTP API).
//
// Один экземпляр Breaker на имя зависимости. Экземпляры живут в Registry
// и разделяются всеми местами вызова этой зависимости в процессе.
//
// Состояния:
//
//	CLOSED ──threshold подряд ошибок──▶ OPEN
//	OPEN ──прошло openTimeout с последней ошибки──▶ HALF_OPEN (пробный вызов)
//	HALF_OPEN ──любая ошибка──▶ OPEN
//	HALF_OPEN ──успех, и с последней ошибки прошло resetTimeout──▶ CLOSED
//
// В OPEN вызов отклоняется сразу, без обращения к сети, с ошибкой
// *CircuitBreakerError (errors.Is(err, ErrCircuitOpen) == true).
//
// Использование:
//
//	br := registry.Get("whatsapp-gateway")
//	state, err := breaker.Do(ctx, br, func(ctx context.Context) (string, error) {
//	    return client.ConnectionState(ctx, instance)
//	})
package breaker
