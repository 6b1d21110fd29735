package routing

import (
	"errors"
	"fmt"
)

// Причины, по которым цель события не найдена.
var (
	ErrSourceUnavailable = errors.New("source tenant unavailable")
	ErrChatNotFound      = errors.New("chat not found")
	ErrContactNotFound   = errors.New("contact not found")
	ErrTargetUnavailable = errors.New("target tenant unavailable")
	ErrMirrorNotFound    = errors.New("mirrored contact not found")
	ErrChatNotLive       = errors.New("mirrored chat not open")
	ErrNoCounterpart     = errors.New("no counterpart agent")
	ErrUnknownSource     = errors.New("unknown message source")
)

// ResolveError — цель не найдена; Reason — одна из ошибок выше.
type ResolveError struct {
	OrganizationID string
	ChatID         string
	Reason         error
	Err            error
}

func (e *ResolveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve chat %s in %s: %v: %v", e.ChatID, e.OrganizationID, e.Reason, e.Err)
	}
	return fmt.Sprintf("resolve chat %s in %s: %v", e.ChatID, e.OrganizationID, e.Reason)
}

func (e *ResolveError) Is(target error) bool { return target == e.Reason }

func (e *ResolveError) Unwrap() error { return e.Err }

// dropReason — метка метрики для отброшенного сигнала.
func dropReason(err error) string {
	var re *ResolveError
	if !errors.As(err, &re) {
		return "error"
	}
	switch re.Reason {
	case ErrSourceUnavailable:
		return "source_unavailable"
	case ErrChatNotFound:
		return "chat_not_found"
	case ErrContactNotFound:
		return "contact_not_found"
	case ErrTargetUnavailable:
		return "target_unavailable"
	case ErrMirrorNotFound:
		return "mirror_not_found"
	case ErrChatNotLive:
		return "chat_not_live"
	case ErrNoCounterpart:
		return "no_counterpart"
	default:
		return "unknown_source"
	}
}
