package chat

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Session связывает окно памяти и агента.
type Session struct {
	window Window
	agent  Asker
}

// NewSession создаёт сессию.
func NewSession(window Window, agent Asker) *Session {
	return &Session{window: window, agent: agent}
}

// Send кладёт сообщение в окно, спрашивает агента и кладёт ответ.
// ok=false — ответа нет, в окне остаётся только сообщение пользователя.
func (s *Session) Send(ctx context.Context, userID int64, text string) (string, bool) {
	if err := s.window.Append(ctx, userID, Turn{Role: RoleUser, Content: text}); err != nil {
		// Окно — вспомогательная память, без него агент всё равно ответит
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось сохранить сообщение в окно")
	}

	reply, err := s.agent.Ask(ctx, userID, text)
	if err != nil || reply == "" {
		return "", false
	}

	if err := s.window.Append(ctx, userID, Turn{Role: RoleAssistant, Content: reply}); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось сохранить ответ в окно")
	}
	return reply, true
}

// Recent — текущее окно пользователя.
func (s *Session) Recent(ctx context.Context, userID int64) ([]Turn, error) {
	return s.window.Recent(ctx, userID)
}

// Clear очищает окно (новый диалог).
func (s *Session) Clear(ctx context.Context, userID int64) error {
	if err := s.window.Clear(ctx, userID); err != nil {
		return err
	}
	log.WithField("user_id", userID).Info("Очищена история диалога")
	return nil
}
