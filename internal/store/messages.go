package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tavernlink/internal/access"
	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/envelope"
	"github.com/tavernlink/internal/event"
	"github.com/tavernlink/internal/logger"
	"github.com/tavernlink/internal/model"
)

// SendMessage сохраняет текстовое сообщение (content — конверт envelope, сервер его не расшифровывает).
func (s *Store) SendMessage(ctx context.Context, actorID, channelID, content string) (*model.Message, error) {
	defer logger.DeferLogDuration("store.SendMessage", time.Now())()
	if strings.TrimSpace(content) == "" {
		return nil, apperr.New(apperr.Invalid, "empty message")
	}
	if len(content) > MaxContentLength {
		return nil, apperr.New(apperr.Invalid, "message too long")
	}
	if s.strict && !envelope.LooksLikeEnvelope(content) {
		return nil, apperr.New(apperr.Invalid, "message content must be an encrypted envelope")
	}
	if _, err := s.CheckPost(ctx, actorID, channelID); err != nil {
		return nil, err
	}
	m := &model.Message{ChannelID: channelID, AuthorID: actorID, Content: content, Kind: model.MessageText}
	if err := s.post(ctx, actorID, m); err != nil {
		return nil, err
	}
	return m, nil
}

// CheckPost проверяет, что актор может писать в канал. Вызывается перед приёмом файла,
// чтобы не сохранять blob, который нельзя прикрепить.
func (s *Store) CheckPost(ctx context.Context, actorID, channelID string) (*model.Channel, error) {
	a, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	ch, _, err := s.channelFor(ctx, a, channelID)
	return ch, err
}

// CreateAttachmentMessage записывает сообщение image/file для уже сохранённого файла.
// content — URL файла открытым текстом.
func (s *Store) CreateAttachmentMessage(ctx context.Context, actorID, channelID string, att model.Attachment) (*model.Message, error) {
	defer logger.DeferLogDuration("store.CreateAttachmentMessage", time.Now())()
	if !att.Kind.HasAttachment() {
		return nil, apperr.New(apperr.Invalid, "attachment must be an image or a file")
	}
	if _, err := s.CheckPost(ctx, actorID, channelID); err != nil {
		return nil, err
	}
	m := &model.Message{
		ChannelID: channelID,
		AuthorID:  actorID,
		Content:   att.URL,
		Kind:      att.Kind,
		FileName:  att.FileName,
		FileSize:  HumanSize(att.Size),
	}
	if err := s.post(ctx, actorID, m); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateNarration публикует сгенерированный текст от имени рассказчика (NarratorID, вид system).
// Право — у админов, power_user и пользователей с флагом рассказчика.
func (s *Store) CreateNarration(ctx context.Context, actorID, channelID, envelopeContent string) (*model.Message, error) {
	defer logger.DeferLogDuration("store.CreateNarration", time.Now())()
	a, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !access.For(a).CanNarrate() {
		return nil, apperr.New(apperr.Forbidden, "narration requires the narrator flag")
	}
	if _, _, err := s.channelFor(ctx, a, channelID); err != nil {
		return nil, err
	}
	m := &model.Message{ChannelID: channelID, AuthorID: model.NarratorID, Content: envelopeContent, Kind: model.MessageSystem}
	if err := s.post(ctx, actorID, m); err != nil {
		return nil, err
	}
	return m, nil
}

// post коммитит сообщение и публикует message_created под блокировкой канала:
// порядок событий канала совпадает с порядком коммитов. Видимость перепроверяется под блокировкой,
// так что исключённый между проверкой и записью участник сообщение не оставит.
func (s *Store) post(ctx context.Context, actorID string, m *model.Message) error {
	unlock := s.locks.Lock(channelKey(m.ChannelID))
	defer unlock()
	if !s.dir.CanObserveChannel(actorID, m.ChannelID) {
		return apperr.New(apperr.Forbidden, "channel is not visible")
	}
	m.ID = uuid.New().String()
	m.CreatedAt = s.now()
	if err := s.b.Messages.Create(ctx, m); err != nil {
		return err
	}
	s.pub.Publish(event.MessageCreated{Message: *m})
	return nil
}

// History — последние HistoryLimit сообщений канала в порядке создания.
func (s *Store) History(ctx context.Context, actorID, channelID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("store.History", time.Now())()
	a, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.channelFor(ctx, a, channelID); err != nil {
		return nil, err
	}
	return s.b.Messages.ListRecent(ctx, channelID, s.limit)
}

// DeleteMessage ставит tombstone. Удаление уже удалённого сообщения ничего не меняет и событие не
// повторяет. Порядок: tombstone, удаление файла вложения, событие. Неудачная запись tombstone
// оставляет файл на месте; неудачное удаление файла только логируется.
func (s *Store) DeleteMessage(ctx context.Context, actorID, messageID string) (*model.Message, error) {
	defer logger.DeferLogDuration("store.DeleteMessage", time.Now())()
	a, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	m, err := s.b.Messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.channelFor(ctx, a, m.ChannelID); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(channelKey(m.ChannelID))
	defer unlock()

	m, err = s.b.Messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !access.For(a).CanModerate(m) {
		return nil, apperr.New(apperr.Forbidden, "only the author or a moderator can delete this message")
	}
	if m.IsDeleted {
		return m, nil
	}
	changed, err := s.b.Messages.Tombstone(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if changed && m.Kind.HasAttachment() {
		if err := s.purge([]string{m.Content}); err != nil {
			logger.Errorf("store.DeleteMessage: message %s tombstoned, attachment left behind: %v", m.ID, err)
		}
	}
	m.IsDeleted = true
	m.Content = ""
	if changed {
		s.pub.Publish(event.MessageDeleted{ID: m.ID, ChannelID: m.ChannelID})
	}
	return m, nil
}

// Subscribe присоединяет подписчика к каналу без потерь и дублей: под блокировкой канала читается
// история (после sinceID, если он задан и найден, иначе последние HistoryLimit) и вызывается attach.
// Пока attach не вернулся, новые события канала не публикуются. truncated — после sinceID пропущено
// больше HistoryLimit сообщений (или sinceID не найден): клиенту нужна полная история через REST.
func (s *Store) Subscribe(ctx context.Context, userID, channelID, sinceID string, attach func(history []model.Message, truncated bool)) error {
	if _, err := s.b.Channels.GetByID(ctx, channelID); err != nil {
		return err
	}
	unlock := s.locks.Lock(channelKey(channelID))
	defer unlock()
	if !s.dir.CanObserveChannel(userID, channelID) {
		return apperr.New(apperr.Forbidden, "channel is not visible")
	}
	var (
		history   []model.Message
		truncated bool
		err       error
	)
	if sinceID != "" {
		// на одно больше лимита: так виден разрыв
		history, err = s.b.Messages.ListAfter(ctx, channelID, sinceID, s.limit+1)
		switch {
		case apperr.Is(err, apperr.NotFound):
			truncated = true
			history, err = s.b.Messages.ListRecent(ctx, channelID, s.limit)
		case err == nil && len(history) > s.limit:
			truncated = true
			history = history[len(history)-s.limit:]
		}
	} else {
		history, err = s.b.Messages.ListRecent(ctx, channelID, s.limit)
	}
	if err != nil {
		return err
	}
	attach(history, truncated)
	return nil
}

// HumanSize форматирует размер файла для подписи вложения ("512 B", "1.5 MB").
func HumanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
