package chat

import (
	"context"
	"fmt"

	"github.com/akuznecov/whisperkit/internal/models"
	"github.com/akuznecov/whisperkit/internal/shared"
)

// AddMember adds userID to a group chat and rotates the group key so the new
// member can read messages from the new version onward but nothing before it.
// Only the chat creator may change membership.
func (s *Service) AddMember(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	unlock := s.lockChat(chatID)
	defer unlock()

	chat, err := s.memberChangeTarget(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.HasParticipant(userID) {
		return chat, nil
	}

	roster := make([]string, len(chat.Participants), len(chat.Participants)+1)
	copy(roster, chat.Participants)
	roster = append(roster, userID)

	updated, err := s.deps.Rotation.Rotate(ctx, chat, roster)
	if err != nil {
		return nil, err
	}
	s.deps.Log.Info(ctx, "member added", "chat_id", chatID, "user_id", userID, "key_version", updated.KeyVersion)
	return updated, nil
}

// RemoveMember drops userID from a group chat and rotates the key so the
// removed member cannot decrypt anything sent after the removal. Their copy
// of older keys is unaffected; history stays readable to them.
func (s *Service) RemoveMember(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	unlock := s.lockChat(chatID)
	defer unlock()

	chat, err := s.memberChangeTarget(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if userID == chat.CreatedBy {
		return nil, fmt.Errorf("%w: cannot remove the chat creator", shared.ErrAuthorization)
	}
	if !chat.HasParticipant(userID) {
		return chat, nil
	}

	roster := make([]string, 0, len(chat.Participants)-1)
	for _, id := range chat.Participants {
		if id != userID {
			roster = append(roster, id)
		}
	}

	updated, err := s.deps.Rotation.Rotate(ctx, chat, roster)
	if err != nil {
		return nil, err
	}
	s.deps.Log.Info(ctx, "member removed", "chat_id", chatID, "user_id", userID, "key_version", updated.KeyVersion)
	return updated, nil
}

func (s *Service) memberChangeTarget(ctx context.Context, chatID string) (*models.Chat, error) {
	chat, err := s.deps.Chats.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsGroup {
		return nil, fmt.Errorf("%w: direct chats have a fixed pair of participants", shared.ErrAuthorization)
	}
	if !chat.IsAdmin(s.deps.Session.UserID()) {
		return nil, fmt.Errorf("%w: only the chat creator manages membership", shared.ErrAuthorization)
	}
	return chat, nil
}

// LeaveChat removes the local user from a group chat they do not own and
// cancels their queued messages for it. The key rotation that locks them out
// is the creator's job; leaving only cleans up local state.
func (s *Service) LeaveChat(ctx context.Context, chatID string) error {
	unlock := s.lockChat(chatID)
	defer unlock()

	chat, err := s.deps.Chats.Get(ctx, chatID)
	if err != nil {
		return err
	}
	self := s.deps.Session.UserID()
	if chat.CreatedBy == self {
		return fmt.Errorf("%w: the creator cannot leave their own chat", shared.ErrAuthorization)
	}

	if err := s.outbox.CancelChat(ctx, chatID); err != nil {
		return err
	}
	if err := s.deps.Sealed.DeleteChatKey(ctx, chatID); err != nil {
		return err
	}
	s.deps.Keys.ForgetChat(chatID)
	return s.deps.Chats.Delete(ctx, chatID)
}
