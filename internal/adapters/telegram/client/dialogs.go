package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"telegram-gateway/internal/domain/gateway"
	"telegram-gateway/internal/infra/logger"
	tgruntime "telegram-gateway/internal/infra/telegram/runtime"
)

const (
	dialogFetchWaitMinMs  = 300
	dialogFetchWaitMaxMs  = 800
	dialogFetchPageLimit  = 100
	dialogFetchZeroOffset = 0

	// channelIDShift — сдвиг "помеченного" идентификатора канала (-100…).
	channelIDShift int64 = 1_000_000_000_000
)

var errDialogsNotModified = errors.New("dialogs not modified")

// Dialogs выгружает все диалоги и попутно сохраняет каналы в кэш пиров.
func (c *Client) Dialogs(ctx context.Context) ([]gateway.Dialog, error) {
	batch, err := fetchDialogs(ctx, c.api)
	if err != nil {
		return nil, err
	}

	c.rememberChats(ctx, batch.Chats)
	return convertDialogs(batch), nil
}

// rememberChats пишет каналы в кэш. Ошибка кэша не мешает ответу.
func (c *Client) rememberChats(ctx context.Context, chats []tg.ChatClass) {
	account, err := c.peerAccount(ctx)
	if err != nil {
		logger.Warn("peer cache unavailable", zap.Error(err))
		return
	}
	if account == nil {
		return
	}
	saved, err := account.SaveChats(ctx, chats)
	if err != nil {
		logger.Warn("peer cache update failed", zap.Error(err))
		return
	}
	logger.Debugf("peer cache updated: %d channels", saved)
}

// fetchDialogs последовательно выгружает весь список диалогов через MessagesGetDialogs.
// Пагинация по (offset_date, offset_id, offset_peer), access_hash для offset_peer
// берутся из уже полученных страниц.
func fetchDialogs(ctx context.Context, api *tg.Client) (*tg.MessagesDialogs, error) {
	result := &tg.MessagesDialogs{}

	offsetDate := dialogFetchZeroOffset
	offsetID := dialogFetchZeroOffset
	var offsetPeer tg.InputPeerClass = &tg.InputPeerEmpty{}

	userHashes := make(map[int64]int64)
	channelHashes := make(map[int64]int64)

	for {
		resp, err := api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetDate: offsetDate,
			OffsetID:   offsetID,
			OffsetPeer: offsetPeer,
			Limit:      dialogFetchPageLimit,
		})
		if err != nil {
			return nil, errors.Wrap(err, "messages.getDialogs")
		}

		batch, err := normalizeDialogsResponse(resp)
		if err != nil {
			if errors.Is(err, errDialogsNotModified) {
				return result, nil
			}
			return nil, err
		}
		if len(batch.Dialogs) == 0 {
			break
		}

		result.Dialogs = append(result.Dialogs, batch.Dialogs...)
		result.Messages = append(result.Messages, batch.Messages...)
		result.Chats = append(result.Chats, batch.Chats...)
		result.Users = append(result.Users, batch.Users...)

		updateHashesFromBatch(batch, userHashes, channelHashes)

		if len(batch.Dialogs) < dialogFetchPageLimit {
			break
		}

		prevDate, prevID := offsetDate, offsetID
		offsetDate, offsetID, offsetPeer = nextOffset(batch, userHashes, channelHashes)
		if offsetDate == dialogFetchZeroOffset {
			offsetDate = prevDate
		}
		if offsetID == dialogFetchZeroOffset {
			offsetID = prevID
		}

		if err := tgruntime.WaitRandomTimeMs(ctx, dialogFetchWaitMinMs, dialogFetchWaitMaxMs); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// nextOffset вычисляет смещение следующей страницы по последнему диалогу.
func nextOffset(batch *tg.MessagesDialogs, userHashes, channelHashes map[int64]int64) (int, int, tg.InputPeerClass) {
	var topMessage int
	var peer tg.PeerClass

	switch dlg := batch.Dialogs[len(batch.Dialogs)-1].(type) {
	case *tg.Dialog:
		topMessage, peer = dlg.TopMessage, dlg.Peer
	case *tg.DialogFolder:
		topMessage, peer = dlg.TopMessage, dlg.Peer
	default:
		return dialogFetchZeroOffset, dialogFetchZeroOffset, &tg.InputPeerEmpty{}
	}
	return messageDate(batch.Messages, topMessage), topMessage, dialogPeerToInput(peer, userHashes, channelHashes)
}

func normalizeDialogsResponse(resp tg.MessagesDialogsClass) (*tg.MessagesDialogs, error) {
	switch data := resp.(type) {
	case *tg.MessagesDialogs:
		return data, nil
	case *tg.MessagesDialogsSlice:
		return &tg.MessagesDialogs{
			Dialogs:  data.Dialogs,
			Messages: data.Messages,
			Chats:    data.Chats,
			Users:    data.Users,
		}, nil
	case *tg.MessagesDialogsNotModified:
		return nil, errDialogsNotModified
	default:
		return nil, fmt.Errorf("unexpected dialogs response: %T", resp)
	}
}

func updateHashesFromBatch(batch *tg.MessagesDialogs, userHashes, channelHashes map[int64]int64) {
	for _, entity := range batch.Users {
		if user, ok := entity.(*tg.User); ok {
			userHashes[user.ID] = user.AccessHash
		}
	}
	for _, entity := range batch.Chats {
		if channel, ok := entity.(*tg.Channel); ok {
			channelHashes[channel.ID] = channel.AccessHash
		}
	}
}

func messageDate(messages []tg.MessageClass, id int) int {
	for _, msg := range messages {
		switch item := msg.(type) {
		case *tg.Message:
			if item.ID == id {
				return item.Date
			}
		case *tg.MessageService:
			if item.ID == id {
				return item.Date
			}
		}
	}
	return dialogFetchZeroOffset
}

func dialogPeerToInput(peer tg.PeerClass, userHashes, channelHashes map[int64]int64) tg.InputPeerClass {
	switch entity := peer.(type) {
	case *tg.PeerUser:
		return &tg.InputPeerUser{UserID: entity.UserID, AccessHash: userHashes[entity.UserID]}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: entity.ChatID}
	case *tg.PeerChannel:
		return &tg.InputPeerChannel{ChannelID: entity.ChannelID, AccessHash: channelHashes[entity.ChannelID]}
	default:
		return &tg.InputPeerEmpty{}
	}
}

// convertDialogs переводит диалоги в записи шлюза, сохраняя порядок ответа.
// Идентификаторы: пользователь — как есть, группа — -id, канал — -100…id.
func convertDialogs(batch *tg.MessagesDialogs) []gateway.Dialog {
	users := make(map[int64]*tg.User, len(batch.Users))
	for _, u := range batch.Users {
		if user, ok := u.(*tg.User); ok {
			users[user.ID] = user
		}
	}
	chats := make(map[int64]tg.ChatClass, len(batch.Chats))
	for _, ch := range batch.Chats {
		chats[ch.GetID()] = ch
	}

	out := make([]gateway.Dialog, 0, len(batch.Dialogs))
	for _, d := range batch.Dialogs {
		dlg, ok := d.(*tg.Dialog)
		if !ok {
			continue
		}
		switch peer := dlg.Peer.(type) {
		case *tg.PeerUser:
			out = append(out, gateway.Dialog{ID: peer.UserID, Title: userTitle(users[peer.UserID])})
		case *tg.PeerChat:
			out = append(out, gateway.Dialog{ID: -peer.ChatID, Title: chatTitle(chats[peer.ChatID])})
		case *tg.PeerChannel:
			out = append(out, gateway.Dialog{
				ID:        markChannelID(peer.ChannelID),
				Title:     chatTitle(chats[peer.ChannelID]),
				IsChannel: true,
			})
		}
	}
	return out
}

func userTitle(user *tg.User) string {
	if user == nil {
		return ""
	}
	title := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if title == "" {
		title = user.Username
	}
	return title
}

func chatTitle(chat tg.ChatClass) string {
	switch c := chat.(type) {
	case *tg.Chat:
		return c.Title
	case *tg.ChatForbidden:
		return c.Title
	case *tg.Channel:
		return c.Title
	case *tg.ChannelForbidden:
		return c.Title
	default:
		return ""
	}
}

// markChannelID переводит идентификатор канала в помеченную форму -100…id.
func markChannelID(id int64) int64 {
	return -channelIDShift - id
}

// parseChannelTarget принимает помеченный (-100…) или голый идентификатор канала
// и возвращает голый.
func parseChannelTarget(target string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(target), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid channel id %q", target)
	}
	switch {
	case id < -channelIDShift:
		return -id - channelIDShift, nil
	case id > 0:
		return id, nil
	default:
		return 0, fmt.Errorf("channel id %q is not a channel", target)
	}
}
