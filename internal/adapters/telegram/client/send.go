package client

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/styling"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"telegram-gateway/internal/domain/gateway"
	"telegram-gateway/internal/infra/logger"
)

const defaultMIME = "application/octet-stream"

// SendFile загружает файл и отправляет его документом через messages.sendMedia.
func (c *Client) SendFile(ctx context.Context, target string, file gateway.Upload, caption string) error {
	peer, err := c.resolveChannel(ctx, target)
	if err != nil {
		return err
	}
	input, err := c.upload(ctx, file)
	if err != nil {
		return err
	}

	_, err = c.api.MessagesSendMedia(ctx, &tg.MessagesSendMediaRequest{
		Peer: peer,
		Media: &tg.InputMediaUploadedDocument{
			File:     input,
			MimeType: mimeOrDefault(file.MIME),
			Attributes: []tg.DocumentAttributeClass{
				&tg.DocumentAttributeFilename{FileName: file.Name},
			},
			ForceFile: true,
		},
		Message:  caption,
		RandomID: time.Now().UnixNano(),
	})
	if err != nil {
		return errors.Wrap(err, "messages.sendMedia")
	}
	return nil
}

// SendMessage отправляет тот же файл сообщением через высокоуровневый message.Sender.
func (c *Client) SendMessage(ctx context.Context, target string, file gateway.Upload, caption string) error {
	peer, err := c.resolveChannel(ctx, target)
	if err != nil {
		return err
	}
	input, err := c.upload(ctx, file)
	if err != nil {
		return err
	}

	doc := message.UploadedDocument(input, styling.Plain(caption)).
		Filename(file.Name).
		MIME(mimeOrDefault(file.MIME))
	if _, err := message.NewSender(c.api).To(peer).Media(ctx, doc); err != nil {
		return errors.Wrap(err, "send message")
	}
	return nil
}

func (c *Client) upload(ctx context.Context, file gateway.Upload) (tg.InputFileClass, error) {
	input, err := uploader.NewUploader(c.api).FromPath(ctx, file.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "upload %q", file.Name)
	}
	return input, nil
}

// resolveChannel находит access_hash канала: сначала в кэше пиров, затем
// перечитывая диалоги.
func (c *Client) resolveChannel(ctx context.Context, target string) (tg.InputPeerClass, error) {
	channelID, err := parseChannelTarget(target)
	if err != nil {
		return nil, err
	}

	account, err := c.peerAccount(ctx)
	if err != nil {
		logger.Warn("peer cache unavailable", zap.Error(err))
	}
	if account != nil {
		peer, ok, err := account.Channel(ctx, channelID)
		if err != nil {
			logger.Warn("peer cache lookup failed", zap.Int64("channel_id", channelID), zap.Error(err))
		}
		if ok {
			return peer, nil
		}
	}

	batch, err := fetchDialogs(ctx, c.api)
	if err != nil {
		return nil, err
	}
	c.rememberChats(ctx, batch.Chats)
	for _, chat := range batch.Chats {
		if ch, ok := chat.(*tg.Channel); ok && ch.ID == channelID {
			return &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}, nil
		}
	}
	return nil, errors.Errorf("channel %s not found in dialogs", target)
}

func mimeOrDefault(mime string) string {
	if mime == "" {
		return defaultMIME
	}
	return mime
}
