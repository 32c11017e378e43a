// Package peers — персистентный кэш каналов на bbolt через gotd/contrib.
// Кэш нужен отправке файлов: по идентификатору канала из запроса он отдаёт
// tg.InputPeerChannel с access_hash, полученным при последнем чтении диалогов.
// Access hash принадлежит конкретному аккаунту, поэтому у каждого аккаунта
// своя корзина "peers:<self id>".
package peers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	bboltdb "github.com/gotd/contrib/bbolt"
	contribstorage "github.com/gotd/contrib/storage"
	"github.com/gotd/td/telegram/query/dialogs"
	"github.com/gotd/td/tg"
	"go.etcd.io/bbolt"

	"telegram-gateway/internal/infra/storage"
)

const (
	bucketPrefix  = "peers:"
	dbOpenTimeout = time.Second
)

// Cache — открытый файл bbolt, общий для всех клиентов процесса.
type Cache struct {
	db *bbolt.DB
}

// Open открывает (или создаёт) файл кэша.
func Open(path string) (*Cache, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("peers: db path is empty")
	}
	if err := storage.EnsureDir(path); err != nil {
		return nil, errors.Wrap(err, "peers: ensure dir")
	}

	db, err := bbolt.Open(path, storage.DefaultFilePerm, &bbolt.Options{Timeout: dbOpenTimeout})
	if err != nil {
		return nil, errors.Wrap(err, "peers: open db")
	}
	return &Cache{db: db}, nil
}

// Close закрывает файл базы.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Account возвращает хранилище пиров аккаунта selfID, создавая корзину при необходимости.
func (c *Cache) Account(selfID int64) (*Account, error) {
	if c == nil || c.db == nil {
		return nil, errors.New("peers: cache is closed")
	}
	bucket := []byte(bucketPrefix + strconv.FormatInt(selfID, 10))
	if err := c.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		return nil, errors.Wrapf(err, "peers: create bucket for %d", selfID)
	}
	return &Account{store: bboltdb.NewPeerStorage(c.db, bucket)}, nil
}

// Account — пиры одного аккаунта.
type Account struct {
	store contribstorage.PeerStorage
}

// SaveChats сохраняет каналы из списка сущностей. Прочие типы чатов пропускаются.
// Возвращает число сохранённых каналов.
func (a *Account) SaveChats(ctx context.Context, chats []tg.ChatClass) (int, error) {
	saved := 0
	for _, chat := range chats {
		switch chat.(type) {
		case *tg.Channel, *tg.ChannelForbidden:
		default:
			continue
		}

		var p contribstorage.Peer
		if !p.FromChat(chat) {
			continue
		}
		if err := a.store.Add(ctx, p); err != nil {
			return saved, fmt.Errorf("peers: add channel %d: %w", chat.GetID(), err)
		}
		saved++
	}
	return saved, nil
}

// Channel ищет канал по идентификатору без префикса. ok=false, если канал не встречался.
func (a *Account) Channel(ctx context.Context, channelID int64) (*tg.InputPeerChannel, bool, error) {
	value, err := a.store.Find(ctx, contribstorage.PeerKey{Kind: dialogs.Channel, ID: channelID})
	if errors.Is(err, contribstorage.ErrPeerNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("peers: lookup channel %d: %w", channelID, err)
	}
	return &tg.InputPeerChannel{ChannelID: value.Key.ID, AccessHash: value.Key.AccessHash}, true, nil
}
