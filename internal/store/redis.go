package store

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "relaychat:conv:"

// Redis appends each conversation to its own stream; the stream entry id is
// the message id.
type Redis struct {
	client *redis.Client
	maxLen int64
	now    func() time.Time
}

// RedisConfig configures NewRedis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// MaxLen caps each conversation stream (approximate trim). Zero keeps
	// everything.
	MaxLen int64
}

// NewRedis connects to Redis and verifies the connection with a ping.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	return &Redis{client: rdb, maxLen: cfg.MaxLen, now: time.Now}, nil
}

func streamKey(a, b string) string {
	return redisKeyPrefix + conversationKey(a, b)
}

// Persist implements Persister.
func (s *Redis) Persist(ctx context.Context, d Draft) (Message, error) {
	if err := d.Validate(); err != nil {
		return Message{}, wrapErr("persist", err)
	}
	created := s.now().UTC()
	args := &redis.XAddArgs{
		Stream: streamKey(d.SenderID, d.RecipientID),
		Values: map[string]interface{}{
			"sender":    d.SenderID,
			"recipient": d.RecipientID,
			"text":      d.Text,
			"file":      d.FileURL,
			"createdAt": strconv.FormatInt(created.UnixMilli(), 10),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return Message{}, wrapErr("persist", err)
	}
	return Message{
		ID:          id,
		SenderID:    d.SenderID,
		RecipientID: d.RecipientID,
		Text:        d.Text,
		FileURL:     d.FileURL,
		CreatedAt:   created,
	}, nil
}

// History implements MessageStore.
func (s *Redis) History(ctx context.Context, a, b string, limit int) ([]Message, error) {
	entries, err := s.client.XRevRangeN(ctx, streamKey(a, b), "+", "-", int64(normalizeLimit(limit))).Result()
	if err != nil {
		return nil, wrapErr("history", err)
	}
	out := make([]Message, 0, len(entries))
	for _, e := range entries {
		out = append(out, messageFromStream(e))
	}
	reverse(out)
	return out, nil
}

// Close implements MessageStore.
func (s *Redis) Close(context.Context) error {
	return s.client.Close()
}

func messageFromStream(e redis.XMessage) Message {
	str := func(k string) string {
		v, _ := e.Values[k].(string)
		return v
	}
	msg := Message{
		ID:          e.ID,
		SenderID:    str("sender"),
		RecipientID: str("recipient"),
		Text:        str("text"),
		FileURL:     str("file"),
	}
	if ms, err := strconv.ParseInt(str("createdAt"), 10, 64); err == nil {
		msg.CreatedAt = time.UnixMilli(ms).UTC()
	}
	return msg
}
