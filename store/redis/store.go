package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/nickauth/store"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "nickauth"

const (
	insertOK               int64 = 1
	insertNicknameConflict int64 = -1
	insertEmailConflict    int64 = -2
)

// KEYS: user, nickname index, email index, id set.
// ARGV: id, record, has-email flag.
const insertUserScript = `
if redis.call("EXISTS", KEYS[2]) == 1 then
  return -1
end
if ARGV[3] == "1" and redis.call("EXISTS", KEYS[3]) == 1 then
  return -2
end
redis.call("SET", KEYS[1], ARGV[2])
redis.call("SET", KEYS[2], ARGV[1])
if ARGV[3] == "1" then
  redis.call("SET", KEYS[3], ARGV[1])
end
redis.call("SADD", KEYS[4], ARGV[1])
return 1
`

var insertUserLua = redis.NewScript(insertUserScript)

// ErrImmutableField is returned when an Update closure changes a field
// that is backed by a unique index.
var ErrImmutableField = errors.New("redisstore: identity fields are immutable")

// Store persists users as JSON documents with secondary index keys:
//
//	<prefix>:u:<id>     user record
//	<prefix>:n:<nick>   nickname -> id
//	<prefix>:e:<email>  lower(email) -> id
//	<prefix>:r:<hash>   reset token hash -> id (expires with the token)
//	<prefix>:ids        set of all ids
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source used for reset index TTLs.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a Store over client. The client is owned by the caller.
func New(client redis.UniversalClient, prefix string, opts ...Option) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	s := &Store{redis: client, prefix: prefix, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) userKey(id string) string       { return s.prefix + ":u:" + id }
func (s *Store) nicknameKey(nick string) string { return s.prefix + ":n:" + nick }
func (s *Store) emailKey(email string) string   { return s.prefix + ":e:" + strings.ToLower(email) }
func (s *Store) resetKey(hash string) string    { return s.prefix + ":r:" + hash }
func (s *Store) idsKey() string                 { return s.prefix + ":ids" }

func (s *Store) FindByID(ctx context.Context, id string) (*store.User, error) {
	if id == "" {
		return nil, store.ErrNotFound
	}
	data, err := s.redis.Get(ctx, s.userKey(id)).Bytes()
	if err != nil {
		return nil, mapErr(err)
	}
	return decodeUser(data)
}

func (s *Store) FindByNickname(ctx context.Context, nickname string) (*store.User, error) {
	return s.findByIndex(ctx, s.nicknameKey(nickname))
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*store.User, error) {
	if email == "" {
		return nil, store.ErrNotFound
	}
	return s.findByIndex(ctx, s.emailKey(email))
}

// FindByResetToken resolves the reset index and re-checks the record so
// a stale index entry never yields a match.
func (s *Store) FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*store.User, error) {
	if tokenHash == "" {
		return nil, store.ErrNotFound
	}
	u, err := s.findByIndex(ctx, s.resetKey(tokenHash))
	if err != nil {
		return nil, err
	}
	if !u.ResetTokenValid(tokenHash, now) {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) findByIndex(ctx context.Context, key string) (*store.User, error) {
	id, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		return nil, mapErr(err)
	}
	return s.FindByID(ctx, id)
}

// Insert writes u and its unique indexes in one script invocation.
func (s *Store) Insert(ctx context.Context, u *store.User) (*store.User, error) {
	if u == nil || u.ID == "" || u.Nickname == "" {
		return nil, fmt.Errorf("redisstore: insert requires id and nickname")
	}
	rec := u.Clone()
	if rec.Version == 0 {
		rec.Version = 1
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", store.ErrUnavailable, err)
	}

	hasEmail := "0"
	emailKey := s.emailKey("")
	if rec.Email != "" {
		hasEmail = "1"
		emailKey = s.emailKey(rec.Email)
	}

	status, err := insertUserLua.Run(ctx, s.redis,
		[]string{s.userKey(rec.ID), s.nicknameKey(rec.Nickname), emailKey, s.idsKey()},
		rec.ID, data, hasEmail,
	).Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	switch status {
	case insertOK:
		return rec.Clone(), nil
	case insertNicknameConflict:
		return nil, &store.ConflictError{Field: store.FieldNickname}
	case insertEmailConflict:
		return nil, &store.ConflictError{Field: store.FieldEmail}
	default:
		return nil, fmt.Errorf("%w: unexpected insert status %d", store.ErrUnavailable, status)
	}
}

// Update applies fn under WATCH on the user key and commits with MULTI.
// A concurrent write aborts the transaction and fn is re-run on fresh state.
func (s *Store) Update(ctx context.Context, id string, fn store.MutateFunc) (*store.User, error) {
	key := s.userKey(id)

	for i := 0; i < store.MaxUpdateRetries; i++ {
		var updated *store.User
		var abort error

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			current, err := decodeUser(data)
			if err != nil {
				return err
			}

			next := current.Clone()
			if err := fn(next); err != nil {
				abort = err
				return err
			}
			if next.ID != current.ID || next.Nickname != current.Nickname || !strings.EqualFold(next.Email, current.Email) {
				abort = ErrImmutableField
				return abort
			}
			next.Version = current.Version + 1

			encoded, err := json.Marshal(next)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, 0)
				if current.PasswordResetToken != "" && current.PasswordResetToken != next.PasswordResetToken {
					pipe.Del(ctx, s.resetKey(current.PasswordResetToken))
				}
				if next.PasswordResetToken != "" && next.PasswordResetExpires != nil {
					if ttl := next.PasswordResetExpires.Sub(s.now()); ttl > 0 {
						pipe.Set(ctx, s.resetKey(next.PasswordResetToken), next.ID, ttl)
					}
				}
				return nil
			})
			if err != nil {
				return err
			}

			updated = next
			return nil
		}, key)

		if abort != nil {
			return nil, abort
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, mapErr(err)
		}
		return updated.Clone(), nil
	}

	return nil, store.ErrUpdateContention
}

// List loads every record and pages in memory, newest first.
func (s *Store) List(ctx context.Context, filter store.ListFilter) ([]*store.User, int, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, 0, err
	}

	filter = filter.Normalize()
	matched := make([]*store.User, 0, len(all))
	for _, u := range all {
		if filter.Matches(u) {
			matched = append(matched, u)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := filter.Offset()
	if start >= total {
		return []*store.User{}, total, nil
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	all, err := s.all(ctx)
	if err != nil {
		return store.Stats{}, err
	}
	stats := store.NewStats()
	for _, u := range all {
		stats.Add(u)
	}
	return stats, nil
}

func (s *Store) all(ctx context.Context) ([]*store.User, error) {
	ids, err := s.redis.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.userKey(id)
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	users := make([]*store.User, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		u, err := decodeUser([]byte(raw))
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// Delete removes the record and every index entry pointing at it.
func (s *Store) Delete(ctx context.Context, id string) error {
	key := s.userKey(id)

	for i := 0; i < store.MaxUpdateRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			u, err := decodeUser(data)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key, s.nicknameKey(u.Nickname))
				if u.Email != "" {
					pipe.Del(ctx, s.emailKey(u.Email))
				}
				if u.PasswordResetToken != "" {
					pipe.Del(ctx, s.resetKey(u.PasswordResetToken))
				}
				pipe.SRem(ctx, s.idsKey(), id)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return mapErr(err)
	}
	return store.ErrUpdateContention
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// Close is a no-op; the client lifecycle belongs to the caller.
func (s *Store) Close() error {
	return nil
}

func decodeUser(data []byte) (*store.User, error) {
	var u store.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("%w: decode user: %v", store.ErrUnavailable, err)
	}
	return &u, nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return store.ErrNotFound
	case errors.Is(err, store.ErrUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
}

var _ store.Store = (*Store)(nil)
