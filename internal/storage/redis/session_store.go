package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/goodtune/gamehall/internal/storage"
	"github.com/redis/go-redis/v9"
)

type sessionStore struct {
	client *redis.Client
}

// Open records a new session and occupies its station
func (s *sessionStore) Open(ctx context.Context, session storage.Session) (*storage.Session, error) {
	script := redis.NewScript(openSessionScript)

	budget := session.BudgetMinutes
	if session.Kind == storage.KindUnlimited {
		budget = nil
	}

	keys := []string{
		stationKey(session.StationID),
		sessionKey(session.ID),
		keySessionsActive,
		keySessionsStart,
	}
	args := []interface{}{
		session.ID,
		session.StationID,
		session.PlayerName,
		string(session.Mode),
		string(session.Kind),
		formatOptionalInt(budget),
		session.StartTime.Format(time.RFC3339Nano),
		startScore(session.StartTime),
	}

	reply, err := script.Run(ctx, s.client, keys, args...).Text()
	if err != nil {
		return nil, err
	}
	if err := scriptError(reply); err != nil {
		return nil, err
	}
	return s.Get(ctx, session.ID)
}

// Get retrieves a session by ID
func (s *sessionStore) Get(ctx context.Context, id string) (*storage.Session, error) {
	data, err := s.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, err
	}
	return parseSession(data)
}

// ListActive returns all active sessions
func (s *sessionStore) ListActive(ctx context.Context) ([]storage.Session, error) {
	ids, err := s.client.SMembers(ctx, keySessionsActive).Result()
	if err != nil {
		return nil, err
	}
	sessions, err := s.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}
	storage.SortSessions(sessions)
	return sessions, nil
}

// ListStartedBetween returns sessions with from <= start_time < to
func (s *sessionStore) ListStartedBetween(ctx context.Context, from, to time.Time) ([]storage.Session, error) {
	ids, err := s.client.ZRangeByScore(ctx, keySessionsStart, &redis.ZRangeBy{
		Min: strconv.FormatInt(startScore(from), 10),
		Max: "(" + strconv.FormatInt(startScore(to), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	sessions, err := s.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}
	storage.SortSessions(sessions)
	return sessions, nil
}

func (s *sessionStore) fetch(ctx context.Context, ids []string) ([]storage.Session, error) {
	if len(ids) == 0 {
		return []storage.Session{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, sessionKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	sessions := make([]storage.Session, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		session, err := parseSession(data)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, nil
}

// Extend adds minutes to a limited session's budget
func (s *sessionStore) Extend(ctx context.Context, id string, minutes int) (*storage.Session, error) {
	script := redis.NewScript(extendSessionScript)
	return s.runAndGet(ctx, script, id, []string{sessionKey(id)}, minutes)
}

// Convert turns a session unlimited
func (s *sessionStore) Convert(ctx context.Context, id string) (*storage.Session, error) {
	script := redis.NewScript(convertSessionScript)
	return s.runAndGet(ctx, script, id, []string{sessionKey(id)})
}

// Close seals a session and releases its station
func (s *sessionStore) Close(ctx context.Context, req storage.CloseRequest) (*storage.Session, error) {
	// station_id is immutable, so reading it ahead of the script is safe
	stationID, err := s.client.HGet(ctx, sessionKey(req.SessionID), "station_id").Result()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	script := redis.NewScript(closeSessionScript)
	keys := []string{sessionKey(req.SessionID), keySessionsActive, stationKey(stationID)}
	return s.runAndGet(ctx, script, req.SessionID, keys,
		req.SessionID,
		req.EndTime.Format(time.RFC3339Nano),
		req.ElapsedMinutes,
		req.Cost,
		req.Rate,
	)
}

// Record stores a closed session that never ran here
func (s *sessionStore) Record(ctx context.Context, session storage.Session, elapsedMinutes int64) (*storage.Session, error) {
	script := redis.NewScript(recordSessionScript)

	var end string
	if session.EndTime != nil {
		end = session.EndTime.Format(time.RFC3339Nano)
	}
	keys := []string{
		sessionKey(session.ID),
		keySessionsStart,
		stationKey(session.StationID),
	}
	return s.runAndGet(ctx, script, session.ID, keys,
		session.ID,
		session.StationID,
		session.PlayerName,
		string(session.Mode),
		string(session.Kind),
		formatOptionalInt(session.BudgetMinutes),
		session.StartTime.Format(time.RFC3339Nano),
		startScore(session.StartTime),
		end,
		formatOptionalInt64(session.FinalCost),
		formatOptionalInt64(session.FinalRate),
		elapsedMinutes,
	)
}

// Clear deletes closed sessions and resets station totals
func (s *sessionStore) Clear(ctx context.Context) (int, error) {
	script := redis.NewScript(clearSessionsScript)
	keys := []string{keySessionsStart, keyStations}
	deleted, err := script.Run(ctx, s.client, keys, keySessionPrefix, keyStationPrefix).Int()
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *sessionStore) runAndGet(ctx context.Context, script *redis.Script, id string, keys []string, args ...interface{}) (*storage.Session, error) {
	reply, err := script.Run(ctx, s.client, keys, args...).Text()
	if err != nil {
		return nil, err
	}
	if err := scriptError(reply); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}
