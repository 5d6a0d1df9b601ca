package redis

// Every script returns a status string; see scriptError for the mapping.
const (
	// createStationScript adds a station unless the id is taken
	createStationScript = `
local station_key = KEYS[1]   -- gamehall:station:{id}
local stations_set = KEYS[2]  -- gamehall:stations

if redis.call('EXISTS', station_key) == 1 then
  return 'DUPLICATE'
end

redis.call('HSET', station_key,
  'id', ARGV[1],
  'name', ARGV[2],
  'status', ARGV[3],
  'total_play_time', ARGV[4],
  'total_revenue', ARGV[5],
  'created_at', ARGV[6]
)
redis.call('SADD', stations_set, ARGV[1])

return 'OK'
`

	// deleteStationScript removes a station only while it is available
	deleteStationScript = `
local station_key = KEYS[1]   -- gamehall:station:{id}
local stations_set = KEYS[2]  -- gamehall:stations

local status = redis.call('HGET', station_key, 'status')
if not status then
  return 'NOT_FOUND'
end
if status ~= 'available' then
  return 'OCCUPIED'
end

redis.call('DEL', station_key)
redis.call('SREM', stations_set, ARGV[1])

return 'OK'
`

	// openSessionScript occupies the station and records the session in one step
	openSessionScript = `
local station_key = KEYS[1]   -- gamehall:station:{stationID}
local session_key = KEYS[2]   -- gamehall:session:{sessionID}
local active_set = KEYS[3]    -- gamehall:sessions:active
local start_index = KEYS[4]   -- gamehall:sessions:by_start

local session_id = ARGV[1]
local start_score = ARGV[8]

local status = redis.call('HGET', station_key, 'status')
if not status then
  return 'NOT_FOUND'
end
if status ~= 'available' then
  return 'UNAVAILABLE'
end
if redis.call('EXISTS', session_key) == 1 then
  return 'DUPLICATE'
end

redis.call('HSET', station_key, 'status', 'occupied')
redis.call('HSET', session_key,
  'id', session_id,
  'station_id', ARGV[2],
  'player_name', ARGV[3],
  'mode', ARGV[4],
  'kind', ARGV[5],
  'budget', ARGV[6],
  'start_time', ARGV[7],
  'end_time', '',
  'active', '1',
  'final_cost', '',
  'final_rate', '',
  'version', '1'
)
redis.call('SADD', active_set, session_id)
redis.call('ZADD', start_index, start_score, session_id)

return 'OK'
`

	// extendSessionScript grows the budget of an active limited session
	extendSessionScript = `
local session_key = KEYS[1]   -- gamehall:session:{sessionID}
local minutes = tonumber(ARGV[1])

local active = redis.call('HGET', session_key, 'active')
if not active then
  return 'NOT_FOUND'
end
if active ~= '1' then
  return 'CLOSED'
end
if redis.call('HGET', session_key, 'kind') ~= 'limited' then
  return 'UNLIMITED'
end

redis.call('HINCRBY', session_key, 'budget', minutes)
redis.call('HINCRBY', session_key, 'version', 1)

return 'OK'
`

	// convertSessionScript drops the budget of an active session
	convertSessionScript = `
local session_key = KEYS[1]   -- gamehall:session:{sessionID}

local active = redis.call('HGET', session_key, 'active')
if not active then
  return 'NOT_FOUND'
end
if active ~= '1' then
  return 'CLOSED'
end

redis.call('HSET', session_key, 'kind', 'unlimited', 'budget', '')
redis.call('HINCRBY', session_key, 'version', 1)

return 'OK'
`

	// closeSessionScript seals the session, releases the station and accrues totals
	closeSessionScript = `
local session_key = KEYS[1]   -- gamehall:session:{sessionID}
local active_set = KEYS[2]    -- gamehall:sessions:active
local station_key = KEYS[3]   -- gamehall:station:{stationID}

local session_id = ARGV[1]
local end_time = ARGV[2]
local elapsed = ARGV[3]
local cost = ARGV[4]
local rate = ARGV[5]

local active = redis.call('HGET', session_key, 'active')
if not active then
  return 'NOT_FOUND'
end
if active ~= '1' then
  return 'CLOSED'
end

redis.call('HSET', session_key,
  'active', '0',
  'end_time', end_time,
  'final_cost', cost,
  'final_rate', rate
)
redis.call('HINCRBY', session_key, 'version', 1)
redis.call('SREM', active_set, session_id)

if redis.call('EXISTS', station_key) == 1 then
  redis.call('HSET', station_key, 'status', 'available')
  redis.call('HINCRBY', station_key, 'total_play_time', elapsed)
  redis.call('HINCRBY', station_key, 'total_revenue', cost)
end

return 'OK'
`

	// recordSessionScript stores a closed session and accrues its totals
	recordSessionScript = `
local session_key = KEYS[1]   -- gamehall:session:{sessionID}
local start_index = KEYS[2]   -- gamehall:sessions:by_start
local station_key = KEYS[3]   -- gamehall:station:{stationID}

local session_id = ARGV[1]
local start_score = ARGV[8]
local elapsed = ARGV[12]

if redis.call('EXISTS', session_key) == 1 then
  return 'DUPLICATE'
end

redis.call('HSET', session_key,
  'id', session_id,
  'station_id', ARGV[2],
  'player_name', ARGV[3],
  'mode', ARGV[4],
  'kind', ARGV[5],
  'budget', ARGV[6],
  'start_time', ARGV[7],
  'end_time', ARGV[9],
  'active', '0',
  'final_cost', ARGV[10],
  'final_rate', ARGV[11],
  'version', '1'
)
redis.call('ZADD', start_index, start_score, session_id)

if redis.call('EXISTS', station_key) == 1 then
  redis.call('HINCRBY', station_key, 'total_play_time', elapsed)
  redis.call('HINCRBY', station_key, 'total_revenue', tonumber(ARGV[10]) or 0)
end

return 'OK'
`

	// clearSessionsScript deletes closed sessions and zeroes station totals
	clearSessionsScript = `
local start_index = KEYS[1]   -- gamehall:sessions:by_start
local stations_set = KEYS[2]  -- gamehall:stations

local session_prefix = ARGV[1]
local station_prefix = ARGV[2]

local deleted = 0
local ids = redis.call('ZRANGE', start_index, 0, -1)
for _, id in ipairs(ids) do
  local key = session_prefix .. id
  local active = redis.call('HGET', key, 'active')
  if active ~= '1' then
    redis.call('DEL', key)
    redis.call('ZREM', start_index, id)
    deleted = deleted + 1
  end
end

local stations = redis.call('SMEMBERS', stations_set)
for _, id in ipairs(stations) do
  redis.call('HSET', station_prefix .. id, 'total_play_time', 0, 'total_revenue', 0)
end

return deleted
`
)
