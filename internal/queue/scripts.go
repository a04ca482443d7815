package queue

import "github.com/redis/go-redis/v9"

// KEYS: wait, active, paused, leases. ARGV: lease deadline (ms), job key
// prefix, lease token.
var reserveScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[3]) == 1 then
  return false
end
local ids = redis.call('ZRANGE', KEYS[1], 0, 0)
if #ids == 0 then
  return false
end
local id = ids[1]
redis.call('ZREM', KEYS[1], id)
redis.call('ZADD', KEYS[2], ARGV[1], id)
redis.call('HSET', KEYS[4], id, ARGV[3])
local body = redis.call('GET', ARGV[2] .. id)
if not body then
  body = ''
end
return {id, body}
`)

// KEYS: active, target set, job key, leases. ARGV: score, body, id, token.
// Returns 0 when the caller no longer holds the lease.
var finishScript = redis.NewScript(`
if redis.call('HGET', KEYS[4], ARGV[3]) ~= ARGV[4] then
  return 0
end
if redis.call('ZREM', KEYS[1], ARGV[3]) == 0 then
  return 0
end
redis.call('HDEL', KEYS[4], ARGV[3])
redis.call('SET', KEYS[3], ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[1], ARGV[3])
return 1
`)

// KEYS: from, to. ARGV: score, id.
var moveScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[2]) == 0 then
  return 0
end
redis.call('ZADD', KEYS[2], ARGV[1], ARGV[2])
return 1
`)

// KEYS: active, leases. ARGV: new deadline (ms), id, token.
var extendScript = redis.NewScript(`
if redis.call('HGET', KEYS[2], ARGV[2]) ~= ARGV[3] then
  return 0
end
if not redis.call('ZSCORE', KEYS[1], ARGV[2]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// KEYS: active, wait, leases. ARGV: score, id.
var reclaimScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[2]) == 0 then
  return 0
end
redis.call('HDEL', KEYS[3], ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[1], ARGV[2])
return 1
`)
