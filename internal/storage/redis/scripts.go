package redis

const (
	// writeDocumentScript replaces the document if the stored revision matches
	// the expected one (0 skips the check). Returns the new revision, or -1 on
	// a revision conflict.
	writeDocumentScript = `
local document_key = KEYS[1]    -- {prefix}:document
local revision_key = KEYS[2]    -- {prefix}:revision

local data = ARGV[1]
local expected = tonumber(ARGV[2])

local current = tonumber(redis.call('GET', revision_key) or '0')
if current == 0 and redis.call('EXISTS', document_key) == 1 then
  current = 1
end

if expected ~= 0 and expected ~= current then
  return -1
end

local next_revision = current + 1
redis.call('SET', document_key, data)
redis.call('SET', revision_key, next_revision)

return next_revision
`
)
